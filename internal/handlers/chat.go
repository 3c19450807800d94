package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vesperchat/vesper/internal/auth"
	"github.com/vesperchat/vesper/internal/bridge"
	"github.com/vesperchat/vesper/internal/chat"
	"github.com/vesperchat/vesper/internal/config"
	"github.com/vesperchat/vesper/internal/conversation"
	"github.com/vesperchat/vesper/internal/settings"
	"github.com/vesperchat/vesper/internal/store"
	"github.com/vesperchat/vesper/internal/turn"
)

// ChatHandler runs chat turns over plain JSON, SSE, and websocket. A turn
// for a missing thread id opens a fresh thread owned by the caller.
type ChatHandler struct {
	orch     *turn.Orchestrator
	bridge   *bridge.Bridge
	convs    *conversation.Service
	settings *settings.Service
	chatCfg  config.ChatConfig
	logger   *slog.Logger
}

type chatStreamRequest struct {
	ThreadID    string   `json:"thread_id,omitempty"`
	Message     string   `json:"message" validate:"required"`
	Provider    string   `json:"provider" validate:"required"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type chatStreamChunk struct {
	ThreadID string `json:"thread_id,omitempty"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewChatHandler(log *slog.Logger, orch *turn.Orchestrator, b *bridge.Bridge, convs *conversation.Service, set *settings.Service, chatCfg config.ChatConfig) *ChatHandler {
	return &ChatHandler{
		orch:     orch,
		bridge:   b,
		convs:    convs,
		settings: set,
		chatCfg:  chatCfg,
		logger:   log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	group := e.Group("/chat")
	group.POST("", h.Chat)
	group.POST("/stream", h.StreamChat)
	group.GET("/ws", h.ChatWS)
}

type chatResponse struct {
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
}

// Chat godoc
// @Summary Run a chat turn
// @Description Run one chat turn and return the whole completion at once
// @Tags chat
// @Accept json
// @Produce json
// @Param request body chatStreamRequest true "Turn"
// @Success 200 {object} chatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /chat [post]
func (h *ChatHandler) Chat(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req chatStreamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	provider, err := chat.ParseProvider(req.Provider)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	conv, err := h.resolveThread(c, identity, req.ThreadID)
	if err != nil {
		return err
	}
	threadID := conv.ThreadID
	if threadID == "" {
		threadID = fmt.Sprintf("%d", conv.ID)
	}

	ctx := c.Request().Context()
	prefs, err := h.settings.Get(ctx, identity.UserID)
	if err != nil {
		return httpError(err)
	}
	temperature := prefs.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	model := req.Model
	if model == "" && provider == chat.ProviderOllama {
		model = prefs.DefaultModel
	}

	sess := chat.NewSession(h.chatCfg.HistoryWindow)
	history, err := h.convs.History(ctx, conv.ID, 0)
	if err != nil {
		return httpError(err)
	}
	for _, entry := range history {
		sess.Append(entry.Role, entry.Content)
	}

	res, err := h.orch.Run(ctx, sess, turn.Request{
		ThreadID:    threadID,
		Provider:    provider,
		Model:       model,
		Message:     req.Message,
		Temperature: temperature,
	}, turn.SinkFunc(func(context.Context, string) error { return nil }))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, chatResponse{ThreadID: threadID, Content: res.Content})
}

// resolveThread returns the caller's conversation for a turn, creating a
// new thread when no id was sent.
func (h *ChatHandler) resolveThread(c echo.Context, identity auth.Identity, threadID string) (store.Conversation, error) {
	ctx := c.Request().Context()
	if threadID == "" {
		conv, err := h.convs.Create(ctx, identity.UserID, "", uuid.NewString())
		if err != nil {
			return store.Conversation{}, httpError(err)
		}
		return conv, nil
	}
	conv, err := h.bridge.ResolveConversation(ctx, threadID)
	if err != nil {
		return store.Conversation{}, httpError(err)
	}
	if conv.UserID != identity.UserID {
		return store.Conversation{}, echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	return conv, nil
}

// StreamChat godoc
// @Summary Stream a chat turn
// @Description Run one chat turn and stream the completion as server-sent events
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param request body chatStreamRequest true "Turn"
// @Success 200 {object} chatStreamChunk
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /chat/stream [post]
func (h *ChatHandler) StreamChat(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req chatStreamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	provider, err := chat.ParseProvider(req.Provider)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	conv, err := h.resolveThread(c, identity, req.ThreadID)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	prefs, err := h.settings.Get(ctx, identity.UserID)
	if err != nil {
		return httpError(err)
	}
	temperature := prefs.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	model := req.Model
	if model == "" && provider == chat.ProviderOllama {
		model = prefs.DefaultModel
	}

	// Each POST carries no connection state; rebuild the session window
	// from stored history.
	sess := chat.NewSession(h.chatCfg.HistoryWindow)
	history, err := h.convs.History(ctx, conv.ID, 0)
	if err != nil {
		return httpError(err)
	}
	for _, entry := range history {
		sess.Append(entry.Role, entry.Content)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	writer := bufio.NewWriter(c.Response().Writer)

	emit := func(chunk chatStreamChunk) error {
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := writer.WriteString(fmt.Sprintf("data: %s\n\n", data)); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// First event names the thread so new threads are addressable.
	threadID := conv.ThreadID
	if threadID == "" {
		threadID = fmt.Sprintf("%d", conv.ID)
	}
	if err := emit(chatStreamChunk{ThreadID: threadID}); err != nil {
		return nil
	}

	_, err = h.orch.Run(ctx, sess, turn.Request{
		ThreadID:    threadID,
		Provider:    provider,
		Model:       model,
		Message:     req.Message,
		Temperature: temperature,
	}, turn.SinkFunc(func(_ context.Context, content string) error {
		return emit(chatStreamChunk{Content: content})
	}))
	if err != nil {
		_ = emit(chatStreamChunk{Error: err.Error()})
	}
	writer.WriteString("data: [DONE]\n\n")
	writer.Flush()
	flusher.Flush()
	return nil
}
