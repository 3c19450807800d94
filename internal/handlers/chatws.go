package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/vesperchat/vesper/internal/auth"
	"github.com/vesperchat/vesper/internal/chat"
	"github.com/vesperchat/vesper/internal/turn"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsInbound is a client frame. "message" runs a turn; "resume" points the
// connection at an existing thread and reloads its history.
type wsInbound struct {
	Type        string   `json:"type"`
	ThreadID    string   `json:"thread_id,omitempty"`
	Message     string   `json:"message,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// wsOutbound is a server frame.
type wsOutbound struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id,omitempty"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ChatWS runs chat turns over a websocket. Unlike the SSE endpoint the
// session window lives for the whole connection, so history is loaded
// once per thread instead of once per turn. Frames are processed in
// order; one turn streams at a time.
func (h *ChatHandler) ChatWS(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := c.Request().Context()
	log := h.logger.With(slog.Int64("user_id", identity.UserID))
	sess := chat.NewSession(h.chatCfg.HistoryWindow)
	threadID := ""

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket closed", slog.Any("error", err))
			}
			return nil
		}
		switch in.Type {
		case "resume":
			tid, err := h.wsResume(ctx, identity, sess, in.ThreadID)
			if err != nil {
				h.wsError(conn, err)
				continue
			}
			threadID = tid
			conn.WriteJSON(wsOutbound{Type: "thread", ThreadID: threadID})
		case "message":
			tid, err := h.wsTurn(ctx, conn, identity, sess, threadID, in)
			if err != nil {
				h.wsError(conn, err)
				continue
			}
			threadID = tid
		default:
			h.wsError(conn, errors.New("unknown frame type"))
		}
	}
}

func (h *ChatHandler) wsResume(ctx context.Context, identity auth.Identity, sess *chat.Session, threadID string) (string, error) {
	conv, err := h.bridge.ResolveConversation(ctx, threadID)
	if err != nil {
		return "", err
	}
	if conv.UserID != identity.UserID {
		return "", errors.New("thread not found")
	}
	sess.Reset()
	history, err := h.convs.History(ctx, conv.ID, 0)
	if err != nil {
		return "", err
	}
	for _, entry := range history {
		sess.Append(entry.Role, entry.Content)
	}
	return threadID, nil
}

func (h *ChatHandler) wsTurn(ctx context.Context, conn *websocket.Conn, identity auth.Identity, sess *chat.Session, threadID string, in wsInbound) (string, error) {
	provider, err := chat.ParseProvider(in.Provider)
	if err != nil {
		return threadID, err
	}
	if in.Message == "" {
		return threadID, errors.New("message is required")
	}
	if in.ThreadID != "" && in.ThreadID != threadID {
		if threadID, err = h.wsResume(ctx, identity, sess, in.ThreadID); err != nil {
			return "", err
		}
	}
	if threadID == "" {
		conv, err := h.convs.Create(ctx, identity.UserID, "", uuid.NewString())
		if err != nil {
			return "", err
		}
		threadID = conv.ThreadID
		sess.Reset()
		conn.WriteJSON(wsOutbound{Type: "thread", ThreadID: threadID})
	}

	prefs, err := h.settings.Get(ctx, identity.UserID)
	if err != nil {
		return threadID, err
	}
	temperature := prefs.Temperature
	if in.Temperature != nil {
		temperature = *in.Temperature
	}
	model := in.Model
	if model == "" && provider == chat.ProviderOllama {
		model = prefs.DefaultModel
	}

	_, err = h.orch.Run(ctx, sess, turn.Request{
		ThreadID:    threadID,
		Provider:    provider,
		Model:       model,
		Message:     in.Message,
		Temperature: temperature,
	}, turn.SinkFunc(func(_ context.Context, content string) error {
		return conn.WriteJSON(wsOutbound{Type: "fragment", Content: content})
	}))
	if err != nil {
		return threadID, err
	}
	conn.WriteJSON(wsOutbound{Type: "done", ThreadID: threadID})
	return threadID, nil
}

func (h *ChatHandler) wsError(conn *websocket.Conn, err error) {
	conn.WriteJSON(wsOutbound{Type: "error", Error: err.Error()})
}
