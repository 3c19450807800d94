package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vesperchat/vesper/internal/auth"
	"github.com/vesperchat/vesper/internal/bridge"
	"github.com/vesperchat/vesper/internal/store"
)

const defaultThreadPageSize = 20

// ThreadsHandler serves thread snapshots, listings, renames, and deletes.
type ThreadsHandler struct {
	bridge *bridge.Bridge
	logger *slog.Logger
}

type renameThreadRequest struct {
	Name string `json:"name" validate:"required"`
}

func NewThreadsHandler(log *slog.Logger, b *bridge.Bridge) *ThreadsHandler {
	return &ThreadsHandler{
		bridge: b,
		logger: log.With(slog.String("handler", "threads")),
	}
}

func (h *ThreadsHandler) Register(e *echo.Echo) {
	group := e.Group("/threads")
	group.GET("", h.ListThreads)
	group.GET("/:id", h.GetThread)
	group.PUT("/:id", h.RenameThread)
	group.DELETE("/:id", h.DeleteThread)
}

// authorize resolves a thread and checks it belongs to the caller.
// Threads owned by someone else are reported as not found.
func (h *ThreadsHandler) authorize(c echo.Context, threadID string) (store.Conversation, error) {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return store.Conversation{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	conv, err := h.bridge.ResolveConversation(c.Request().Context(), threadID)
	if err != nil {
		return store.Conversation{}, httpError(err)
	}
	if conv.UserID != identity.UserID {
		return store.Conversation{}, echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	return conv, nil
}

// ListThreads godoc
// @Summary List threads
// @Description List the caller's threads, newest first, one page at a time
// @Tags threads
// @Produce json
// @Param page_size query int false "Page size"
// @Param cursor query string false "Opaque cursor from the previous page"
// @Success 200 {object} bridge.ThreadPage
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /threads [get]
func (h *ThreadsHandler) ListThreads(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	pageSize := defaultThreadPageSize
	if raw := c.QueryParam("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid page_size")
		}
		pageSize = n
	}
	page, err := h.bridge.ListThreads(c.Request().Context(), identity.UserID, pageSize, c.QueryParam("cursor"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

// GetThread godoc
// @Summary Get a thread
// @Description Get a thread with all of its steps, oldest first
// @Tags threads
// @Produce json
// @Param id path string true "Thread id"
// @Success 200 {object} bridge.Thread
// @Failure 404 {object} ErrorResponse
// @Router /threads/{id} [get]
func (h *ThreadsHandler) GetThread(c echo.Context) error {
	if _, err := h.authorize(c, c.Param("id")); err != nil {
		return err
	}
	th, err := h.bridge.GetThread(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, th)
}

// RenameThread godoc
// @Summary Rename a thread
// @Tags threads
// @Accept json
// @Param id path string true "Thread id"
// @Param request body renameThreadRequest true "New name"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /threads/{id} [put]
func (h *ThreadsHandler) RenameThread(c echo.Context) error {
	if _, err := h.authorize(c, c.Param("id")); err != nil {
		return err
	}
	var req renameThreadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.bridge.RenameThread(c.Request().Context(), c.Param("id"), req.Name); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteThread godoc
// @Summary Delete a thread
// @Description Delete a thread and every message in it
// @Tags threads
// @Param id path string true "Thread id"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /threads/{id} [delete]
func (h *ThreadsHandler) DeleteThread(c echo.Context) error {
	if _, err := h.authorize(c, c.Param("id")); err != nil {
		return err
	}
	if err := h.bridge.DeleteThread(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	h.logger.Info("thread deleted", slog.String("thread_id", c.Param("id")))
	return c.NoContent(http.StatusNoContent)
}
