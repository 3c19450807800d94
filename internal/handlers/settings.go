package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vesperchat/vesper/internal/auth"
	"github.com/vesperchat/vesper/internal/settings"
)

type SettingsHandler struct {
	service *settings.Service
	logger  *slog.Logger
}

func NewSettingsHandler(log *slog.Logger, service *settings.Service) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "settings")),
	}
}

func (h *SettingsHandler) Register(e *echo.Echo) {
	group := e.Group("/settings")
	group.GET("", h.GetSettings)
	group.PUT("", h.UpdateSettings)
}

// GetSettings godoc
// @Summary Get settings
// @Description Get the caller's chat preferences; defaults are created on first read
// @Tags settings
// @Produce json
// @Success 200 {object} settings.Settings
// @Failure 401 {object} ErrorResponse
// @Router /settings [get]
func (h *SettingsHandler) GetSettings(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	prefs, err := h.service.Get(c.Request().Context(), identity.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, prefs)
}

// UpdateSettings godoc
// @Summary Update settings
// @Description Partially update the caller's chat preferences
// @Tags settings
// @Accept json
// @Produce json
// @Param request body settings.UpsertRequest true "Fields to update"
// @Success 200 {object} settings.Settings
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /settings [put]
func (h *SettingsHandler) UpdateSettings(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req settings.UpsertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	prefs, err := h.service.Upsert(c.Request().Context(), identity.UserID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, prefs)
}
