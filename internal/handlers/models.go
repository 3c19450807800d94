package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vesperchat/vesper/internal/chat"
)

// ModelsHandler lists the models available per provider.
type ModelsHandler struct {
	dispatcher *chat.Dispatcher
	logger     *slog.Logger
}

type modelsResponse struct {
	Provider string           `json:"provider"`
	Models   []chat.ModelInfo `json:"models"`
}

func NewModelsHandler(log *slog.Logger, d *chat.Dispatcher) *ModelsHandler {
	return &ModelsHandler{
		dispatcher: d,
		logger:     log.With(slog.String("handler", "models")),
	}
}

func (h *ModelsHandler) Register(e *echo.Echo) {
	e.GET("/models", h.ListModels)
}

// ListModels godoc
// @Summary List models
// @Description List models for a provider. Only the local provider supports discovery; cloud providers return their configured default.
// @Tags models
// @Produce json
// @Param provider query string false "Provider name" default(ollama)
// @Success 200 {object} modelsResponse
// @Failure 400 {object} ErrorResponse
// @Router /models [get]
func (h *ModelsHandler) ListModels(c echo.Context) error {
	name := c.QueryParam("provider")
	if name == "" {
		name = string(chat.ProviderOllama)
	}
	provider, err := chat.ParseProvider(name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var models []chat.ModelInfo
	if provider == chat.ProviderOllama {
		models = h.dispatcher.ListLocalModels(c.Request().Context())
	} else if def := h.dispatcher.DefaultModel(provider); def != "" {
		models = []chat.ModelInfo{{Name: def}}
	}
	return c.JSON(http.StatusOK, modelsResponse{Provider: string(provider), Models: models})
}
