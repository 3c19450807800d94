package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vesperchat/vesper/internal/accounts"
	"github.com/vesperchat/vesper/internal/auth"
)

// UsersHandler manages account registration and profile lookup.
type UsersHandler struct {
	service *accounts.Service
	logger  *slog.Logger
}

func NewUsersHandler(log *slog.Logger, service *accounts.Service) *UsersHandler {
	return &UsersHandler{
		service: service,
		logger:  log.With(slog.String("handler", "users")),
	}
}

func (h *UsersHandler) Register(e *echo.Echo) {
	group := e.Group("/users")
	group.POST("/register", h.RegisterUser)
	group.GET("/me", h.GetMe)
}

// RegisterUser godoc
// @Summary Register
// @Description Create a new account
// @Tags users
// @Accept json
// @Produce json
// @Param request body accounts.RegisterRequest true "Registration"
// @Success 201 {object} accounts.Account
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /users/register [post]
func (h *UsersHandler) RegisterUser(c echo.Context) error {
	var req accounts.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	account, err := h.service.Register(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	h.logger.Info("account registered", slog.Int64("user_id", account.ID))
	return c.JSON(http.StatusCreated, account)
}

// GetMe godoc
// @Summary Get current user
// @Description Get the authenticated user's profile
// @Tags users
// @Produce json
// @Success 200 {object} accounts.Account
// @Failure 401 {object} ErrorResponse
// @Router /users/me [get]
func (h *UsersHandler) GetMe(c echo.Context) error {
	identity, err := auth.IdentityFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	account, err := h.service.Get(c.Request().Context(), identity.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, account)
}
