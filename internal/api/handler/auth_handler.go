package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tenantauth/auth-backend/internal/api/metrics"
	"github.com/tenantauth/auth-backend/internal/api/middleware"
	"github.com/tenantauth/auth-backend/internal/api/request"
	"github.com/tenantauth/auth-backend/internal/api/response"
	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

// CookieConfig controls the access-token cookie set after a successful login.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

func (cc CookieConfig) set(c echo.Context, token string) {
	if cc.Name == "" {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     cc.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cc.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type AuthHandler struct {
	authService ports.AuthService
	cookie      CookieConfig
}

func NewAuthHandler(authService ports.AuthService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie}
}

// bindAndValidate decodes the body into req and runs the echo validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return &domain.ValidationError{Fields: map[string]string{"body": "invalid payload"}}
	}
	return c.Validate(req)
}

func observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = response.Resolve(err).Message
	}
	metrics.Observe(metrics.TransportHTTP, operation, result)
}

// Register creates a password account in the request scope.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      request.Register  true  "User registration details"
// @Success      200   {object}  response.Envelope
// @Failure      400   {object}  response.Envelope
// @Failure      409   {object}  response.Envelope
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) (err error) {
	defer func() { observe("register", err) }()

	var req request.Register
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.authService.Register(c.Request().Context(), middleware.ScopeFrom(c), req.Input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response.Success(http.StatusOK, response.MsgRegistered, user))
}

// Login authenticates a password account and returns a token pair.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      request.Login  true  "Login credentials"
// @Success      200   {object}  response.Envelope
// @Failure      400   {object}  response.Envelope
// @Failure      401   {object}  response.Envelope
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) (err error) {
	defer func() { observe("login", err) }()

	var req request.Login
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	scope := middleware.ScopeFrom(c)
	res, err := h.authService.Login(c.Request().Context(), scope, req.Input(), nil)
	if err != nil {
		return err
	}
	// Organization routes already authenticate with this cookie; setting it
	// there would replace the organization's own token.
	if !scope.IsTenant() {
		h.cookie.set(c, res.AccessToken)
	}
	return c.JSON(http.StatusOK, response.Success(http.StatusOK, response.MsgLoggedIn, res))
}

// RefreshToken exchanges a refresh token for a new pair.
//
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      request.Refresh  true  "Refresh token"
// @Success      200   {object}  response.Envelope
// @Failure      401   {object}  response.Envelope
// @Router       /auth/refresh_token [post]
func (h *AuthHandler) RefreshToken(c echo.Context) (err error) {
	defer func() { observe("refresh_token", err) }()

	var req request.Refresh
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	scope := middleware.ScopeFrom(c)
	pair, err := h.authService.Refresh(c.Request().Context(), scope, req.RefreshToken, nil)
	if err != nil {
		return err
	}
	if !scope.IsTenant() {
		h.cookie.set(c, pair.AccessToken)
	}
	return c.JSON(http.StatusOK, response.Success(http.StatusOK, response.MsgTokenRefreshed, pair))
}

// Me returns the principal resolved by the Authenticate middleware.
//
// @Summary      Current principal
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Envelope
// @Failure      401  {object}  response.Envelope
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return domain.ErrMissingToken
	}
	return c.JSON(http.StatusOK, response.Success(http.StatusOK, response.MsgPrincipalResolved, p))
}
