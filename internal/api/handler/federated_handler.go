package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tenantauth/auth-backend/internal/api/middleware"
	"github.com/tenantauth/auth-backend/internal/api/request"
	"github.com/tenantauth/auth-backend/internal/api/response"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

// FederatedHandler serves the external identity provider login routes.
type FederatedHandler struct {
	federated ports.FederatedService
	cookie    CookieConfig
}

func NewFederatedHandler(federated ports.FederatedService, cookie CookieConfig) *FederatedHandler {
	return &FederatedHandler{federated: federated, cookie: cookie}
}

// GetLink returns the provider authorize URL for the request scope.
//
// @Summary      Federated login link
// @Tags         auth_0
// @Produce      json
// @Success      200  {object}  response.Envelope
// @Router       /auth_0/get_link [get]
func (h *FederatedHandler) GetLink(c echo.Context) (err error) {
	defer func() { observe("federated_link", err) }()

	link, err := h.federated.LoginLink(c.Request().Context(), middleware.ScopeFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response.Success(http.StatusOK, response.MsgLinkGenerated, map[string]string{"link": link}))
}

// Callback completes the provider redirect. The tenant comes from the sealed
// state, never from the request path.
//
// @Summary      Federated login callback
// @Tags         auth_0
// @Produce      json
// @Param        code   query     string  true  "Authorization code"
// @Param        state  query     string  true  "Sealed state"
// @Success      200    {object}  response.Envelope
// @Failure      400    {object}  response.Envelope
// @Failure      502    {object}  response.Envelope
// @Router       /auth_0/callback [get]
func (h *FederatedHandler) Callback(c echo.Context) (err error) {
	defer func() { observe("federated_callback", err) }()

	var req request.Callback
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	pair, err := h.federated.Callback(c.Request().Context(), req.Code, req.State)
	if err != nil {
		return err
	}
	h.cookie.set(c, pair.AccessToken)
	return c.JSON(http.StatusOK, response.Success(http.StatusOK, response.MsgAuthenticated, pair))
}
