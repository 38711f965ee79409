package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tenantauth/auth-backend/internal/api/response"
)

// TenantLister reports the tenants with a live connection.
type TenantLister interface {
	TenantIDs() []string
}

type AdminHandler struct {
	tenants TenantLister
}

func NewAdminHandler(tenants TenantLister) *AdminHandler {
	return &AdminHandler{tenants: tenants}
}

// Tenants lists the tenant ids cached in the tenant directory.
//
// @Summary      Connected tenants
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Envelope
// @Failure      403  {object}  response.Envelope
// @Router       /admin/tenants [get]
func (h *AdminHandler) Tenants(c echo.Context) error {
	ids := h.tenants.TenantIDs()
	return c.JSON(http.StatusOK, response.Success(http.StatusOK, response.MsgTenantsListed, map[string]any{
		"tenants": ids,
		"count":   len(ids),
	}))
}
