package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tenantauth/auth-backend/internal/api/metrics"
	"github.com/tenantauth/auth-backend/internal/api/response"
	"github.com/tenantauth/auth-backend/internal/core/domain"
)

// Context keys set by the middlewares in this package.
const (
	principalKey    = "principal"
	scopeKey        = "scope"
	organizationKey = "organization"
)

// Authenticator is the part of the auth core the middlewares call.
type Authenticator interface {
	Authenticate(ctx context.Context, scope domain.Scope, accessToken string) (*domain.Principal, error)
	AuthenticateOrganization(ctx context.Context, accessToken string) (*domain.Principal, domain.Scope, error)
}

// BearerToken reads the access token from the Authorization header, falling
// back to the named cookie.
func BearerToken(r *http.Request, cookieName string) string {
	if header := r.Header.Get(echo.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Authenticate resolves the bearer token in the request scope (global unless
// Organization ran first) and stores the principal in the context.
func Authenticate(auth Authenticator, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, err := auth.Authenticate(c.Request().Context(), ScopeFrom(c), BearerToken(c.Request(), cookieName))
			if err != nil {
				metrics.TokenRejectionsTotal.WithLabelValues(response.Resolve(err).Message).Inc()
				return err
			}
			c.Set(principalKey, principal)
			return next(c)
		}
	}
}

// Organization authenticates the calling organization and scopes every nested
// handler to the organization's tenant.
func Organization(auth Authenticator, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			org, scope, err := auth.AuthenticateOrganization(c.Request().Context(), BearerToken(c.Request(), cookieName))
			if err != nil {
				metrics.TokenRejectionsTotal.WithLabelValues(response.Resolve(err).Message).Inc()
				return err
			}
			c.Set(organizationKey, org)
			c.Set(scopeKey, scope)
			return next(c)
		}
	}
}

// PrincipalFrom returns the principal stored by Authenticate, or nil.
func PrincipalFrom(c echo.Context) *domain.Principal {
	p, _ := c.Get(principalKey).(*domain.Principal)
	return p
}

// ScopeFrom returns the scope stored by Organization, or the global scope.
func ScopeFrom(c echo.Context) domain.Scope {
	scope, ok := c.Get(scopeKey).(domain.Scope)
	if !ok {
		return domain.GlobalScope
	}
	return scope
}

// OrganizationFrom returns the organization stored by Organization, or nil.
func OrganizationFrom(c echo.Context) *domain.Principal {
	org, _ := c.Get(organizationKey).(*domain.Principal)
	return org
}
