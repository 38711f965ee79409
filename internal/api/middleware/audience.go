package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/tenantauth/auth-backend/internal/core/domain"
)

// RequireAudience only lets principals of the given audiences through. It
// must run after Authenticate.
func RequireAudience(audiences ...domain.Audience) echo.MiddlewareFunc {
	allowed := make(map[domain.Audience]struct{}, len(audiences))
	for _, a := range audiences {
		allowed[a] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if p == nil {
				return domain.ErrMissingToken
			}
			if _, ok := allowed[p.Audience]; !ok {
				return fmt.Errorf("%w: audience %s", domain.ErrForbidden, p.Audience)
			}
			return next(c)
		}
	}
}
