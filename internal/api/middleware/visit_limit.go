package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	rdb "github.com/tenantauth/auth-backend/internal/infrastructure/db/redis"
)

// VisitCounter counts one request per client, method and path.
type VisitCounter interface {
	Visit(ctx context.Context, ip, method, path string) (rdb.Decision, error)
}

// VisitLimit answers 429 to clients that are restricted. When the counter
// itself fails the request is let through and the failure logged.
func VisitLimit(counter VisitCounter, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			decision, err := counter.Visit(req.Context(), c.RealIP(), req.Method, req.URL.Path)
			if err != nil {
				log.Warn().Err(err).Str("path", req.URL.Path).Msg("visit limiter unavailable")
				return next(c)
			}
			if !decision.Allowed {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retrySeconds(decision.RetryAfter)))
				return domain.ErrTooManyRequests
			}
			return next(c)
		}
	}
}

func retrySeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
