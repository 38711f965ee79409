package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/tenantauth/auth-backend/docs"
	"github.com/tenantauth/auth-backend/internal/api/handler"
	"github.com/tenantauth/auth-backend/internal/api/middleware"
	"github.com/tenantauth/auth-backend/internal/api/request"
	"github.com/tenantauth/auth-backend/internal/api/socket"
	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

// Dependencies carries everything the router wires. Federated, Visits and
// Socket are optional. Docs serves the swagger UI under /swagger.
type Dependencies struct {
	Auth      ports.AuthService
	Federated ports.FederatedService
	Tenants   handler.TenantLister
	Visits    middleware.VisitCounter
	Socket    *socket.Server
	Checks    []handler.DependencyCheck
	Cookie    handler.CookieConfig
	Docs      bool
	Log       zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = request.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())

	// --- Health checks and metrics (no auth, not rate limited) ---
	e.GET("/health", handler.NewHealthHandler().Liveness)
	e.GET("/health/ready", handler.NewReadinessHandler(deps.Checks...).Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if deps.Docs {
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	v1 := e.Group("/api/v1")
	if deps.Visits != nil {
		v1.Use(middleware.VisitLimit(deps.Visits, deps.Log))
	}

	authHandler := handler.NewAuthHandler(deps.Auth, deps.Cookie)
	authenticate := middleware.Authenticate(deps.Auth, deps.Cookie.Name)

	// --- Global auth routes ---
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh_token", authHandler.RefreshToken)
	auth.GET("/me", authHandler.Me, authenticate)

	// --- Organization routes: the organization authenticates first and every
	// nested handler runs in its tenant scope ---
	org := v1.Group("/organization", middleware.Organization(deps.Auth, deps.Cookie.Name))
	orgAuth := org.Group("/auth")
	orgAuth.POST("/register", authHandler.Register)
	orgAuth.POST("/login", authHandler.Login)
	orgAuth.POST("/refresh_token", authHandler.RefreshToken)

	// --- Federated login ---
	if deps.Federated != nil {
		federated := handler.NewFederatedHandler(deps.Federated, deps.Cookie)
		v1.GET("/auth_0/get_link", federated.GetLink)
		v1.GET("/auth_0/callback", federated.Callback)
		org.GET("/auth_0/get_link", federated.GetLink)
	}

	// --- Admin ---
	if deps.Tenants != nil {
		admin := v1.Group("/admin", authenticate, middleware.RequireAudience(domain.AudienceAdmin))
		admin.GET("/tenants", handler.NewAdminHandler(deps.Tenants).Tenants)
	}

	// --- Persistent connections ---
	if deps.Socket != nil {
		e.GET("/ws/auth", deps.Socket.Public)
		e.GET("/ws", deps.Socket.Protected)
	}

	return e
}
