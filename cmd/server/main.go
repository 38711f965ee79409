package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tenantauth/auth-backend/internal/api"
	"github.com/tenantauth/auth-backend/internal/api/handler"
	"github.com/tenantauth/auth-backend/internal/api/metrics"
	"github.com/tenantauth/auth-backend/internal/api/request"
	"github.com/tenantauth/auth-backend/internal/api/socket"
	"github.com/tenantauth/auth-backend/internal/core/ports"
	"github.com/tenantauth/auth-backend/internal/core/service"
	"github.com/tenantauth/auth-backend/internal/infrastructure/db/memory"
	mongostore "github.com/tenantauth/auth-backend/internal/infrastructure/db/mongo"
	redisstore "github.com/tenantauth/auth-backend/internal/infrastructure/db/redis"
	"github.com/tenantauth/auth-backend/internal/infrastructure/oauth"
	"github.com/tenantauth/auth-backend/internal/infrastructure/queue"
	"github.com/tenantauth/auth-backend/internal/infrastructure/security"
	"github.com/tenantauth/auth-backend/internal/infrastructure/token"
	"github.com/tenantauth/auth-backend/internal/pkg/config"
	"github.com/tenantauth/auth-backend/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// @title                       Auth Backend API
// @version                     1.0
// @description                 Multi-tenant authentication: password and federated login, token refresh, organization scopes.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "auth-backend",
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

// stores bundles the identity backends picked by STORE_DRIVER.
type stores struct {
	global    ports.IdentityStore
	connector ports.TenantConnector
	lister    ports.OrganizationLister
	checks    []handler.DependencyCheck
	close     func(ctx context.Context) error
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}

	var rdb *redisstore.Client
	if cfg.Visits.Track || cfg.Auth0.Enabled() {
		rdb, err = redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			return err
		}
		st.checks = append(st.checks, handler.DependencyCheck{Name: "redis", Ping: rdb.Ping})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	// --- Tenants ---
	directory := service.NewTenantDirectory(st.connector)
	if ids, err := st.lister.ListOrganizationIDs(ctx); err != nil {
		log.Warn().Err(err).Msg("could not list known tenants")
	} else if err := directory.InitializeKnownTenants(ctx, ids); err != nil {
		log.Warn().Err(err).Int("known", len(ids)).Msg("some tenants could not be initialized")
	} else {
		log.Info().Int("tenants", len(ids)).Msg("tenants initialized")
	}
	if err := metrics.RegisterTenantConnections(prometheus.DefaultRegisterer, directory.Len); err != nil {
		return fmt.Errorf("register tenant metric: %w", err)
	}

	// --- Auth core ---
	authService := service.NewAuthService(
		service.NewStores(st.global, directory),
		token.NewJWTCodec(cfg.Token.Secret),
		security.NewBcryptHasher(cfg.Token.BcryptCost),
		service.TokenTTLs{Access: cfg.Token.AccessTTL, Refresh: cfg.Token.RefreshTTL},
	)

	deps := api.Dependencies{
		Auth:    authService,
		Tenants: directory,
		Checks:  st.checks,
		Cookie: handler.CookieConfig{
			Name:   cfg.Token.AccessCookie,
			Secure: !cfg.IsDevelopment(),
			MaxAge: cfg.Token.AccessTTL,
		},
		Docs: cfg.IsDevelopment(),
		Log:  logger.Component("http"),
	}

	if cfg.Auth0.Enabled() {
		federated, err := newFederatedService(ctx, cfg, authService, rdb)
		if err != nil {
			return err
		}
		deps.Federated = federated
		log.Info().Str("domain", cfg.Auth0.Domain).Bool("verify_id_token", cfg.Auth0.VerifyIDToken).Msg("federated login enabled")
	}
	if cfg.Visits.Track {
		deps.Visits = rdb.VisitLimiter(cfg.Visits.MaxVisits, cfg.Visits.Restriction())
	}

	// --- Presence workers and sockets ---
	// Workers outlive the signal so the offline updates queued during shutdown
	// are still applied.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	presence := queue.NewPresenceDispatcher(cfg.Presence.Workers, authService, logger.Component("presence"))
	presence.Start(workerCtx)
	deps.Socket = socket.NewServer(authService, request.NewValidator(), presence, logger.Component("socket"), socket.Options{
		AllowedOrigins: cfg.Socket.AllowedOrigins,
		ReadLimit:      cfg.Socket.ReadLimit,
		EventTimeout:   cfg.Socket.EventTimeout,
	})

	e := api.NewRouter(deps)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreDriver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	return shutdown(srv, deps.Socket, presence, directory, st, rdb, log)
}

// shutdown stops accepting requests, closes sockets so their offline updates
// are queued, drains the presence workers and then releases the stores.
func shutdown(srv *http.Server, sockets *socket.Server, presence *queue.PresenceDispatcher,
	directory *service.TenantDirectory, st *stores, rdb *redisstore.Client, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := sockets.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("socket shutdown: %w", err))
	}
	presence.Stop()
	if err := directory.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := st.close(ctx); err != nil {
		errs = append(errs, err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if len(errs) == 0 {
		log.Info().Msg("shutdown complete")
	}
	return errors.Join(errs...)
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn().Msg("using in-memory identity store; data is lost on restart")
		connector := memory.NewConnector()
		return &stores{
			global:    memory.NewUserStore(),
			connector: connector,
			lister:    connector,
			close:     func(context.Context) error { return nil },
		}, nil
	}

	store, err := mongostore.Open(ctx, mongostore.Config{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		TenantDBPrefix: cfg.Mongo.TenantDBPrefix,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("mongodb connected")

	return &stores{
		global:    store.Users,
		connector: store.Tenants,
		lister:    store.Tenants,
		checks:    []handler.DependencyCheck{{Name: "mongodb", Ping: store.Ping}},
		close:     store.Close,
	}, nil
}

func newFederatedService(ctx context.Context, cfg *config.Config, auth *service.AuthService, rdb *redisstore.Client) (*service.FederatedService, error) {
	states, err := oauth.NewSealedStateCodec(cfg.Auth0.StateSecret)
	if err != nil {
		return nil, fmt.Errorf("state codec: %w", err)
	}

	var decoder oauth.IDTokenDecoder = oauth.UnverifiedDecoder{}
	if cfg.Auth0.VerifyIDToken {
		decoder = oauth.NewOIDCDecoder(ctx, cfg.Auth0.Domain, cfg.Auth0.ClientID)
	}

	provider := oauth.NewProvider(oauth.Config{
		Domain:       cfg.Auth0.Domain,
		ClientID:     cfg.Auth0.ClientID,
		ClientSecret: cfg.Auth0.ClientSecret,
		RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + cfg.Auth0.RedirectPath,
		Scope:        cfg.Auth0.Scope,
	}, decoder)

	return service.NewFederatedService(auth, provider, states, rdb.Nonces(), cfg.Auth0.StateTTL), nil
}
