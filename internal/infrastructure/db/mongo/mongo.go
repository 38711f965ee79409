package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultTimeout = 10 * time.Second

// Config selects the deployment. Database holds the global identity store;
// tenant databases are named TenantDBPrefix+<organization id> on the same
// server.
type Config struct {
	URI            string
	Database       string
	TenantDBPrefix string
	Timeout        time.Duration
}

// Store is the Mongo identity backend: the global users collection and the
// connector handing out tenant databases, sharing one client.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	Users   *UserRepository
	Tenants *TenantConnector
}

// Open connects, pings, and makes sure the global users collection carries
// its unique indexes before any request is served.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	openCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(openCtx, options.Client().
		ApplyURI(cfg.URI).
		SetAppName("auth-backend"))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(openCtx, nil); err != nil {
		_ = client.Disconnect(openCtx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	users := NewUserRepository(db)
	if err := users.EnsureIndexes(openCtx); err != nil {
		_ = client.Disconnect(openCtx)
		return nil, fmt.Errorf("global %w", err)
	}

	return &Store{
		client:  client,
		db:      db,
		Users:   users,
		Tenants: NewTenantConnector(client, cfg.TenantDBPrefix, cfg.Database),
	}, nil
}

// Ping backs the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

// Close disconnects the shared client, which also drops every tenant handle.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}
