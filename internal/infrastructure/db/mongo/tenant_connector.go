package mongo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

// Mongo rejects these characters in database names, and caps names at 63 bytes.
const (
	invalidDBNameChars = "/\\. \"$*<>:|?"
	maxDBNameLen       = 63
	indexTimeout       = 10 * time.Second
)

var reservedDatabases = map[string]struct{}{"admin": {}, "local": {}, "config": {}}

// TenantConnector opens one database per organization on a shared client.
type TenantConnector struct {
	client *mongo.Client
	prefix string
	global string
}

var (
	_ ports.TenantConnector    = (*TenantConnector)(nil)
	_ ports.OrganizationLister = (*TenantConnector)(nil)
)

// NewTenantConnector names tenant databases prefix+tenantID. global is the
// name of the global database, which is never treated as a tenant.
func NewTenantConnector(client *mongo.Client, prefix, global string) *TenantConnector {
	return &TenantConnector{client: client, prefix: prefix, global: global}
}

// Connect selects the tenant database and creates its user indexes.
func (c *TenantConnector) Connect(ctx context.Context, tenantID string) (ports.TenantConnection, error) {
	name, err := c.databaseName(tenantID)
	if err != nil {
		return nil, err
	}

	repo := NewUserRepository(c.client.Database(name))
	indexCtx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()
	if err := repo.EnsureIndexes(indexCtx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTenantUnavailable, tenantID, err)
	}
	return &tenantConnection{id: tenantID, users: repo}, nil
}

// ListOrganizationIDs lists tenant databases that already exist on the server.
func (c *TenantConnector) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	names, err := c.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	var ids []string
	for _, name := range names {
		if _, ok := reservedDatabases[name]; ok || name == c.global {
			continue
		}
		id, ok := strings.CutPrefix(name, c.prefix)
		if !ok || !primitive.IsValidObjectID(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *TenantConnector) databaseName(tenantID string) (string, error) {
	name := c.prefix + tenantID
	switch {
	case tenantID == "":
		return "", fmt.Errorf("%w: empty tenant id", domain.ErrTenantUnavailable)
	case len(name) > maxDBNameLen:
		return "", fmt.Errorf("%w: database name %q too long", domain.ErrTenantUnavailable, name)
	case strings.ContainsAny(name, invalidDBNameChars) || strings.ContainsRune(name, 0):
		return "", fmt.Errorf("%w: invalid database name %q", domain.ErrTenantUnavailable, name)
	case name == c.global:
		return "", fmt.Errorf("%w: %q is the global database", domain.ErrTenantUnavailable, name)
	}
	if _, ok := reservedDatabases[name]; ok {
		return "", fmt.Errorf("%w: reserved database name %q", domain.ErrTenantUnavailable, name)
	}
	return name, nil
}

// tenantConnection does not own the client; closing it only drops the handle.
type tenantConnection struct {
	id    string
	users *UserRepository
}

func (t *tenantConnection) TenantID() string { return t.id }

func (t *tenantConnection) Users() ports.IdentityStore { return t.users }

func (t *tenantConnection) Close(context.Context) error { return nil }
