package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tenantauth/auth-backend/internal/core/ports"
)

var (
	_ ports.TenantConnector    = (*Connector)(nil)
	_ ports.OrganizationLister = (*Connector)(nil)
)

// Connector hands out one UserStore per tenant id. Stores survive Close, the
// way a database outlives the connection to it.
type Connector struct {
	lock   sync.Mutex
	stores map[string]*UserStore
}

func NewConnector() *Connector {
	return &Connector{stores: make(map[string]*UserStore)}
}

func (c *Connector) Connect(_ context.Context, tenantID string) (ports.TenantConnection, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	store, ok := c.stores[tenantID]
	if !ok {
		store = NewUserStore()
		c.stores[tenantID] = store
	}
	return &connection{id: tenantID, users: store}, nil
}

// ListOrganizationIDs returns every tenant that has been connected so far.
func (c *Connector) ListOrganizationIDs(_ context.Context) ([]string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	ids := make([]string, 0, len(c.stores))
	for id := range c.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type connection struct {
	id    string
	users *UserStore
}

func (c *connection) TenantID() string { return c.id }

func (c *connection) Users() ports.IdentityStore { return c.users }

func (c *connection) Close(context.Context) error { return nil }
