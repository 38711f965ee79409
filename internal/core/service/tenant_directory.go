package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

// TenantDirectory maps organization ids to their live connection. Each id is
// connected at most once for the life of the directory; failed attempts are
// not cached, so the next Resolve retries.
type TenantDirectory struct {
	connector ports.TenantConnector

	mu     sync.RWMutex
	conns  map[string]ports.TenantConnection
	closed bool

	flight singleflight.Group
}

// NewTenantDirectory returns an empty directory backed by connector.
func NewTenantDirectory(connector ports.TenantConnector) *TenantDirectory {
	return &TenantDirectory{
		connector: connector,
		conns:     make(map[string]ports.TenantConnection),
	}
}

// Resolve returns the cached connection for tenantID, establishing it on first use.
// Concurrent first calls for the same id share a single Connect.
func (d *TenantDirectory) Resolve(ctx context.Context, tenantID string) (ports.TenantConnection, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: empty tenant id", domain.ErrTenantUnavailable)
	}
	if conn, ok, err := d.cached(tenantID); ok || err != nil {
		return conn, err
	}

	v, err, _ := d.flight.Do(tenantID, func() (any, error) {
		// A flight that finished between our cache miss and Do has already
		// stored the connection.
		if conn, ok, err := d.cached(tenantID); ok || err != nil {
			return conn, err
		}

		// The connection outlives the request that triggered it.
		conn, err := d.connector.Connect(context.WithoutCancel(ctx), tenantID)
		if err != nil {
			return nil, err
		}

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			_ = conn.Close(context.WithoutCancel(ctx))
			return nil, errDirectoryClosed
		}
		d.conns[tenantID] = conn
		return conn, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrTenantUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTenantUnavailable, tenantID, err)
	}
	return v.(ports.TenantConnection), nil
}

var errDirectoryClosed = fmt.Errorf("%w: directory closed", domain.ErrTenantUnavailable)

func (d *TenantDirectory) cached(tenantID string) (ports.TenantConnection, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, false, errDirectoryClosed
	}
	conn, ok := d.conns[tenantID]
	return conn, ok, nil
}

// InitializeKnownTenants warms the cache at start-up. Every id is attempted;
// the returned error joins the individual failures.
func (d *TenantDirectory) InitializeKnownTenants(ctx context.Context, tenantIDs []string) error {
	var errs []error
	for _, id := range tenantIDs {
		if _, err := d.Resolve(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TenantIDs lists the cached tenant ids in sorted order.
func (d *TenantDirectory) TenantIDs() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.conns))
	for id := range d.conns {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of cached connections.
func (d *TenantDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}

// Close tears down every cached connection. Resolve fails afterwards.
func (d *TenantDirectory) Close(ctx context.Context) error {
	d.mu.Lock()
	conns := d.conns
	d.conns = make(map[string]ports.TenantConnection)
	d.closed = true
	d.mu.Unlock()

	var errs []error
	for id, conn := range conns {
		if err := conn.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close tenant %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
