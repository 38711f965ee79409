package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

func TestTenantDirectory_ConcurrentResolveConnectsOnce(t *testing.T) {
	connector := newStubConnector()
	connector.delay = 20 * time.Millisecond
	dir := NewTenantDirectory(connector)

	const callers = 50
	var wg sync.WaitGroup
	conns := make(chan ports.TenantConnection, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := dir.Resolve(context.Background(), "orgA")
			if err != nil {
				errs <- err
				return
			}
			conns <- conn
		}()
	}
	wg.Wait()
	close(errs)
	close(conns)

	for err := range errs {
		t.Fatalf("resolve: %v", err)
	}
	if n := connector.callCount("orgA"); n != 1 {
		t.Fatalf("expected one connect, got %d", n)
	}
	if dir.Len() != 1 {
		t.Fatalf("expected one cached connection, got %d", dir.Len())
	}

	want := connector.conns["orgA"]
	got := 0
	for conn := range conns {
		got++
		if c, ok := conn.(*stubConnection); !ok || c != want {
			t.Fatalf("caller received a different handle: %p, want %p", conn, want)
		}
	}
	if got != callers {
		t.Fatalf("expected %d handles, got %d", callers, got)
	}
}

func TestTenantDirectory_FailureNotCached(t *testing.T) {
	connector := newStubConnector()
	connector.fail["orgA"] = errors.New("server selection timeout")
	dir := NewTenantDirectory(connector)

	if _, err := dir.Resolve(context.Background(), "orgA"); !errors.Is(err, domain.ErrTenantUnavailable) {
		t.Fatalf("expected ErrTenantUnavailable, got %v", err)
	}

	delete(connector.fail, "orgA")
	if _, err := dir.Resolve(context.Background(), "orgA"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if n := connector.callCount("orgA"); n != 2 {
		t.Fatalf("expected two connects, got %d", n)
	}
}

func TestTenantDirectory_EmptyID(t *testing.T) {
	dir := NewTenantDirectory(newStubConnector())
	if _, err := dir.Resolve(context.Background(), ""); !errors.Is(err, domain.ErrTenantUnavailable) {
		t.Fatalf("expected ErrTenantUnavailable, got %v", err)
	}
}

func TestTenantDirectory_InitializeKnownTenants(t *testing.T) {
	connector := newStubConnector()
	connector.fail["bad"] = errors.New("boom")
	dir := NewTenantDirectory(connector)

	err := dir.InitializeKnownTenants(context.Background(), []string{"orgB", "bad", "orgA"})
	if !errors.Is(err, domain.ErrTenantUnavailable) {
		t.Fatalf("expected joined ErrTenantUnavailable, got %v", err)
	}
	ids := dir.TenantIDs()
	if len(ids) != 2 || ids[0] != "orgA" || ids[1] != "orgB" {
		t.Fatalf("unexpected tenant ids %v", ids)
	}
}

func TestTenantDirectory_Close(t *testing.T) {
	connector := newStubConnector()
	dir := NewTenantDirectory(connector)
	_, _ = dir.Resolve(context.Background(), "orgA")

	if err := dir.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !connector.conns["orgA"].closed.Load() {
		t.Fatalf("expected connection to be closed")
	}
	if _, err := dir.Resolve(context.Background(), "orgA"); !errors.Is(err, domain.ErrTenantUnavailable) {
		t.Fatalf("expected ErrTenantUnavailable after close, got %v", err)
	}
	if dir.Len() != 0 {
		t.Fatalf("expected empty directory")
	}
}
