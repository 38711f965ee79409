package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues(TransportHTTP, "login", "ok"))
	Observe(TransportHTTP, "login", "ok")
	after := testutil.ToFloat64(OperationsTotal.WithLabelValues(TransportHTTP, "login", "ok"))
	if after != before+1 {
		t.Fatalf("expected counter to grow by one, got %v -> %v", before, after)
	}
}

func TestRegisterTenantConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	n := 3
	if err := RegisterTenantConnections(reg, func() int { return n }); err != nil {
		t.Fatalf("register: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "auth_tenant_connections" {
		t.Fatalf("unexpected families %v", families)
	}
	if got := families[0].GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}

	var already prometheus.AlreadyRegisteredError
	if err := RegisterTenantConnections(reg, func() int { return n }); !errors.As(err, &already) {
		t.Fatalf("expected AlreadyRegisteredError, got %v", err)
	}
}
