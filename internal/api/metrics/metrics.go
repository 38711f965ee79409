// Package metrics defines and registers the Prometheus metrics of the auth
// backend. It is the single source of truth for metric names, labels, and
// help strings. Metrics register with the default registry at init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auth"

// Transport label values.
const (
	TransportHTTP   = "http"
	TransportSocket = "socket"
)

// ── Auth operations ──────────────────────────────────────────────────────────

// OperationsTotal counts auth operations.
// Labels:
//   - transport: "http" or "socket"
//   - operation: "register", "login", "refresh_token", "me", "federated_callback", …
//   - result: "ok" or the failure message key (e.g. "incorrect_password")
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of auth operations, by transport, operation and result.",
	},
	[]string{"transport", "operation", "result"},
)

// TokenRejectionsTotal counts bearer tokens rejected by authentication.
// Label:
//   - reason: the failure message key (e.g. "token_has_expired")
var TokenRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_rejections_total",
		Help:      "Total number of rejected bearer tokens, by reason.",
	},
	[]string{"reason"},
)

// ── Connections ──────────────────────────────────────────────────────────────

// SocketConnections tracks currently open persistent connections.
var SocketConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "socket_connections",
		Help:      "Current number of open socket connections.",
	},
)

// PresenceQueueDepth tracks pending offline updates in each presence worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var PresenceQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "presence_queue_depth",
		Help:      "Current number of offline updates pending in each presence worker channel.",
	},
	[]string{"worker_id"},
)

// RegisterTenantConnections exposes the number of cached tenant connections.
// count is called on every scrape. Registering twice returns the
// AlreadyRegisteredError from the registry.
func RegisterTenantConnections(reg prometheus.Registerer, count func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tenant_connections",
			Help:      "Number of tenant connections cached by the tenant directory.",
		},
		func() float64 { return float64(count()) },
	))
}

// Observe records one operation outcome.
func Observe(transport, operation, result string) {
	OperationsTotal.WithLabelValues(transport, operation, result).Inc()
}
