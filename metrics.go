package gourdianguard

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Verification results recorded by Metrics.
const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultError    = "error"
)

// otherClientType labels issued tokens whose client type is not tracked.
const otherClientType = "other"

// DefaultClientTypeLabels are the client types NewMetrics tracks by default.
var DefaultClientTypeLabels = []string{"web", "mobile", "desktop", "api"}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithClientTypeLabels replaces the client types that get their own label value.
// Every other client type is counted as "other".
func WithClientTypeLabels(clientTypes ...string) MetricsOption {
	return func(m *Metrics) {
		m.clientTypes = make(map[string]struct{}, len(clientTypes))
		for _, ct := range clientTypes {
			m.clientTypes[normalizeClientType(ct)] = struct{}{}
		}
	}
}

// Metrics holds the Prometheus counters a Service reports to. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	clientTypes map[string]struct{}

	issued        *prometheus.CounterVec
	verifications *prometheus.CounterVec
	evicted       *prometheus.CounterVec
	revocations   *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer, opts ...MetricsOption) (*Metrics, error) {
	m := &Metrics{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gourdianguard",
			Name:      "tokens_issued_total",
			Help:      "Token pairs issued, by guard and client type.",
		}, []string{"guard", "client_type"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gourdianguard",
			Name:      "verifications_total",
			Help:      "Token verifications, by guard, token kind and result.",
		}, []string{"guard", "kind", "result"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gourdianguard",
			Name:      "sessions_evicted_total",
			Help:      "Sessions evicted by the per client type capacity policy.",
		}, []string{"guard"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gourdianguard",
			Name:      "revocations_total",
			Help:      "Revocations, by guard and scope (one or all).",
		}, []string{"guard", "scope"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gourdianguard",
			Name:      "refreshes_total",
			Help:      "Access token refreshes, by guard and result.",
		}, []string{"guard", "result"}),
	}

	WithClientTypeLabels(DefaultClientTypeLabels...)(m)
	for _, opt := range opts {
		opt(m)
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.issued, m.verifications, m.evicted, m.revocations, m.refreshes} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) tokenIssued(guard, clientType string, evicted int) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(guard, m.clientTypeLabel(clientType)).Inc()
	if evicted > 0 {
		m.evicted.WithLabelValues(guard).Add(float64(evicted))
	}
}

func (m *Metrics) clientTypeLabel(clientType string) string {
	if _, ok := m.clientTypes[clientType]; ok {
		return clientType
	}
	return otherClientType
}

func (m *Metrics) verified(guard string, kind TokenType, err error) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(guard, string(kind), resultFor(err)).Inc()
}

func (m *Metrics) revoked(guard string, all bool) {
	if m == nil {
		return
	}
	scope := "one"
	if all {
		scope = "all"
	}
	m.revocations.WithLabelValues(guard, scope).Inc()
}

func (m *Metrics) refreshed(guard string, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(guard, resultFor(err)).Inc()
}

// resultFor buckets an outcome: ok, rejected for credential problems the caller
// caused, error for server-side failures.
func resultFor(err error) string {
	switch {
	case err == nil:
		return resultOK
	case HTTPStatus(err) >= 500:
		return resultError
	default:
		return resultRejected
	}
}
