// ABOUTME: Prometheus counters for gate decisions, logins, logouts, and open connections
// ABOUTME: A nil *Recorder is valid and records nothing

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "noty_gateway"

// Recorder holds the gateway's Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry

	admitted    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	logins      prometheus.Counter
	logouts     prometheus.Counter
	connections prometheus.Gauge
}

// New registers the gateway collectors on a fresh registry.
func New(namespace string) *Recorder {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		admitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admitted_requests_total",
			Help:      "Requests forwarded to the messaging pipeline, by client role",
		}, []string{"role"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_requests_total",
			Help:      "Requests rejected by the authentication gate, by reason",
		}, []string{"reason"}),
		logins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Signed sessions minted by the login flow",
		}),
		logouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Logout requests served",
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_connections",
			Help:      "Client connections currently open",
		}),
	}
}

// Admitted counts a request handed to the pipeline.
func (r *Recorder) Admitted(role string) {
	if r == nil {
		return
	}
	r.admitted.WithLabelValues(role).Inc()
}

// Rejected counts a request the gate turned away.
func (r *Recorder) Rejected(reason string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(reason).Inc()
}

// SessionIssued counts a successful login.
func (r *Recorder) SessionIssued() {
	if r == nil {
		return
	}
	r.logins.Inc()
}

// Logout counts a logout.
func (r *Recorder) Logout() {
	if r == nil {
		return
	}
	r.logouts.Inc()
}

// ConnOpened and ConnClosed track the open connection gauge.
func (r *Recorder) ConnOpened() {
	if r == nil {
		return
	}
	r.connections.Inc()
}

func (r *Recorder) ConnClosed() {
	if r == nil {
		return
	}
	r.connections.Dec()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
