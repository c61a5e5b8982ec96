package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultNamespace = "tictactoe"

// Request results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
)

// Config configures the session metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "tictactoe").
	Namespace string

	// Registry is where the collectors are registered (default: prometheus.DefaultRegisterer).
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the session collectors. A nil *Metrics records nothing.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	requestsTotal     *prometheus.CounterVec
	broadcastsTotal   prometheus.Counter
	broadcastLagged   prometheus.Counter
	matchesConcluded  *prometheus.CounterVec
	malformedMessages prometheus.Counter
}

func New(opts ...Option) *Metrics {
	config := Config{
		Namespace: defaultNamespace,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "connections_active",
			Help:      "Number of connections currently registered with the session",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted connections",
		}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "requests_total",
			Help:      "Total number of requests handled by the session",
		}, []string{"action", "result"}),

		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of notifications published",
		}),

		broadcastLagged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "broadcast_lagged_total",
			Help:      "Total number of notifications dropped for slow subscribers",
		}),

		matchesConcluded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "matches_concluded_total",
			Help:      "Total number of concluded matches",
		}, []string{"outcome"}),

		malformedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "malformed_messages_total",
			Help:      "Total number of inbound lines that could not be decoded",
		}),
	}
}

func (that *Metrics) ConnectionOpened() {
	if that == nil {
		return
	}
	that.connectionsActive.Inc()
	that.connectionsTotal.Inc()
}

func (that *Metrics) ConnectionClosed() {
	if that == nil {
		return
	}
	that.connectionsActive.Dec()
}

func (that *Metrics) RequestHandled(action, result string) {
	if that == nil {
		return
	}
	that.requestsTotal.WithLabelValues(action, result).Inc()
}

func (that *Metrics) Broadcast() {
	if that == nil {
		return
	}
	that.broadcastsTotal.Inc()
}

func (that *Metrics) BroadcastLagged(n uint64) {
	if that == nil {
		return
	}
	that.broadcastLagged.Add(float64(n))
}

func (that *Metrics) MatchConcluded(outcome string) {
	if that == nil {
		return
	}
	that.matchesConcluded.WithLabelValues(outcome).Inc()
}

func (that *Metrics) MalformedMessage() {
	if that == nil {
		return
	}
	that.malformedMessages.Inc()
}
