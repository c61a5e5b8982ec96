package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("Connections", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		m := New(WithRegistry(registry))

		m.ConnectionOpened()
		m.ConnectionOpened()
		m.ConnectionClosed()

		assert.InDelta(t, 1, testutil.ToFloat64(m.connectionsActive), 0)
		assert.InDelta(t, 2, testutil.ToFloat64(m.connectionsTotal), 0)
	})

	t.Run("Labelled counters", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		m := New(WithRegistry(registry))

		m.RequestHandled("chat", ResultOK)
		m.RequestHandled("chat", ResultOK)
		m.RequestHandled("game:turn", ResultError)
		m.MatchConcluded("draw")

		assert.InDelta(t, 2, testutil.ToFloat64(m.requestsTotal.WithLabelValues("chat", ResultOK)), 0)
		assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("game:turn", ResultError)), 0)
		assert.InDelta(t, 1, testutil.ToFloat64(m.matchesConcluded.WithLabelValues("draw")), 0)
	})

	t.Run("Broadcast and lag", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		m := New(WithRegistry(registry))

		m.Broadcast()
		m.BroadcastLagged(3)
		m.MalformedMessage()

		assert.InDelta(t, 1, testutil.ToFloat64(m.broadcastsTotal), 0)
		assert.InDelta(t, 3, testutil.ToFloat64(m.broadcastLagged), 0)
		assert.InDelta(t, 1, testutil.ToFloat64(m.malformedMessages), 0)
	})

	t.Run("Namespace", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		m := New(WithRegistry(registry), WithNamespace("test"))
		m.ConnectionOpened()

		families, err := registry.Gather()
		require.NoError(t, err)

		var names []string
		for _, family := range families {
			names = append(names, family.GetName())
		}
		assert.Contains(t, names, "test_connections_active")
		assert.Contains(t, names, "test_connections_total")
	})

	t.Run("Nil metrics record nothing", func(t *testing.T) {
		var m *Metrics

		assert.NotPanics(t, func() {
			m.ConnectionOpened()
			m.ConnectionClosed()
			m.RequestHandled("chat", ResultOK)
			m.Broadcast()
			m.BroadcastLagged(1)
			m.MatchConcluded("win")
			m.MalformedMessage()
		})
	})
}
