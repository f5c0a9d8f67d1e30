// Package metrics exposes swap client metrics in the Prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Klingon-tech/embarcadero/internal/backend"
	"github.com/Klingon-tech/embarcadero/internal/swap"
)

const namespace = "embarcadero"

// Outcome labels of remote calls.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomeRateLimited = "rate_limited"
)

var knownStatuses = []swap.Status{
	swap.StatusNone,
	swap.StatusCreatingNewSwap,
	swap.StatusLoadingExistingSwap,
	swap.StatusWaitingForYouToAccept,
	swap.StatusWaitingForCounterpartyToAccept,
	swap.StatusWaitingForYouToFinish,
	swap.StatusWaitingForCounterpartyToFinish,
	swap.StatusTransactionPending,
	swap.StatusTransactionConfirmed,
}

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	remoteCalls     *prometheus.CounterVec
	remoteLatency   *prometheus.HistogramVec
	pollTicks       prometheus.Counter
	events          *prometheus.CounterVec
	status          *prometheus.GaugeVec
	consensusHeight prometheus.Gauge
	consensusSynced prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Requests made to the swap service.",
		}, []string{"op", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "call_duration_seconds",
			Help:      "Latency of swap service requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		pollTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "poll_ticks_total",
			Help:      "Background re-summarizations of a pending swap.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session events by type.",
		}, []string{"type"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "status",
			Help:      "1 for the current swap status, 0 otherwise.",
		}, []string{"status"}),
		consensusHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "height",
			Help:      "Block height reported by the swap service.",
		}),
		consensusSynced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "synced",
			Help:      "1 if the swap service node is synced.",
		}),
	}

	m.registry.MustRegister(
		m.remoteCalls,
		m.remoteLatency,
		m.pollTicks,
		m.events,
		m.status,
		m.consensusHeight,
		m.consensusSynced,
		collectors.NewGoCollector(),
	)
	m.setStatus(swap.StatusNone)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRemoteCall implements backend.Recorder.
func (m *Metrics) ObserveRemoteCall(op string, elapsed time.Duration, err error) {
	m.remoteCalls.WithLabelValues(op, outcome(err)).Inc()
	m.remoteLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// PollTick counts one background poll.
func (m *Metrics) PollTick() {
	m.pollTicks.Inc()
}

// Observe is a session event handler.
func (m *Metrics) Observe(ev swap.Event) {
	m.events.WithLabelValues(string(ev.Type)).Inc()
	m.setStatus(ev.Status)
}

// SetConsensus records the latest consensus reading.
func (m *Metrics) SetConsensus(c *backend.Consensus) {
	m.consensusHeight.Set(float64(c.Height))
	if c.Synced {
		m.consensusSynced.Set(1)
	} else {
		m.consensusSynced.Set(0)
	}
}

func (m *Metrics) setStatus(current swap.Status) {
	for _, s := range knownStatuses {
		v := 0.0
		if s == current {
			v = 1
		}
		m.status.WithLabelValues(statusLabel(s)).Set(v)
	}
}

func statusLabel(s swap.Status) string {
	if s == swap.StatusNone {
		return "none"
	}
	return string(s)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, backend.ErrUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, backend.ErrRateLimited):
		return OutcomeRateLimited
	default:
		return OutcomeError
	}
}

// Ensure Metrics implements backend.Recorder
var _ backend.Recorder = (*Metrics)(nil)
