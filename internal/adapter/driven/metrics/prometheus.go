// Package metrics exports call counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "yacall"

type Prometheus struct {
	started   *prometheus.CounterVec
	connected *prometheus.CounterVec
	ended     *prometheus.CounterVec
	active    prometheus.Gauge
	fallbacks *prometheus.CounterVec
	failures  *prometheus.CounterVec
	ignored   *prometheus.CounterVec
}

// NewPrometheus creates the call collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_started_total",
			Help:      "Call sessions created, by call type and direction.",
		}, []string{"call_type", "direction"}),
		connected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_connected_total",
			Help:      "Call sessions that reached connected.",
		}, []string{"call_type"}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_ended_total",
			Help:      "Call sessions torn down, by reason.",
		}, []string{"reason"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Call sessions currently in progress.",
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_fallbacks_total",
			Help:      "Media acquisitions that fell back to a lower constraint tier.",
		}, []string{"tier"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_failures_total",
			Help:      "Media acquisitions that failed on every tier, by error kind.",
		}, []string{"kind"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_ignored_total",
			Help:      "Inbound call signals dropped for the current status.",
		}, []string{"type", "status"}),
	}

	for _, c := range []prometheus.Collector{p.started, p.connected, p.ended, p.active, p.fallbacks, p.failures, p.ignored} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) CallStarted(t domain.CallType, outgoing bool) {
	direction := "incoming"
	if outgoing {
		direction = "outgoing"
	}
	p.started.WithLabelValues(string(t), direction).Inc()
	p.active.Inc()
}

func (p *Prometheus) CallConnected(t domain.CallType) {
	p.connected.WithLabelValues(string(t)).Inc()
}

func (p *Prometheus) CallEnded(reason domain.EndReason) {
	p.ended.WithLabelValues(string(reason)).Inc()
	p.active.Dec()
}

func (p *Prometheus) MediaFallback(tier int) {
	p.fallbacks.WithLabelValues(strconv.Itoa(tier)).Inc()
}

func (p *Prometheus) MediaFailed(kind domain.ErrorKind) {
	p.failures.WithLabelValues(string(kind)).Inc()
}

func (p *Prometheus) SignalIgnored(t domain.SignalType, status domain.CallStatus) {
	p.ignored.WithLabelValues(string(t), string(status)).Inc()
}
