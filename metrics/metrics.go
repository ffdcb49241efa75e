// Package metrics records dispatcher activity as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bjaus/lcservice"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetry   = "retry"
)

// Metrics holds the collectors fed by the dispatcher hooks.
type Metrics struct {
	reg prometheus.Registerer

	EnvelopesTotal  *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
	FaultsTotal     *prometheus.CounterVec
	LateTotal       *prometheus.CounterVec
	LateBy          *prometheus.HistogramVec
	RejectionsTotal *prometheus.CounterVec
	DispatchedTotal *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		EnvelopesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lcservice_envelopes_total",
				Help: "Envelopes handled, by event type and outcome",
			},
			[]string{"etype", "outcome"},
		),
		HandlerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lcservice_handler_duration_seconds",
				Help:    "Duration of handler execution in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"etype"},
		),
		FaultsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lcservice_handler_faults_total",
				Help: "Handlers that returned an error or panicked",
			},
			[]string{"etype", "kind"},
		),
		LateTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lcservice_late_total",
				Help: "Handlers that finished past the envelope deadline",
			},
			[]string{"etype"},
		),
		LateBy: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lcservice_late_by_seconds",
				Help:    "How far past the deadline late handlers finished",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"etype"},
		),
		RejectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lcservice_rejections_total",
				Help: "Envelopes refused before dispatch, by reason",
			},
			[]string{"etype", "reason"},
		),
		DispatchedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lcservice_dispatched_total",
				Help: "Envelopes handed to a handler",
			},
			[]string{"etype"},
		),
	}
}

// Options returns the service options feeding m.
func (m *Metrics) Options() []lcservice.Option {
	return []lcservice.Option{
		lcservice.WithOnDispatch(func(_ context.Context, etype lcservice.EventType, _ string) {
			m.DispatchedTotal.WithLabelValues(label(etype)).Inc()
		}),
		lcservice.WithOnComplete(func(_ context.Context, etype lcservice.EventType, r lcservice.Response, d time.Duration) {
			m.EnvelopesTotal.WithLabelValues(label(etype), outcome(r)).Inc()
			m.HandlerDuration.WithLabelValues(label(etype)).Observe(d.Seconds())
		}),
		lcservice.WithOnFault(func(_ context.Context, etype lcservice.EventType, err error) {
			m.FaultsTotal.WithLabelValues(label(etype), faultKind(err)).Inc()
		}),
		lcservice.WithOnLate(func(_ context.Context, etype lcservice.EventType, over time.Duration) {
			m.LateTotal.WithLabelValues(label(etype)).Inc()
			m.LateBy.WithLabelValues(label(etype)).Observe(over.Seconds())
		}),
		lcservice.WithOnReject(func(_ context.Context, etype lcservice.EventType, err error) {
			m.RejectionsTotal.WithLabelValues(label(etype), rejectReason(err)).Inc()
		}),
	}
}

// Watch exports the in-flight handler count of svc.
func (m *Metrics) Watch(svc *lcservice.Service) error {
	return m.reg.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "lcservice_calls_in_progress",
			Help:        "Handlers currently running, health checks excluded",
			ConstLabels: prometheus.Labels{"service": svc.Name()},
		},
		func() float64 { return float64(svc.InFlight()) },
	))
}

// label bounds the label cardinality: event types the protocol does not
// define share one value.
func label(etype lcservice.EventType) string {
	if etype.Known() {
		return string(etype)
	}
	return "unknown"
}

func outcome(r lcservice.Response) string {
	switch {
	case r.Success:
		return OutcomeSuccess
	case r.Retry:
		return OutcomeRetry
	default:
		return OutcomeFailure
	}
}

func faultKind(err error) string {
	var pe *lcservice.PanicError
	if errors.As(err, &pe) {
		return "panic"
	}
	return "error"
}

func rejectReason(err error) string {
	var pe *lcservice.ParamError
	switch {
	case errors.Is(err, lcservice.ErrUnsupportedVersion):
		return "version"
	case errors.Is(err, lcservice.ErrNotImplemented):
		return "not_implemented"
	case errors.As(err, &pe):
		return "params"
	default:
		return "other"
	}
}
