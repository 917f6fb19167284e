package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - счетчики оркестратора и рассылки
type Metrics struct {
	TicksTotal         *prometheus.CounterVec
	TriggersEnqueued   *prometheus.CounterVec
	TriggersProcessed  *prometheus.CounterVec
	GenerationFailures prometheus.Counter
	GenerationSeconds  prometheus.Histogram
	ActiveWorkers      prometheus.Gauge
	Subscribers        prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_ticks_total",
			Help: "Dispatch ticks by outcome",
		}, []string{"outcome"}),
		TriggersEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_triggers_enqueued_total",
			Help: "Triggers enqueued by step",
		}, []string{"step"}),
		TriggersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_triggers_processed_total",
			Help: "Triggers removed from the queue by result",
		}, []string{"step", "result"}),
		GenerationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engagement_generation_exhausted_total",
			Help: "Generation calls that failed after all retries",
		}),
		GenerationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engagement_generation_seconds",
			Help:    "Duration of generation calls including retries",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engagement_room_workers",
			Help: "Rooms with a live dispatch worker",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engagement_ws_subscribers",
			Help: "Connected websocket subscribers",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TicksTotal,
			m.TriggersEnqueued,
			m.TriggersProcessed,
			m.GenerationFailures,
			m.GenerationSeconds,
			m.ActiveWorkers,
			m.Subscribers,
		)
	}
	return m
}
