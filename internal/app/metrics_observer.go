package app

import (
	"context"

	"github.com/annel0/rts-aggro/internal/world"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver переводит отчёты тиков в метрики Prometheus
type MetricsObserver struct {
	world.NopObserver

	tickDuration prometheus.Histogram
	acquired     prometheus.Counter
	lost         prometheus.Counter
	invalidated  prometheus.Counter
	queries      prometheus.Counter
	candidates   prometheus.Counter
	deaths       prometheus.Counter
	units        prometheus.Gauge
	engaged      prometheus.Gauge
}

// NewMetricsObserver создаёт метрики в пространстве имён aggro и регистрирует их в reg
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	m := &MetricsObserver{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aggro",
			Name:      "tick_duration_seconds",
			Help:      "Длительность фазы агрессии.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		acquired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aggro",
			Name:      "targets_acquired_total",
			Help:      "Сколько раз юниты захватили цель.",
		}),
		lost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aggro",
			Name:      "targets_lost_total",
			Help:      "Сколько раз юниты потеряли цель.",
		}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aggro",
			Name:      "targets_invalidated_total",
			Help:      "Сколько целей сброшено из-за гибели.",
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aggro",
			Name:      "queries_total",
			Help:      "Сколько выполнено поисков целей.",
		}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aggro",
			Name:      "candidates_total",
			Help:      "Сколько кандидатов вернули поиски.",
		}),
		deaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aggro",
			Name:      "unit_deaths_total",
			Help:      "Сколько юнитов погибло.",
		}),
		units: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aggro",
			Name:      "units",
			Help:      "Юнитов в мире.",
		}),
		engaged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aggro",
			Name:      "units_engaged",
			Help:      "Юнитов с целью после последнего тика.",
		}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		m.tickDuration, m.acquired, m.lost, m.invalidated,
		m.queries, m.candidates, m.deaths, m.units, m.engaged,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsObserver) UnitDied(context.Context, world.UnitInfo) {
	m.deaths.Inc()
}

func (m *MetricsObserver) TickCompleted(_ context.Context, r world.TickReport) {
	m.tickDuration.Observe(r.Duration.Seconds())
	m.queries.Add(float64(r.Queries))
	m.candidates.Add(float64(r.Candidates))
	m.invalidated.Add(float64(r.Invalidated))
	m.units.Set(float64(r.Units))
	m.engaged.Set(float64(r.Engaged))

	for _, change := range r.Changes {
		if change.Acquired() {
			m.acquired.Inc()
		}
		if change.Lost() {
			m.lost.Inc()
		}
	}
}
