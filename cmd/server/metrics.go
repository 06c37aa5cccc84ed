package main

import (
	"context"

	"github.com/lychee-technology/eavcache/internal"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics turns telemetry emitted by the metadata cache into Prometheus series.
type metrics struct {
	populationLatency *prometheus.HistogramVec
	cacheResults      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		populationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    internal.MetricPopulationLatency,
			Help:    "Duration of metadata cache population passes in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"table", "origin"}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: internal.MetricSecondaryCacheResult + "_total",
			Help: "Secondary cache accesses by key and outcome.",
		}, []string{"key", "outcome"}),
	}
	reg.MustRegister(m.populationLatency, m.cacheResults)
	return m
}

// emit is registered as the telemetry emitter.
func (m *metrics) emit(_ context.Context, name string, labels map[string]string, value any) {
	switch name {
	case internal.MetricPopulationLatency:
		ms, ok := value.(int64)
		if !ok {
			return
		}
		m.populationLatency.WithLabelValues(labels["table"], labels["origin"]).Observe(float64(ms))
	case internal.MetricSecondaryCacheResult:
		m.cacheResults.WithLabelValues(labels["key"], labels["outcome"]).Inc()
	}
}
