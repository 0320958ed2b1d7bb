package arbitrage

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	evaluationDuration prometheus.Histogram
	profitablePaths    prometheus.Gauge
	legFailures        *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{}
	var err error
	if m.evaluationDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dexarb",
		Subsystem: "arbitrage",
		Name:      "evaluation_duration_seconds",
		Help:      "Time spent evaluating every path against one snapshot.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})); err != nil {
		return nil, err
	}
	if m.profitablePaths, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dexarb",
		Subsystem: "arbitrage",
		Name:      "profitable_paths",
		Help:      "Paths above the profit threshold in the last evaluation.",
	})); err != nil {
		return nil, err
	}
	if m.legFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexarb",
		Subsystem: "arbitrage",
		Name:      "leg_failures_total",
		Help:      "Legs that could not be quoted, by exchange.",
	}, []string{"dex"})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("failed to register metric: %w", err)
	}
	return c, nil
}
