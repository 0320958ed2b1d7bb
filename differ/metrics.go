package differ

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	diffDuration    *prometheus.HistogramVec
	updatesAccepted *prometheus.CounterVec
	updatesDropped  *prometheus.CounterVec
	poolsChanged    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dexarb",
			Subsystem: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Time spent diffing one exchange update.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"dex"}),
		updatesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexarb",
			Subsystem: "differ",
			Name:      "updates_accepted_total",
			Help:      "Exchange updates accepted at a new height.",
		}, []string{"dex"}),
		updatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexarb",
			Subsystem: "differ",
			Name:      "updates_dropped_total",
			Help:      "Exchange updates dropped for a non-increasing height.",
		}, []string{"dex"}),
		poolsChanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexarb",
			Subsystem: "differ",
			Name:      "pools_changed_total",
			Help:      "Pools whose reserves changed in an accepted update.",
		}, []string{"dex"}),
	}

	var err error
	if m.diffDuration, err = register(reg, m.diffDuration); err != nil {
		return nil, err
	}
	if m.updatesAccepted, err = register(reg, m.updatesAccepted); err != nil {
		return nil, err
	}
	if m.updatesDropped, err = register(reg, m.updatesDropped); err != nil {
		return nil, err
	}
	if m.poolsChanged, err = register(reg, m.poolsChanged); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, reusing an identical collector that is already registered.
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
