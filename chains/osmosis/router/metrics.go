package router

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	hits, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dexarb",
		Subsystem: "router",
		Name:      "candidate_cache_hits_total",
		Help:      "Candidate route lookups served from the cache.",
	}))
	if err != nil {
		return nil, err
	}
	misses, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dexarb",
		Subsystem: "router",
		Name:      "candidate_cache_misses_total",
		Help:      "Candidate route lookups that recomputed the routes.",
	}))
	if err != nil {
		return nil, err
	}
	return &metrics{cacheHits: hits, cacheMisses: misses}, nil
}

// registerCounter registers c, reusing an identical collector that is already registered.
func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to register metric: %w", err)
	}
	return c, nil
}
