package store

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	snapshotsEmitted   prometheus.Counter
	snapshotsDiscarded prometheus.Counter
	snapshotsCoalesced prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: "dexarb", Subsystem: "store", Name: name, Help: help}
	}

	m := &metrics{}
	var err error
	if m.snapshotsEmitted, err = registerCounter(reg, prometheus.NewCounter(opts("snapshots_emitted_total", "Combined snapshots sent to consumers."))); err != nil {
		return nil, err
	}
	if m.snapshotsDiscarded, err = registerCounter(reg, prometheus.NewCounter(opts("snapshots_discarded_total", "Combined snapshots dropped because the consumer fell behind."))); err != nil {
		return nil, err
	}
	if m.snapshotsCoalesced, err = registerCounter(reg, prometheus.NewCounter(opts("snapshots_coalesced_total", "Combined snapshots replaced by a newer one inside the debounce interval."))); err != nil {
		return nil, err
	}
	return m, nil
}

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
