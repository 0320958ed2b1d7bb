package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/patcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAdapter struct {
	dex engine.DexName
	ch  chan engine.PoolUpdate
}

func newMockAdapter(dex engine.DexName) *mockAdapter {
	return &mockAdapter{dex: dex, ch: make(chan engine.PoolUpdate, 16)}
}

func (m *mockAdapter) Dex() engine.DexName { return m.dex }
func (m *mockAdapter) Updates() <-chan engine.PoolUpdate { return m.ch }

func pools(n int, reserve int64) []engine.Pool {
	out := make([]engine.Pool, n)
	for i := range out {
		out[i] = engine.Pool{
			ID:           fmt.Sprintf("%d", i+1),
			Token0ID:     "a",
			Token1ID:     "b",
			Token0Amount: decimal.NewFromInt(reserve),
			Token1Amount: decimal.NewFromInt(reserve),
			Kind:         engine.XYKParams{},
		}
	}
	return out
}

func newTestStore(t *testing.T, cfg Config, adapters ...*mockAdapter) *Store {
	t.Helper()
	cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg.PrometheusRegisterer = prometheus.NewRegistry()
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 8
	}
	s, err := New(cfg)
	require.NoError(t, err)
	for _, a := range adapters {
		require.NoError(t, s.Attach(a))
	}
	return s
}

func TestConfig_Validate(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing logger", cfg: Config{PrometheusRegisterer: prometheus.NewRegistry(), BufferSize: 1}, wantErr: "Logger"},
		{name: "missing registerer", cfg: Config{Logger: logger, BufferSize: 1}, wantErr: "PrometheusRegisterer"},
		{name: "zero buffer", cfg: Config{Logger: logger, PrometheusRegisterer: prometheus.NewRegistry()}, wantErr: "BufferSize"},
		{name: "negative debounce", cfg: Config{Logger: logger, PrometheusRegisterer: prometheus.NewRegistry(), BufferSize: 1, DebounceInterval: -time.Second}, wantErr: "DebounceInterval"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestAttach(t *testing.T) {
	s := newTestStore(t, Config{}, newMockAdapter(engine.DexOsmosis))

	err := s.Attach(newMockAdapter(engine.DexOsmosis))
	assert.ErrorIs(t, err, ErrAlreadyAttached)

	_, _, err = s.Apply(engine.DexShade, engine.PoolUpdate{Height: 1})
	assert.ErrorIs(t, err, ErrNotAttached)
}

func TestApply_Gating(t *testing.T) {
	s := newTestStore(t, Config{}, newMockAdapter(engine.DexOsmosis), newMockAdapter(engine.DexShade))

	_, ready, err := s.Apply(engine.DexOsmosis, engine.PoolUpdate{Height: 10, Pools: pools(5, 100)})
	require.NoError(t, err)
	assert.False(t, ready)
	_, ok := s.Latest()
	assert.False(t, ok)

	snapshot, ready, err := s.Apply(engine.DexShade, engine.PoolUpdate{Height: 3, Pools: pools(8, 100)})
	require.NoError(t, err)
	require.True(t, ready)
	assert.Len(t, snapshot.PoolsOf(engine.DexOsmosis), 5)
	assert.Len(t, snapshot.PoolsOf(engine.DexShade), 8)
	assert.Equal(t, uint64(10), snapshot.HeightOf(engine.DexOsmosis))
	assert.Equal(t, uint64(3), snapshot.HeightOf(engine.DexShade))
	assert.Equal(t, engine.DexShade, snapshot.Updated)
	assert.Len(t, snapshot.Changed, 8)

	// independent cadence: one exchange advancing alone re-emits
	snapshot, ready, err = s.Apply(engine.DexShade, engine.PoolUpdate{Height: 4, Pools: pools(8, 100)})
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Empty(t, snapshot.Changed)
	assert.Equal(t, uint64(4), snapshot.HeightOf(engine.DexShade))
}

func TestApply_DuplicateHeightSuppressed(t *testing.T) {
	s := newTestStore(t, Config{}, newMockAdapter(engine.DexOsmosis), newMockAdapter(engine.DexShade))

	_, _, err := s.Apply(engine.DexOsmosis, engine.PoolUpdate{Height: 10, Pools: pools(5, 100)})
	require.NoError(t, err)
	_, ready, err := s.Apply(engine.DexShade, engine.PoolUpdate{Height: 3, Pools: pools(2, 100)})
	require.NoError(t, err)
	require.True(t, ready)

	_, ready, err = s.Apply(engine.DexOsmosis, engine.PoolUpdate{Height: 10, Pools: pools(7, 999)})
	require.NoError(t, err)
	assert.False(t, ready)

	latest, ok := s.Latest()
	require.True(t, ok)
	require.Len(t, latest.PoolsOf(engine.DexOsmosis), 5)
	assert.Equal(t, "100", latest.PoolsOf(engine.DexOsmosis)[0].Token0Amount.String())
	assert.Equal(t, engine.DexShade, latest.Updated)

	stored, _ := s.differ.Pools().Get(engine.DexOsmosis, "1")
	assert.Equal(t, "100", stored.Token0Amount.String())
}

func TestApply_SnapshotsAreImmutable(t *testing.T) {
	s := newTestStore(t, Config{}, newMockAdapter(engine.DexOsmosis))

	first, ready, err := s.Apply(engine.DexOsmosis, engine.PoolUpdate{Height: 1, Pools: pools(2, 100)})
	require.NoError(t, err)
	require.True(t, ready)

	second, _, err := s.Apply(engine.DexOsmosis, engine.PoolUpdate{Height: 2, Pools: pools(2, 200)})
	require.NoError(t, err)

	assert.Equal(t, "100", first.PoolsOf(engine.DexOsmosis)[0].Token0Amount.String())
	assert.Equal(t, "200", second.PoolsOf(engine.DexOsmosis)[0].Token0Amount.String())
	assert.Equal(t, uint64(1), first.HeightOf(engine.DexOsmosis))
}

func TestRun_GatingScenario(t *testing.T) {
	osmosis := newMockAdapter(engine.DexOsmosis)
	shade := newMockAdapter(engine.DexShade)
	s := newTestStore(t, Config{}, osmosis, shade)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	osmosis.ch <- engine.PoolUpdate{Height: 10, Pools: pools(5, 100)}
	require.Eventually(t, func() bool {
		h, ok := s.differ.Height(engine.DexOsmosis)
		return ok && h == 10
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Snapshots())

	shade.ch <- engine.PoolUpdate{Height: 3, Pools: pools(8, 100)}
	select {
	case snapshot := <-s.Snapshots():
		assert.Equal(t, uint64(10), snapshot.HeightOf(engine.DexOsmosis))
		assert.Equal(t, uint64(3), snapshot.HeightOf(engine.DexShade))
		assert.Len(t, snapshot.PoolsOf(engine.DexShade), 8)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the combined snapshot")
	}

	// a duplicate height from osmosis produces nothing
	osmosis.ch <- engine.PoolUpdate{Height: 10, Pools: pools(5, 300)}
	select {
	case snapshot := <-s.Snapshots():
		t.Fatalf("unexpected snapshot updated by %s", snapshot.Updated)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.snapshotsEmitted))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	_, open := <-s.Snapshots()
	assert.False(t, open)
}

func TestRun_AdapterClosed(t *testing.T) {
	osmosis := newMockAdapter(engine.DexOsmosis)
	s := newTestStore(t, Config{}, osmosis)

	osmosis.ch <- engine.PoolUpdate{Height: 1, Pools: pools(1, 100)}
	close(osmosis.ch)

	require.NoError(t, s.Run(context.Background()))

	var got []engine.Snapshot
	for snapshot := range s.Snapshots() {
		got = append(got, snapshot)
	}
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].HeightOf(engine.DexOsmosis))

	assert.ErrorIs(t, s.Run(context.Background()), ErrRunning)
	assert.ErrorIs(t, s.Attach(newMockAdapter(engine.DexShade)), ErrRunning)
}

func TestRun_Debounce(t *testing.T) {
	osmosis := newMockAdapter(engine.DexOsmosis)
	s := newTestStore(t, Config{DebounceInterval: 100 * time.Millisecond}, osmosis)

	for h := uint64(1); h <= 3; h++ {
		osmosis.ch <- engine.PoolUpdate{Height: h, Pools: pools(1, int64(h*100))}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	select {
	case snapshot := <-s.Snapshots():
		assert.Equal(t, uint64(3), snapshot.HeightOf(engine.DexOsmosis))
		assert.Equal(t, "300", snapshot.PoolsOf(engine.DexOsmosis)[0].Token0Amount.String())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the debounced snapshot")
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.snapshotsCoalesced))
}

func TestPublish_DiscardsOldest(t *testing.T) {
	s := newTestStore(t, Config{BufferSize: 1})

	s.publish(engine.Snapshot{Updated: engine.DexOsmosis})
	s.publish(engine.Snapshot{Updated: engine.DexShade})

	got := <-s.Snapshots()
	assert.Equal(t, engine.DexShade, got.Updated)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.snapshotsDiscarded))
}

func TestApply_RecoversAfterPatchFailure(t *testing.T) {
	errPatch := errors.New("patch failed")

	tests := []struct {
		name string
		// heights osmosis is warmed with before the failing update
		warm []uint64
		fail uint64
		next uint64
	}{
		{name: "first update fails", fail: 10, next: 11},
		{name: "later update fails", warm: []uint64{10}, fail: 11, next: 12},
		{name: "failed height is retried", warm: []uint64{10}, fail: 11, next: 11},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			failNext := false
			flaky := func(prev, changed []engine.Pool) ([]engine.Pool, error) {
				if failNext {
					failNext = false
					return nil, errPatch
				}
				return patcher.DefaultPatcher(prev, changed)
			}

			s, err := New(Config{
				Logger:               slog.New(slog.NewJSONHandler(io.Discard, nil)),
				PrometheusRegisterer: prometheus.NewRegistry(),
				BufferSize:           8,
			}, WithPatcher(engine.DexOsmosis, flaky))
			require.NoError(t, err)
			require.NoError(t, s.Attach(newMockAdapter(engine.DexOsmosis)))
			require.NoError(t, s.Attach(newMockAdapter(engine.DexShade)))

			_, _, err = s.Apply(engine.DexShade, engine.PoolUpdate{Height: 3, Pools: pools(2, 100)})
			require.NoError(t, err)
			for _, h := range tc.warm {
				_, ready, err := s.Apply(engine.DexOsmosis, engine.PoolUpdate{Height: h, Pools: pools(3, 100)})
				require.NoError(t, err)
				require.True(t, ready)
			}
			before, warm := s.Latest()
			lastHeight, seen := s.differ.Height(engine.DexOsmosis)

			failNext = true
			_, ready, err := s.Apply(engine.DexOsmosis, engine.PoolUpdate{Height: tc.fail, Pools: pools(3, 500)})
			require.ErrorIs(t, err, errPatch)
			assert.False(t, ready)

			// nothing moved
			after, ok := s.Latest()
			assert.Equal(t, warm, ok)
			if warm {
				assert.Equal(t, before.HeightOf(engine.DexOsmosis), after.HeightOf(engine.DexOsmosis))
			}
			h, ok := s.differ.Height(engine.DexOsmosis)
			assert.Equal(t, seen, ok)
			assert.Equal(t, lastHeight, h)
			if stored, ok := s.differ.Pools().Get(engine.DexOsmosis, "1"); ok {
				assert.Equal(t, "100", stored.Token0Amount.String())
			}

			snapshot, ready, err := s.Apply(engine.DexOsmosis, engine.PoolUpdate{Height: tc.next, Pools: pools(3, 700)})
			require.NoError(t, err)
			require.True(t, ready)
			assert.Equal(t, tc.next, snapshot.HeightOf(engine.DexOsmosis))
			require.Len(t, snapshot.PoolsOf(engine.DexOsmosis), 3)
			assert.Equal(t, "700", snapshot.PoolsOf(engine.DexOsmosis)[0].Token0Amount.String())
			assert.Len(t, snapshot.Changed, 3)

			// and the exchange keeps advancing
			snapshot, _, err = s.Apply(engine.DexOsmosis, engine.PoolUpdate{Height: tc.next + 1, Pools: pools(3, 800)})
			require.NoError(t, err)
			assert.Equal(t, tc.next+1, snapshot.HeightOf(engine.DexOsmosis))
		})
	}
}

func TestApply_ParamsOnlyChangeReachesSnapshot(t *testing.T) {
	s := newTestStore(t, Config{}, newMockAdapter(engine.DexShade))

	stable := func(price string) []engine.Pool {
		p := pools(1, 1000)
		p[0].Kind = engine.StableParams{PriceOfToken1: decimal.RequireFromString(price)}
		return p
	}

	_, ready, err := s.Apply(engine.DexShade, engine.PoolUpdate{Height: 1, Pools: stable("1")})
	require.NoError(t, err)
	require.True(t, ready)

	snapshot, ready, err := s.Apply(engine.DexShade, engine.PoolUpdate{Height: 2, Pools: stable("1.05")})
	require.NoError(t, err)
	require.True(t, ready)
	require.Len(t, snapshot.Changed, 1)
	got := snapshot.PoolsOf(engine.DexShade)[0].Kind.(engine.StableParams)
	assert.Equal(t, "1.05", got.PriceOfToken1.String())
}
