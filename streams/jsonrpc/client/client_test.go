package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/defistate/dexarb/engine"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Setup: Mock RPC Server ---

type MockPoolsFeed struct {
	events chan json.RawMessage
	t      *testing.T
}

func SetupMockPoolsFeed(ctx context.Context, t *testing.T, port int, events []json.RawMessage) error {
	eventChan := make(chan json.RawMessage, len(events))
	for _, e := range events {
		eventChan <- e
	}
	close(eventChan)

	api := &MockPoolsFeed{events: eventChan, t: t}
	server := rpc.NewServer()
	if err := server.RegisterName("osmosis", api); err != nil {
		return fmt.Errorf("failed to register API: %v", err)
	}

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: server.WebsocketHandler([]string{"*"})}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("mock server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		server.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	return nil
}

func (api *MockPoolsFeed) SubscribePoolsUpdate(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	go func() {
		for event := range api.events {
			select {
			case <-rpcSub.Err():
				return
			default:
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					api.t.Logf("Error notifying subscriber: %v", err)
					return
				}
			}
		}
	}()
	return rpcSub, nil
}

// --- Test Helpers ---

func update(height uint64, pools string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"height":%d,"pools":[%s]}`, height, pools))
}

const (
	xykPoolJSON    = `{"id":"1","type":"xyk","token0Id":"uatom","token1Id":"uosmo","token0Amount":"1000000","token1Amount":"2000000","fee":"0.003"}`
	stablePoolJSON = `{"id":"s","type":"stable","token0Id":"usdc","token1Id":"usdt","token0Amount":"500","token1Amount":"600",` +
		`"stableParams":{"priceOfToken1":"1","a":"10","gamma1":"1","gamma2":"2","lpFee":"0.001","daoFee":"0.0005","minTradeSize0For1":"100","minTradeSize1For0":"100","priceImpactLimit":"5"}}`
)

func newTestClient(ctx context.Context, t *testing.T, port int) *Client {
	t.Helper()
	client, err := NewClient(ctx, Config{
		URL:        fmt.Sprintf("ws://localhost:%d", port),
		Namespace:  "osmosis",
		Dex:        engine.DexOsmosis,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		BufferSize: 10,
	})
	require.NoError(t, err)
	return client
}

func receive(t *testing.T, ch <-chan engine.PoolUpdate, timeout time.Duration) engine.PoolUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(timeout):
		t.Fatal("timed out waiting for pools update")
	}
	return engine.PoolUpdate{}
}

// --- Tests ---

func TestConfig_Validate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing url", cfg: Config{Namespace: "osmosis", Dex: engine.DexOsmosis, Logger: logger, BufferSize: 1}, wantErr: "URL"},
		{name: "missing namespace", cfg: Config{URL: "ws://x", Dex: engine.DexOsmosis, Logger: logger, BufferSize: 1}, wantErr: "Namespace"},
		{name: "missing dex", cfg: Config{URL: "ws://x", Namespace: "osmosis", Logger: logger, BufferSize: 1}, wantErr: "Dex"},
		{name: "zero buffer", cfg: Config{URL: "ws://x", Namespace: "osmosis", Dex: engine.DexOsmosis, Logger: logger}, wantErr: "BufferSize"},
		{name: "missing logger", cfg: Config{URL: "ws://x", Namespace: "osmosis", Dex: engine.DexOsmosis, BufferSize: 1}, wantErr: "Logger"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(context.Background(), tc.cfg)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestClient_SuccessfulSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, SetupMockPoolsFeed(ctx, t, 9988, []json.RawMessage{update(10, xykPoolJSON+","+stablePoolJSON)}))
	client := newTestClient(ctx, t, 9988)
	assert.Equal(t, engine.DexOsmosis, client.Dex())

	u := receive(t, client.Updates(), 3*time.Second)
	assert.Equal(t, uint64(10), u.Height)
	require.Len(t, u.Pools, 2)

	xyk := u.Pools[0]
	assert.Equal(t, engine.DexOsmosis, xyk.Dex)
	assert.Equal(t, "2000000", xyk.Token1Amount.String())
	params, ok := xyk.Kind.(engine.XYKParams)
	require.True(t, ok)
	assert.Equal(t, "0.003", params.Fee.String())

	stable, ok := u.Pools[1].Kind.(engine.StableParams)
	require.True(t, ok)
	assert.Equal(t, "10", stable.Amplification.String())
	assert.Equal(t, "2", stable.Gamma2.String())
	assert.Equal(t, "5", stable.PriceImpactLimit.String())
}

func TestClient_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(ctx, t, 9986) // nothing listens here

	cancel()
	select {
	case _, open := <-client.Updates():
		assert.False(t, open)
	case <-time.After(3 * time.Second):
		t.Fatal("update channel was not closed")
	}
}

func TestClient_Reconnection(t *testing.T) {
	const testPort = 9990
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	client := newTestClient(clientCtx, t, testPort)

	server1Ctx, server1Cancel := context.WithCancel(clientCtx)
	require.NoError(t, SetupMockPoolsFeed(server1Ctx, t, testPort, []json.RawMessage{update(1, xykPoolJSON)}))

	u := receive(t, client.Updates(), 5*time.Second)
	assert.Equal(t, uint64(1), u.Height)

	server1Cancel()
	time.Sleep(100 * time.Millisecond)

	server2Ctx, server2Cancel := context.WithCancel(clientCtx)
	defer server2Cancel()
	// the new server replays height 1 before moving on
	require.NoError(t, SetupMockPoolsFeed(server2Ctx, t, testPort, []json.RawMessage{update(1, xykPoolJSON), update(2, xykPoolJSON)}))

	u = receive(t, client.Updates(), 10*time.Second)
	assert.Equal(t, uint64(2), u.Height)
}

// --- StreamProcessor Tests ---

func TestStreamProcessor_HeightsStrictlyIncrease(t *testing.T) {
	sp := NewStreamProcessor(engine.DexShade, slog.New(slog.NewTextHandler(io.Discard, nil)), 10)

	for _, h := range []uint64{5, 5, 4, 6, 6, 7} {
		require.NoError(t, sp.ProcessMessage(update(h, xykPoolJSON)))
	}

	var heights []uint64
	for len(sp.Updates()) > 0 {
		heights = append(heights, (<-sp.Updates()).Height)
	}
	assert.Equal(t, []uint64{5, 6, 7}, heights)
}

func TestStreamProcessor_RejectsBadMessages(t *testing.T) {
	tests := []struct {
		name    string
		raw     json.RawMessage
		wantErr error
	}{
		{name: "malformed json", raw: json.RawMessage(`{not-json}`)},
		{name: "unknown type", raw: update(1, `{"id":"1","type":"concentrated","token0Id":"a","token1Id":"b","token0Amount":"1","token1Amount":"1"}`), wantErr: ErrUnknownPoolType},
		{name: "missing token", raw: update(1, `{"id":"1","type":"xyk","token0Id":"a","token0Amount":"1","token1Amount":"1"}`), wantErr: ErrInvalidPool},
		{name: "negative reserve", raw: update(1, `{"id":"1","type":"xyk","token0Id":"a","token1Id":"b","token0Amount":"-1","token1Amount":"1"}`), wantErr: ErrInvalidPool},
		{name: "stable without params", raw: update(1, `{"id":"1","type":"stable","token0Id":"a","token1Id":"b","token0Amount":"1","token1Amount":"1"}`), wantErr: ErrInvalidPool},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sp := NewStreamProcessor(engine.DexShade, slog.New(slog.NewTextHandler(io.Discard, nil)), 10)
			err := sp.ProcessMessage(tc.raw)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			assert.Empty(t, sp.Updates())

			// a rejected message does not consume its height
			require.NoError(t, sp.ProcessMessage(update(1, xykPoolJSON)))
			assert.Len(t, sp.Updates(), 1)
		})
	}
}

func TestStreamProcessor_BufferFull(t *testing.T) {
	sp := NewStreamProcessor(engine.DexShade, slog.New(slog.NewTextHandler(io.Discard, nil)), 1)

	require.NoError(t, sp.ProcessMessage(update(1, xykPoolJSON)))
	require.NoError(t, sp.ProcessMessage(update(2, xykPoolJSON)))

	assert.Equal(t, uint64(1), (<-sp.Updates()).Height)
	assert.Empty(t, sp.Updates())
}
