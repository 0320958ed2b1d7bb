package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/dexarb/chains"
	"github.com/defistate/dexarb/engine"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// PoolsUpdateSubscriptionMethod is subscribed to under the configured namespace.
	PoolsUpdateSubscriptionMethod = "subscribePoolsUpdate"
)

var (
	// ErrUnknownPoolType is returned for a pool whose type is neither xyk nor stable.
	ErrUnknownPoolType = errors.New("unknown pool type")
	// ErrInvalidPool is returned for a pool missing required fields.
	ErrInvalidPool = errors.New("invalid pool")
)

var _ chains.Adapter = &Client{}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Namespace  string
	Dex        engine.DexName
	Logger     Logger
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Namespace == "" {
		return errors.New("config: Namespace is required")
	}
	if c.Dex == "" {
		return errors.New("config: Dex is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor decodes pools update notifications and forwards them with
// strictly increasing heights. It is decoupled from the networking layer.
type StreamProcessor struct {
	dex        engine.DexName
	lastHeight uint64
	seen       bool
	updateCh   chan engine.PoolUpdate
	logger     Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(dex engine.DexName, logger Logger, bufferSize uint) *StreamProcessor {
	return &StreamProcessor{
		dex:      dex,
		logger:   logger,
		updateCh: make(chan engine.PoolUpdate, bufferSize),
	}
}

// Updates returns a read-only channel for receiving decoded updates.
func (sp *StreamProcessor) Updates() <-chan engine.PoolUpdate {
	return sp.updateCh
}

// ProcessMessage decodes one raw notification. Heights at or below the last
// forwarded height are dropped without error.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	start := time.Now()

	var wire WireUpdate
	if err := json.Unmarshal(rawData, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal pools update: %w", err)
	}

	if sp.seen && wire.Height <= sp.lastHeight {
		sp.logger.Debug("Dropping repeated height", "dex", sp.dex, "height", wire.Height, "last_height", sp.lastHeight)
		return nil
	}

	pools := make([]engine.Pool, 0, len(wire.Pools))
	for i, wp := range wire.Pools {
		pool, err := DecodePool(sp.dex, wp)
		if err != nil {
			return fmt.Errorf("failed to decode pool %d at height %d: %w", i, wire.Height, err)
		}
		pools = append(pools, pool)
	}

	sp.seen, sp.lastHeight = true, wire.Height
	update := engine.PoolUpdate{Pools: pools, Height: wire.Height}

	sp.logger.Debug("Pools update processed",
		"dex", sp.dex,
		"height", wire.Height,
		"pools", len(pools),
		"latency_proc_ms", time.Since(start).Milliseconds(),
		"latency_transport_ms", transportLatency(wire.SentAt, start),
	)

	select {
	case sp.updateCh <- update:
	default:
		sp.logger.Warn("Update buffer full, discarding pools update...", "dex", sp.dex, "height", wire.Height)
	}
	return nil
}

func (sp *StreamProcessor) close() {
	close(sp.updateCh)
}

func transportLatency(sentAt int64, received time.Time) int64 {
	if sentAt == 0 {
		return 0
	}
	return received.Sub(time.Unix(0, sentAt)).Milliseconds()
}

// DecodePool converts a wire pool into an engine pool of dex.
func DecodePool(dex engine.DexName, wp WirePool) (engine.Pool, error) {
	if wp.ID == "" || wp.Token0ID == "" || wp.Token1ID == "" {
		return engine.Pool{}, fmt.Errorf("%w: id and both tokens are required", ErrInvalidPool)
	}
	if wp.Token0Amount.Sign() < 0 || wp.Token1Amount.Sign() < 0 {
		return engine.Pool{}, fmt.Errorf("%w: pool %s has a negative reserve", ErrInvalidPool, wp.ID)
	}

	pool := engine.Pool{
		ID:           wp.ID,
		Dex:          dex,
		Token0ID:     engine.PoolToken(wp.Token0ID),
		Token1ID:     engine.PoolToken(wp.Token1ID),
		Token0Amount: wp.Token0Amount,
		Token1Amount: wp.Token1Amount,
	}

	switch wp.Type {
	case PoolTypeXYK:
		pool.Kind = engine.XYKParams{Fee: wp.Fee, Weight0: wp.Weight0, Weight1: wp.Weight1}
	case PoolTypeStable:
		if wp.StableParams == nil {
			return engine.Pool{}, fmt.Errorf("%w: stable pool %s has no stableParams", ErrInvalidPool, wp.ID)
		}
		sp := wp.StableParams
		pool.Kind = engine.StableParams{
			PriceOfToken1:     sp.PriceOfToken1,
			Amplification:     sp.A,
			Gamma1:            sp.Gamma1,
			Gamma2:            sp.Gamma2,
			LPFee:             sp.LPFee,
			DAOFee:            sp.DAOFee,
			MinTradeSize0For1: sp.MinTradeSize0For1,
			MinTradeSize1For0: sp.MinTradeSize1For0,
			PriceImpactLimit:  sp.PriceImpactLimit,
		}
	default:
		return engine.Pool{}, fmt.Errorf("%w %q for pool %s", ErrUnknownPoolType, wp.Type, wp.ID)
	}
	return pool, nil
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client is an exchange adapter fed by a websocket rpc subscription. It
// reconnects with exponential backoff until its context is cancelled, then
// closes its update channel.
type Client struct {
	dex       engine.DexName
	namespace string
	processor *StreamProcessor
	logger    Logger
}

// NewClient creates a new client with networking enabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		dex:       cfg.Dex,
		namespace: cfg.Namespace,
		processor: NewStreamProcessor(cfg.Dex, cfg.Logger, cfg.BufferSize),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Dex returns the exchange the client feeds.
func (c *Client) Dex() engine.DexName {
	return c.dex
}

// Updates delegates to the processor's update channel.
func (c *Client) Updates() <-chan engine.PoolUpdate {
	return c.processor.Updates()
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer c.processor.close()
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.", "dex", c.dex)
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "dex", c.dex, "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "dex", c.dex, "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.", "dex", c.dex)
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.", "dex", c.dex)
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "dex", c.dex, "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, c.namespace, rawCh, PoolsUpdateSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for data...", "dex", c.dex)
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing message", "dex", c.dex, "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.", "dex", c.dex)
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
