package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/dexarb/chains"
	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/numeric"
	"github.com/defistate/dexarb/protocols/poolregistry/indexer"
	tokenindexer "github.com/defistate/dexarb/protocols/tokenregistry/indexer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoRoute is recorded on a leg whose solver found no path.
	ErrNoRoute = errors.New("no route")
	// ErrUnknownToken is recorded on a leg whose token has no denom on the exchange.
	ErrUnknownToken = errors.New("unknown token")
	// ErrNoSolver is recorded on a leg whose exchange has no solver configured.
	ErrNoSolver = errors.New("no solver for exchange")
	// ErrAmountTooSmall is recorded when an amount truncates to zero minimal units.
	ErrAmountTooSmall = errors.New("amount rounds to zero")
	// ErrFirstLegFailed is recorded on the second leg when the first one failed.
	ErrFirstLegFailed = errors.New("first leg failed")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SolverFactory binds an exchange's solver to one pool set.
type SolverFactory func(pools chains.PoolView) chains.Solver

// Config holds the configuration for the comparator.
type Config struct {
	Pairs []Pair
	// MinProfitPercent is the return above AmountIn, in percent, a path needs to be profitable.
	MinProfitPercent decimal.Decimal
	Tokens           tokenindexer.IndexedTokenSystem
	// Solvers must hold exactly two exchanges.
	Solvers map[engine.DexName]SolverFactory

	Logger               Logger
	PrometheusRegisterer prometheus.Registerer
	BufferSize           uint
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.PrometheusRegisterer == nil {
		return errors.New("config: PrometheusRegisterer is required")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	if len(c.Solvers) != 2 {
		return errors.New("config: Solvers must hold exactly two exchanges")
	}
	for dex, solver := range c.Solvers {
		if solver == nil {
			return fmt.Errorf("config: solver for %s cannot be nil", dex)
		}
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.MinProfitPercent.Sign() < 0 {
		return errors.New("config: MinProfitPercent must not be negative")
	}
	for _, p := range c.Pairs {
		if p.Token0 == "" || p.Token1 == "" || p.Token0 == p.Token1 {
			return fmt.Errorf("config: invalid pair %s", p)
		}
		if p.AmountIn.Sign() <= 0 {
			return fmt.Errorf("config: pair %s needs a positive AmountIn", p)
		}
	}
	return nil
}

// Comparator evaluates every configured pair in both directions on each
// combined snapshot. It owns its ArbPaths and only hands out copies.
type Comparator struct {
	pairs   []Pair
	tokens  tokenindexer.IndexedTokenSystem
	solvers map[engine.DexName]SolverFactory
	dexes   [2]engine.DexName
	factor  decimal.Decimal // 1 + MinProfitPercent/100

	mu    sync.Mutex // serializes evaluations over paths
	paths map[string]*ArbPath
	order []string

	logger  Logger
	metrics *metrics
	arbsCh  chan []ArbPath
}

// New creates a Comparator. The exchanges are ordered by name so path ids
// are stable across runs.
func New(cfg Config) (*Comparator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m, err := newMetrics(cfg.PrometheusRegisterer)
	if err != nil {
		return nil, err
	}

	var dexes [2]engine.DexName
	i := 0
	for dex := range cfg.Solvers {
		dexes[i] = dex
		i++
	}
	if dexes[1] < dexes[0] {
		dexes[0], dexes[1] = dexes[1], dexes[0]
	}

	factor := numeric.One.Add(cfg.MinProfitPercent.Shift(-2))

	c := &Comparator{
		pairs:   append([]Pair(nil), cfg.Pairs...),
		tokens:  cfg.Tokens,
		solvers: cfg.Solvers,
		dexes:   dexes,
		factor:  factor,
		paths:   make(map[string]*ArbPath, 2*len(cfg.Pairs)),
		logger:  cfg.Logger,
		metrics: m,
		arbsCh:  make(chan []ArbPath, cfg.BufferSize),
	}

	for _, pair := range c.pairs {
		forward := pathID(pair, dexes[0], dexes[1])
		reverse := pathID(pair, dexes[1], dexes[0])
		c.paths[forward] = newArbPath(pair, forward, reverse, dexes[0], dexes[1], factor)
		c.paths[reverse] = newArbPath(pair, reverse, forward, dexes[1], dexes[0], factor)
		c.order = append(c.order, forward, reverse)
	}
	return c, nil
}

func newArbPath(pair Pair, id, reverseID string, dex0, dex1 engine.DexName, factor decimal.Decimal) *ArbPath {
	return &ArbPath{
		ID:        id,
		ReverseID: reverseID,
		Dex0:      dex0,
		Dex1:      dex1,
		AmountIn:  pair.AmountIn,
		Route0:    chains.Route{},
		Route1:    chains.Route{},
		Pair:      [2]engine.Token{pair.Token0, pair.Token1},
		threshold: pair.AmountIn.Mul(factor),
	}
}

// Arbs returns the stream of evaluated path sets. It is closed when Run returns.
func (c *Comparator) Arbs() <-chan []ArbPath {
	return c.arbsCh
}

// Run evaluates every snapshot received until ctx is cancelled or snapshots
// is closed. Each evaluation emits the full path set; when the consumer falls
// behind the emission is discarded.
func (c *Comparator) Run(ctx context.Context, snapshots <-chan engine.Snapshot) error {
	defer close(c.arbsCh)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-snapshots:
			if !ok {
				c.logger.Warn("Snapshot channel closed, comparator stopped")
				return nil
			}
			arbs := c.Evaluate(snapshot)
			select {
			case c.arbsCh <- arbs:
			case <-ctx.Done():
				return nil
			default:
				c.logger.Warn("Arb buffer full, discarding evaluation...", "updated", snapshot.Updated)
			}
		}
	}
}

// Evaluate recomputes every path against snapshot and returns a copy of the
// full set, in configuration order with each forward path followed by its
// reverse. Leg failures are recorded on the path, never returned.
// It is safe to call while Run is running; evaluations do not overlap.
func (c *Comparator) Evaluate(snapshot engine.Snapshot) []ArbPath {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := prometheus.NewTimer(c.metrics.evaluationDuration)
	defer timer.ObserveDuration()

	solvers := make(map[engine.DexName]chains.Solver, len(c.dexes))
	for _, dex := range c.dexes {
		solvers[dex] = c.solvers[dex](indexer.NewIndexablePools(snapshot.PoolsOf(dex)))
	}

	out := make([]ArbPath, 0, len(c.order))
	profitable := 0
	for _, id := range c.order {
		path := c.paths[id]
		c.evaluatePath(path, snapshot, solvers)
		if path.Profitable() {
			profitable++
			c.logger.Info("Profitable path", "id", path.ID, "amountIn", path.AmountIn, "amountOut", path.AmountOut)
		}
		out = append(out, clonePath(path))
	}
	c.metrics.profitablePaths.Set(float64(profitable))
	return out
}

func (c *Comparator) evaluatePath(path *ArbPath, snapshot engine.Snapshot, solvers map[engine.DexName]chains.Solver) {
	path.Height0 = snapshot.HeightOf(path.Dex0)
	path.Height1 = snapshot.HeightOf(path.Dex1)

	route0, bridge, err := c.leg(solvers[path.Dex0], path.Dex0, path.AmountIn, path.Pair[0], path.Pair[1])
	if err != nil {
		c.metrics.legFailures.WithLabelValues(string(path.Dex0)).Inc()
		path.Route0, path.AmountBridge, path.Error0 = chains.Route{}, decimal.Zero, err.Error()
		path.Route1, path.AmountOut, path.Error1 = chains.Route{}, decimal.Zero, ErrFirstLegFailed.Error()
		return
	}
	path.Route0, path.AmountBridge, path.Error0 = route0, bridge, ""

	route1, out, err := c.leg(solvers[path.Dex1], path.Dex1, bridge, path.Pair[1], path.Pair[0])
	if err != nil {
		c.metrics.legFailures.WithLabelValues(string(path.Dex1)).Inc()
		path.Route1, path.AmountOut, path.Error1 = chains.Route{}, decimal.Zero, err.Error()
		return
	}
	path.Route1, path.AmountOut, path.Error1 = route1, out, ""
}

// leg swaps amount of from into to on dex and returns the best route and its
// output, both amounts in display units.
func (c *Comparator) leg(solver chains.Solver, dex engine.DexName, amount decimal.Decimal, from, to engine.Token) (chains.Route, decimal.Decimal, error) {
	if solver == nil {
		return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrNoSolver, dex)
	}
	tokenIn, ok := c.tokens.GetBySymbol(dex, from)
	if !ok {
		return nil, decimal.Zero, fmt.Errorf("%w: %s on %s", ErrUnknownToken, from, dex)
	}
	tokenOut, ok := c.tokens.GetBySymbol(dex, to)
	if !ok {
		return nil, decimal.Zero, fmt.Errorf("%w: %s on %s", ErrUnknownToken, to, dex)
	}

	amountIn, err := decimal.NewFromString(numeric.ToMinimal(amount, tokenIn.Decimals))
	if err != nil {
		return nil, decimal.Zero, err
	}
	if amountIn.Sign() <= 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: %s %s", ErrAmountTooSmall, amount, from)
	}

	quotes, err := solver.QuoteExactIn(amountIn, tokenIn.Denom, tokenOut.Denom)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if len(quotes) == 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: %s -> %s on %s", ErrNoRoute, from, to, dex)
	}

	best := quotes[0]
	out, err := numeric.FromMinimal(best.AmountOut.String(), tokenOut.Decimals)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return best.Route, out, nil
}

func clonePath(p *ArbPath) ArbPath {
	c := *p
	c.Route0 = append(chains.Route{}, p.Route0...)
	c.Route1 = append(chains.Route{}, p.Route1...)
	return c
}
