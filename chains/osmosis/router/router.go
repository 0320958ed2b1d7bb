package router

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/defistate/dexarb/chains"
	"github.com/defistate/dexarb/chains/shade/pathfinder"
	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/protocols/tokenpoolregistry"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxHops   = 3
	DefaultMaxRoutes = 4
	DefaultCacheSize = 1024
)

var (
	// ErrInvalidAmount is returned for a non-positive input amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrAllRoutesFailed is returned when candidate routes exist but none could be priced.
	ErrAllRoutesFailed = errors.New("every route failed")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the search restrictions of the router.
//
// The router only explores pools that hold HubToken, pools listed in
// IncentivizedPools, and pools trading the requested pair directly. An empty
// IncentivizedPools list leaves every pool eligible.
type Config struct {
	HubToken          engine.PoolToken
	IncentivizedPools []string
	MaxHops           int
	MaxRoutes         int
	CacheSize         int

	Logger               Logger
	PrometheusRegisterer prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.PrometheusRegisterer == nil {
		return errors.New("config: PrometheusRegisterer is required")
	}
	if c.MaxHops < 0 || c.MaxRoutes < 0 || c.CacheSize < 0 {
		return errors.New("config: MaxHops, MaxRoutes and CacheSize must not be negative")
	}
	return nil
}

// pairKey orders the two denoms so both swap directions share one entry.
type pairKey struct {
	a, b engine.PoolToken
}

func newPairKey(x, y engine.PoolToken) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// candidates are the pool id sequences from key.a to key.b, found over an
// eligible pool set identified by fingerprint.
type candidates struct {
	fingerprint uint64
	routes      [][]string
}

// Router ranks routes on the weighted / constant-product exchange.
// It is safe for concurrent use.
type Router struct {
	hubToken  engine.PoolToken
	allowed   map[string]struct{}
	maxHops   int
	maxRoutes int

	cache   *lru.Cache[pairKey, candidates]
	logger  Logger
	metrics *metrics
}

// New creates a Router.
func New(cfg Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxHops == 0 {
		cfg.MaxHops = DefaultMaxHops
	}
	if cfg.MaxRoutes == 0 {
		cfg.MaxRoutes = DefaultMaxRoutes
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[pairKey, candidates](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create route cache: %w", err)
	}
	m, err := newMetrics(cfg.PrometheusRegisterer)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(cfg.IncentivizedPools))
	for _, id := range cfg.IncentivizedPools {
		allowed[id] = struct{}{}
	}

	return &Router{
		hubToken:  cfg.HubToken,
		allowed:   allowed,
		maxHops:   cfg.MaxHops,
		maxRoutes: cfg.MaxRoutes,
		cache:     cache,
		logger:    cfg.Logger,
		metrics:   m,
	}, nil
}

// GetRoutes returns up to MaxRoutes priced routes from tokenIn to tokenOut,
// best output first. Routes that fail to price are skipped. No route between
// the tokens yields an empty result and a nil error.
func (r *Router) GetRoutes(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken, pools chains.PoolView) ([]chains.Quote, error) {
	if amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amountIn.String())
	}
	if tokenIn == tokenOut {
		return nil, nil
	}

	key := newPairKey(tokenIn, tokenOut)
	routes := r.candidateRoutes(key, pools.All())
	if len(routes) == 0 {
		return nil, nil
	}

	quotes := make([]chains.Quote, 0, len(routes))
	var firstErr error
	for _, ids := range routes {
		if tokenIn != key.a {
			ids = reversed(ids)
		}
		quote, err := quoteRoute(amountIn, tokenIn, tokenOut, ids, pools)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		quotes = append(quotes, quote)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllRoutesFailed, firstErr)
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].AmountOut.GreaterThan(quotes[j].AmountOut)
	})
	if len(quotes) > r.maxRoutes {
		quotes = quotes[:r.maxRoutes]
	}
	return quotes, nil
}

// Solver binds the router to one pool view.
func (r *Router) Solver(pools chains.PoolView) chains.Solver {
	return &boundSolver{router: r, pools: pools}
}

type boundSolver struct {
	router *Router
	pools  chains.PoolView
}

func (s *boundSolver) QuoteExactIn(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken) ([]chains.Quote, error) {
	return s.router.GetRoutes(amountIn, tokenIn, tokenOut, s.pools)
}

// candidateRoutes returns the cached candidate routes of key, recomputing them
// when the eligible pool set changed.
func (r *Router) candidateRoutes(key pairKey, all []engine.Pool) [][]string {
	eligible := r.eligible(key, all)
	fingerprint := fingerprintOf(eligible)

	if cached, ok := r.cache.Get(key); ok && cached.fingerprint == fingerprint {
		r.metrics.cacheHits.Inc()
		return cached.routes
	}
	r.metrics.cacheMisses.Inc()

	rawGraph := tokenpoolregistry.Build(eligible)
	paths := pathfinder.FindPaths(rawGraph, key.a, key.b, r.maxHops)
	routes := make([][]string, len(paths))
	for i, path := range paths {
		routes[i] = path.PoolIDs()
	}

	r.cache.Add(key, candidates{fingerprint: fingerprint, routes: routes})
	r.logger.Debug("Candidate routes computed", "tokenA", key.a, "tokenB", key.b, "eligible_pools", len(eligible), "routes", len(routes))
	return routes
}

func (r *Router) eligible(key pairKey, all []engine.Pool) []engine.Pool {
	if len(r.allowed) == 0 {
		return sortedByID(all)
	}
	out := make([]engine.Pool, 0, len(all))
	for _, p := range all {
		_, allowed := r.allowed[p.ID]
		direct := p.Has(key.a) && p.Has(key.b)
		hub := r.hubToken != "" && p.Has(r.hubToken)
		if allowed || direct || hub {
			out = append(out, p)
		}
	}
	return sortedByID(out)
}

func quoteRoute(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken, ids []string, pools chains.PoolView) (chains.Quote, error) {
	route := make(chains.Route, 0, len(ids))
	token := tokenIn
	amount := amountIn
	for _, id := range ids {
		pool, ok := pools.GetByID(id)
		if !ok {
			return chains.Quote{}, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
		}
		next, ok := pool.Other(token)
		if !ok {
			return chains.Quote{}, fmt.Errorf("pool %s does not trade %s", id, token)
		}
		out, err := price(amount, token, next, pool)
		if err != nil {
			return chains.Quote{}, fmt.Errorf("pool %s %s->%s: %w", id, token, next, err)
		}
		route = append(route, chains.TokenPoolPath{PoolID: id, TokenInID: token, TokenOutID: next})
		token, amount = next, out
	}
	if token != tokenOut {
		return chains.Quote{}, fmt.Errorf("route %v ends at %s, not %s", ids, token, tokenOut)
	}
	return chains.Quote{Route: route, AmountIn: amountIn, AmountOut: amount}, nil
}

func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

func sortedByID(pools []engine.Pool) []engine.Pool {
	out := make([]engine.Pool, len(pools))
	copy(out, pools)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func fingerprintOf(pools []engine.Pool) uint64 {
	h := fnv.New64a()
	for _, p := range pools {
		h.Write([]byte(p.ID))
		h.Write([]byte{0})
		h.Write([]byte(p.Token0ID))
		h.Write([]byte{0})
		h.Write([]byte(p.Token1ID))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
