package pathfinder

import (
	"errors"
	"fmt"
	"sort"

	"github.com/defistate/dexarb/bitset"
	"github.com/defistate/dexarb/chains"
	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/protocols/tokenpoolregistry"
	"github.com/shopspring/decimal"
)

// DefaultMaxHops bounds path enumeration when no limit is given.
const DefaultMaxHops = 3

// ErrAllPathsFailed is returned when paths exist but none of them could be settled.
var ErrAllPathsFailed = errors.New("every path failed")

var _ chains.Solver = &Graph{}

// settleFunc moves an amount across one pool. Forward functions map an input
// to an output, reverse functions map a desired output to the required input.
type settleFunc func(amount decimal.Decimal, tokenIn, tokenOut engine.PoolToken) (decimal.Decimal, error)

// Graph is a stateless search engine over one snapshot of an exchange's pools.
// Pools are never mutated; every quote starts from the snapshot reserves.
type Graph struct {
	rawGraph *tokenpoolregistry.TokenPoolRegistryView
	maxHops  int

	// indexed by pool index in rawGraph.Pools; nil for pools that cannot be priced
	forward []settleFunc
	reverse []settleFunc
}

// NewGraph builds the token/pool graph for pools. maxHops <= 0 selects DefaultMaxHops.
func NewGraph(pools chains.PoolView, maxHops int) *Graph {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	all := pools.All()
	rawGraph := tokenpoolregistry.Build(all)

	forward := make([]settleFunc, len(rawGraph.Pools))
	reverse := make([]settleFunc, len(rawGraph.Pools))
	for i, poolID := range rawGraph.Pools {
		pool, ok := pools.GetByID(poolID)
		if !ok {
			continue
		}
		forward[i], reverse[i] = settlers(pool)
	}

	return &Graph{
		rawGraph: rawGraph,
		maxHops:  maxHops,
		forward:  forward,
		reverse:  reverse,
	}
}

// Raw returns the underlying adjacency view.
func (g *Graph) Raw() *tokenpoolregistry.TokenPoolRegistryView {
	return g.rawGraph
}

// FindPaths returns every simple path from tokenIn to tokenOut with at most
// maxHops hops. A pool is never used twice in one path; a token may repeat if
// it is reached through a different pool. A path ends the first time it
// reaches tokenOut. Paths come out in depth-first order, which follows the
// sorted token and pool order of the view.
func (g *Graph) FindPaths(tokenIn, tokenOut engine.PoolToken, maxHops int) []chains.Route {
	return FindPaths(g.rawGraph, tokenIn, tokenOut, maxHops)
}

// FindPaths enumerates paths over any token/pool view. See Graph.FindPaths.
func FindPaths(rawGraph *tokenpoolregistry.TokenPoolRegistryView, tokenIn, tokenOut engine.PoolToken, maxHops int) []chains.Route {
	if maxHops <= 0 || tokenIn == tokenOut {
		return nil
	}
	start, ok := rawGraph.TokenIndex(tokenIn)
	if !ok {
		return nil
	}
	end, ok := rawGraph.TokenIndex(tokenOut)
	if !ok {
		return nil
	}

	var (
		paths   []chains.Route
		current = make(chains.Route, 0, maxHops)
		visited = bitset.New(len(rawGraph.Pools))
	)

	var walk func(tokenIndex int)
	walk = func(tokenIndex int) {
		if len(current) == maxHops {
			return
		}
		from := rawGraph.Tokens[tokenIndex]
		for _, edgeIndex := range rawGraph.Adjacency[tokenIndex] {
			targetIndex := rawGraph.EdgeTargets[edgeIndex]
			for _, poolIndex := range rawGraph.EdgePools[edgeIndex] {
				if visited.Test(poolIndex) {
					continue
				}
				visited.Set(poolIndex)
				current = append(current, chains.TokenPoolPath{
					PoolID:     rawGraph.Pools[poolIndex],
					TokenInID:  from,
					TokenOutID: rawGraph.Tokens[targetIndex],
				})

				if targetIndex == end {
					path := make(chains.Route, len(current))
					copy(path, current)
					paths = append(paths, path)
				} else {
					walk(targetIndex)
				}

				current = current[:len(current)-1]
				visited.Clear(poolIndex)
			}
		}
	}
	walk(start)

	return paths
}

// QuoteExactIn settles amountIn along every path up to the graph's hop limit.
// See QuoteExactInWithHops.
func (g *Graph) QuoteExactIn(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken) ([]chains.Quote, error) {
	return g.QuoteExactInWithHops(amountIn, tokenIn, tokenOut, g.maxHops)
}

// QuoteExactInWithHops settles amountIn along every path and ranks the results
// by output, highest first. Equal outputs keep depth-first order. Paths that
// fail to settle are dropped; if every path fails the first failure is returned.
// No path at all yields an empty result and a nil error.
func (g *Graph) QuoteExactInWithHops(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken, maxHops int) ([]chains.Quote, error) {
	paths := g.FindPaths(tokenIn, tokenOut, maxHops)
	if len(paths) == 0 {
		return nil, nil
	}

	quotes := make([]chains.Quote, 0, len(paths))
	var firstErr error
	for _, path := range paths {
		out, err := g.settleForward(amountIn, path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		quotes = append(quotes, chains.Quote{Route: path, AmountIn: amountIn, AmountOut: out})
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllPathsFailed, firstErr)
	}

	sortByOutput(quotes)
	return quotes, nil
}

// QuoteExactOut finds the path needing the least input to deliver amountOut,
// then re-quotes every path forward from that input so they compare on equal
// footing. The anchor path is always first, the rest follow by output.
func (g *Graph) QuoteExactOut(amountOut decimal.Decimal, tokenIn, tokenOut engine.PoolToken, maxHops int) ([]chains.Quote, error) {
	paths := g.FindPaths(tokenIn, tokenOut, maxHops)
	if len(paths) == 0 {
		return nil, nil
	}

	anchor := -1
	var (
		anchorIn decimal.Decimal
		firstErr error
	)
	for i, path := range paths {
		in, err := g.settleReverse(amountOut, path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		// strict comparison keeps the earliest path on ties
		if anchor == -1 || in.LessThan(anchorIn) {
			anchor, anchorIn = i, in
		}
	}
	if anchor == -1 {
		return nil, fmt.Errorf("%w: %w", ErrAllPathsFailed, firstErr)
	}

	anchorQuote := chains.Quote{Route: paths[anchor], AmountIn: anchorIn, AmountOut: amountOut}
	if out, err := g.settleForward(anchorIn, paths[anchor]); err == nil {
		anchorQuote.AmountOut = out
	}

	rest := make([]chains.Quote, 0, len(paths)-1)
	for i, path := range paths {
		if i == anchor {
			continue
		}
		out, err := g.settleForward(anchorIn, path)
		if err != nil {
			continue
		}
		rest = append(rest, chains.Quote{Route: path, AmountIn: anchorIn, AmountOut: out})
	}
	sortByOutput(rest)

	return append([]chains.Quote{anchorQuote}, rest...), nil
}

func (g *Graph) settleForward(amount decimal.Decimal, path chains.Route) (decimal.Decimal, error) {
	for _, hop := range path {
		fn, err := g.settler(g.forward, hop.PoolID)
		if err != nil {
			return decimal.Zero, err
		}
		if amount, err = fn(amount, hop.TokenInID, hop.TokenOutID); err != nil {
			return decimal.Zero, fmt.Errorf("pool %s %s->%s: %w", hop.PoolID, hop.TokenInID, hop.TokenOutID, err)
		}
	}
	return amount, nil
}

func (g *Graph) settleReverse(amount decimal.Decimal, path chains.Route) (decimal.Decimal, error) {
	for i := len(path) - 1; i >= 0; i-- {
		hop := path[i]
		fn, err := g.settler(g.reverse, hop.PoolID)
		if err != nil {
			return decimal.Zero, err
		}
		if amount, err = fn(amount, hop.TokenInID, hop.TokenOutID); err != nil {
			return decimal.Zero, fmt.Errorf("pool %s %s<-%s: %w", hop.PoolID, hop.TokenInID, hop.TokenOutID, err)
		}
	}
	return amount, nil
}

func (g *Graph) settler(funcs []settleFunc, poolID string) (settleFunc, error) {
	i := sort.SearchStrings(g.rawGraph.Pools, poolID)
	if i == len(g.rawGraph.Pools) || g.rawGraph.Pools[i] != poolID || funcs[i] == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnpricedPool, poolID)
	}
	return funcs[i], nil
}

func sortByOutput(quotes []chains.Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].AmountOut.GreaterThan(quotes[j].AmountOut)
	})
}
