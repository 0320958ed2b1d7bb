package tokenpoolregistry

import (
	"sort"

	"github.com/defistate/dexarb/engine"
)

// TokenPoolRegistryView is an immutable snapshot of the token/pool graph.
//
// Adjacency[t] lists the edge indexes leaving token t, ordered by target token.
// EdgeTargets[e] is the target token index of edge e and EdgePools[e] the pool
// indexes connecting both ends of e, ordered by pool id. Graph traversals that
// follow this order are deterministic.
type TokenPoolRegistryView struct {
	Tokens      []engine.PoolToken `json:"tokens"`
	Pools       []string           `json:"pools"`
	Adjacency   [][]int            `json:"adjacency"`
	EdgeTargets []int              `json:"edgeTargets"`
	EdgePools   [][]int            `json:"edgePools"`
}

// TokenIndex returns the index of token in Tokens.
func (v *TokenPoolRegistryView) TokenIndex(token engine.PoolToken) (int, bool) {
	i := sort.Search(len(v.Tokens), func(i int) bool { return v.Tokens[i] >= token })
	if i < len(v.Tokens) && v.Tokens[i] == token {
		return i, true
	}
	return 0, false
}

// TokenPoolRegistry is a simple, non-thread-safe data structure that manages
// the relationship between tokens and pools using a graph representation.
type TokenPoolRegistry struct {
	tokenToIndex map[engine.PoolToken]int
	poolToIndex  map[string]int

	tokens      []engine.PoolToken
	pools       []string
	adjacency   [][]int
	edgeTargets []int
	edgePools   [][]int
}

// NewTokenPoolRegistry creates a new, properly initialized graph-based registry.
func NewTokenPoolRegistry() *TokenPoolRegistry {
	return &TokenPoolRegistry{
		tokenToIndex: make(map[engine.PoolToken]int),
		poolToIndex:  make(map[string]int),
	}
}

// Build returns the view of a graph containing every pool.
func Build(pools []engine.Pool) *TokenPoolRegistryView {
	r := NewTokenPoolRegistry()
	for _, p := range pools {
		r.AddPool([]engine.PoolToken{p.Token0ID, p.Token1ID}, p.ID)
	}
	return r.View()
}

// AddPool connects every pair of tokens of the pool in both directions.
func (r *TokenPoolRegistry) AddPool(tokens []engine.PoolToken, poolID string) {
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			if tokens[i] == tokens[j] {
				continue
			}
			r.addEdge(tokens[i], tokens[j], poolID)
			r.addEdge(tokens[j], tokens[i], poolID)
		}
	}
}

func (r *TokenPoolRegistry) tokenIndex(token engine.PoolToken) int {
	index, exists := r.tokenToIndex[token]
	if !exists {
		index = len(r.tokens)
		r.tokens = append(r.tokens, token)
		r.tokenToIndex[token] = index
		r.adjacency = append(r.adjacency, nil)
	}
	return index
}

// addEdge creates or updates a directed edge from a source token to a target token,
// associating it with the given pool.
func (r *TokenPoolRegistry) addEdge(from, to engine.PoolToken, poolID string) {
	fromIndex := r.tokenIndex(from)
	toIndex := r.tokenIndex(to)
	poolIndex, exists := r.poolToIndex[poolID]
	if !exists {
		poolIndex = len(r.pools)
		r.pools = append(r.pools, poolID)
		r.poolToIndex[poolID] = poolIndex
	}

	for _, edgeIndex := range r.adjacency[fromIndex] {
		if r.edgeTargets[edgeIndex] == toIndex {
			for _, existing := range r.edgePools[edgeIndex] {
				if existing == poolIndex {
					return
				}
			}
			r.edgePools[edgeIndex] = append(r.edgePools[edgeIndex], poolIndex)
			return
		}
	}

	newEdgeIndex := len(r.edgeTargets)
	r.edgeTargets = append(r.edgeTargets, toIndex)
	r.edgePools = append(r.edgePools, []int{poolIndex})
	r.adjacency[fromIndex] = append(r.adjacency[fromIndex], newEdgeIndex)
}

// PoolsForToken returns the ids of every pool trading token, sorted.
func (r *TokenPoolRegistry) PoolsForToken(token engine.PoolToken) []string {
	index, ok := r.tokenToIndex[token]
	if !ok {
		return nil
	}
	seen := make(map[int]struct{})
	var ids []string
	for _, edgeIndex := range r.adjacency[index] {
		for _, poolIndex := range r.edgePools[edgeIndex] {
			if _, dup := seen[poolIndex]; dup {
				continue
			}
			seen[poolIndex] = struct{}{}
			ids = append(ids, r.pools[poolIndex])
		}
	}
	sort.Strings(ids)
	return ids
}

// View returns a canonical snapshot: tokens and pools sorted, edges ordered by
// target token, edge pools ordered by pool id. The view shares no memory with
// the registry.
func (r *TokenPoolRegistry) View() *TokenPoolRegistryView {
	tokens := make([]engine.PoolToken, len(r.tokens))
	copy(tokens, r.tokens)
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	newTokenIndex := make(map[engine.PoolToken]int, len(tokens))
	for i, t := range tokens {
		newTokenIndex[t] = i
	}

	pools := make([]string, len(r.pools))
	copy(pools, r.pools)
	sort.Strings(pools)
	newPoolIndex := make(map[string]int, len(pools))
	for i, p := range pools {
		newPoolIndex[p] = i
	}

	view := &TokenPoolRegistryView{
		Tokens:    tokens,
		Pools:     pools,
		Adjacency: make([][]int, len(tokens)),
	}

	for newFrom, token := range tokens {
		oldFrom := r.tokenToIndex[token]
		edges := make([]int, len(r.adjacency[oldFrom]))
		copy(edges, r.adjacency[oldFrom])
		sort.Slice(edges, func(i, j int) bool {
			return r.tokens[r.edgeTargets[edges[i]]] < r.tokens[r.edgeTargets[edges[j]]]
		})

		for _, oldEdge := range edges {
			edgePools := make([]int, 0, len(r.edgePools[oldEdge]))
			for _, oldPool := range r.edgePools[oldEdge] {
				edgePools = append(edgePools, newPoolIndex[r.pools[oldPool]])
			}
			sort.Ints(edgePools)

			newEdge := len(view.EdgeTargets)
			view.EdgeTargets = append(view.EdgeTargets, newTokenIndex[r.tokens[r.edgeTargets[oldEdge]]])
			view.EdgePools = append(view.EdgePools, edgePools)
			view.Adjacency[newFrom] = append(view.Adjacency[newFrom], newEdge)
		}
	}
	return view
}
