package poolregistry

import (
	"sort"

	"github.com/defistate/dexarb/engine"
)

// Patcher builds a new pool set from prevState with every pool of changed
// replacing (or adding) the pool with the same id. prevState is not modified
// and the result is sorted by pool id.
func Patcher(prevState []engine.Pool, changed []engine.Pool) []engine.Pool {
	newStateMap := make(map[string]engine.Pool, len(prevState)+len(changed))
	for _, pool := range prevState {
		newStateMap[pool.ID] = pool
	}
	for _, pool := range changed {
		newStateMap[pool.ID] = pool
	}

	finalState := make([]engine.Pool, 0, len(newStateMap))
	for _, pool := range newStateMap {
		finalState = append(finalState, pool)
	}
	sort.Slice(finalState, func(i, j int) bool { return finalState[i].ID < finalState[j].ID })
	return finalState
}
