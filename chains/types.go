package chains

import (
	"github.com/defistate/dexarb/engine"
	"github.com/shopspring/decimal"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Adapter is one exchange's pool update producer. The adapter guarantees it
// never emits the same height twice; closing the channel means it stopped.
type Adapter interface {
	Dex() engine.DexName
	Updates() <-chan engine.PoolUpdate
}

// TokenPoolPath is one hop of a route.
type TokenPoolPath struct {
	PoolID     string           `json:"poolId"`
	TokenInID  engine.PoolToken `json:"tokenIn"`
	TokenOutID engine.PoolToken `json:"tokenOut"`
}

// Route is an ordered list of hops; consecutive hops share a token.
type Route []TokenPoolPath

// PoolIDs returns the pool id of every hop.
func (r Route) PoolIDs() []string {
	ids := make([]string, len(r))
	for i, hop := range r {
		ids[i] = hop.PoolID
	}
	return ids
}

// Quote is a priced route. AmountIn and AmountOut are in minimal denomination.
type Quote struct {
	Route     Route           `json:"route"`
	AmountIn  decimal.Decimal `json:"amountIn"`
	AmountOut decimal.Decimal `json:"amountOut"`
}

// PoolView is a read-only, indexed set of pools handed to the solvers.
type PoolView interface {
	GetByID(id string) (engine.Pool, bool)
	All() []engine.Pool
}

// Solver quotes exact-input swaps over one exchange's pool set. An empty
// result with a nil error means no route exists.
type Solver interface {
	QuoteExactIn(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken) ([]Quote, error)
}
