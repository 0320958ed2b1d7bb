package engine

import (
	"github.com/shopspring/decimal"
)

// DexName tags the exchange a pool or update belongs to.
type DexName string

const (
	// DexOsmosis is the weighted / constant-product exchange.
	DexOsmosis DexName = "osmosis"
	// DexShade is the stableswap exchange.
	DexShade DexName = "shade"
)

// Token is an exchange independent asset symbol, e.g. "ATOM".
type Token string

// PoolToken is an exchange local identifier for one side of a pool
// (an on-chain denom or a contract id). Many PoolTokens may map to one Token.
type PoolToken string

// PoolKind is the exchange specific pricing payload of a pool.
// It is implemented by XYKParams and StableParams only.
type PoolKind interface {
	isPoolKind()
}

// XYKParams describes a constant-product pool. Zero weights mean equal weights.
type XYKParams struct {
	Fee     decimal.Decimal `json:"fee"` // 0.003 for 0.3%
	Weight0 decimal.Decimal `json:"weight0"`
	Weight1 decimal.Decimal `json:"weight1"`
}

func (XYKParams) isPoolKind() {}

// Weighted reports whether the pool carries non-trivial weights.
func (p XYKParams) Weighted() bool {
	return p.Weight0.Sign() > 0 && p.Weight1.Sign() > 0 && !p.Weight0.Equal(p.Weight1)
}

// StableParams describes a stableswap pool.
type StableParams struct {
	PriceOfToken1     decimal.Decimal `json:"priceOfToken1"` // token1 price in units of token0
	Amplification     decimal.Decimal `json:"a"`
	Gamma1            decimal.Decimal `json:"gamma1"`
	Gamma2            decimal.Decimal `json:"gamma2"`
	LPFee             decimal.Decimal `json:"lpFee"`
	DAOFee            decimal.Decimal `json:"daoFee"`
	MinTradeSize0For1 decimal.Decimal `json:"minTradeSize0For1"`
	MinTradeSize1For0 decimal.Decimal `json:"minTradeSize1For0"`
	PriceImpactLimit  decimal.Decimal `json:"priceImpactLimit"` // percent
}

func (StableParams) isPoolKind() {}

// Pool is one liquidity pair on one exchange. Reserves are in minimal denomination units.
type Pool struct {
	ID           string          `json:"id"`
	Dex          DexName         `json:"dex"`
	Token0ID     PoolToken       `json:"token0Id"`
	Token1ID     PoolToken       `json:"token1Id"`
	Token0Amount decimal.Decimal `json:"token0Amount"`
	Token1Amount decimal.Decimal `json:"token1Amount"`
	Kind         PoolKind        `json:"-"`
}

// Has reports whether the pool trades the token.
func (p Pool) Has(token PoolToken) bool {
	return p.Token0ID == token || p.Token1ID == token
}

// Other returns the opposite side of token in the pool.
func (p Pool) Other(token PoolToken) (PoolToken, bool) {
	switch token {
	case p.Token0ID:
		return p.Token1ID, true
	case p.Token1ID:
		return p.Token0ID, true
	}
	return "", false
}

// Reserves returns the reserves oriented for a tokenIn -> tokenOut swap.
func (p Pool) Reserves(tokenIn, tokenOut PoolToken) (reserveIn, reserveOut decimal.Decimal, ok bool) {
	switch {
	case tokenIn == p.Token0ID && tokenOut == p.Token1ID:
		return p.Token0Amount, p.Token1Amount, true
	case tokenIn == p.Token1ID && tokenOut == p.Token0ID:
		return p.Token1Amount, p.Token0Amount, true
	}
	return decimal.Zero, decimal.Zero, false
}

// SameReserves reports whether both reserves are numerically equal.
func (p Pool) SameReserves(o Pool) bool {
	return p.Token0Amount.Equal(o.Token0Amount) && p.Token1Amount.Equal(o.Token1Amount)
}

// PersistedPoolData is a pool together with the height it was observed at.
type PersistedPoolData struct {
	Pool   Pool   `json:"pool"`
	Height uint64 `json:"height"`
}

// PoolUpdate is one emission of an exchange adapter.
type PoolUpdate struct {
	Pools  []Pool `json:"pools"`
	Height uint64 `json:"height"`
}

// Snapshot is the combined view of every attached exchange.
// Pool slices are never mutated after a Snapshot is published.
type Snapshot struct {
	Pools   map[DexName][]Pool `json:"pools"`
	Heights map[DexName]uint64 `json:"heights"`

	// Updated is the exchange whose accepted update produced this snapshot,
	// Changed the pools of that update whose reserves moved.
	Updated DexName `json:"updated"`
	Changed []Pool  `json:"changed"`
}

// PoolsOf returns the pools of one exchange.
func (s *Snapshot) PoolsOf(dex DexName) []Pool {
	if s == nil {
		return nil
	}
	return s.Pools[dex]
}

// HeightOf returns the last accepted height of one exchange.
func (s *Snapshot) HeightOf(dex DexName) uint64 {
	if s == nil {
		return 0
	}
	return s.Heights[dex]
}
