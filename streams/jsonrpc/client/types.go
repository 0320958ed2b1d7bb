package client

import (
	"github.com/shopspring/decimal"
)

// Pool types on the wire.
const (
	PoolTypeXYK    = "xyk"
	PoolTypeStable = "stable"
)

// WireUpdate is one pools update notification as sent by an exchange feed.
type WireUpdate struct {
	Pools  []WirePool `json:"pools"`
	Height uint64     `json:"height"`
	SentAt int64      `json:"sentAt,omitempty"`
}

// WirePool is one pool of a WireUpdate. Amounts are minimal denomination integers.
type WirePool struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Token0ID     string          `json:"token0Id"`
	Token1ID     string          `json:"token1Id"`
	Token0Amount decimal.Decimal `json:"token0Amount"`
	Token1Amount decimal.Decimal `json:"token1Amount"`

	// xyk only
	Fee     decimal.Decimal `json:"fee"`
	Weight0 decimal.Decimal `json:"weight0"`
	Weight1 decimal.Decimal `json:"weight1"`

	// stable only
	StableParams *WireStableParams `json:"stableParams,omitempty"`
}

// WireStableParams carries the curve parameters of a stable pool.
type WireStableParams struct {
	PriceOfToken1     decimal.Decimal `json:"priceOfToken1"`
	A                 decimal.Decimal `json:"a"`
	Gamma1            decimal.Decimal `json:"gamma1"`
	Gamma2            decimal.Decimal `json:"gamma2"`
	LPFee             decimal.Decimal `json:"lpFee"`
	DAOFee            decimal.Decimal `json:"daoFee"`
	MinTradeSize0For1 decimal.Decimal `json:"minTradeSize0For1"`
	MinTradeSize1For0 decimal.Decimal `json:"minTradeSize1For0"`
	PriceImpactLimit  decimal.Decimal `json:"priceImpactLimit"`
}
