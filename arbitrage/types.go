package arbitrage

import (
	"fmt"

	"github.com/defistate/dexarb/chains"
	"github.com/defistate/dexarb/engine"
	"github.com/shopspring/decimal"
)

// Pair is one monitored token pair. Token0 is the token the round trip starts
// and ends in, Token1 the bridge token. AmountIn is a notional of Token0 in
// display units (1.5 ATOM, not 1500000 uatom).
type Pair struct {
	Token0   engine.Token    `json:"token0" yaml:"token0"`
	Token1   engine.Token    `json:"token1" yaml:"token1"`
	AmountIn decimal.Decimal `json:"amountIn" yaml:"amountIn"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Token0, p.Token1)
}

// ArbPath is a round trip Token0 -> Token1 on Dex0 followed by
// Token1 -> Token0 on Dex1. Amounts are in display units.
//
// The JSON encoding is consumed by external uploaders; field names must not change.
type ArbPath struct {
	ID           string          `json:"id"`
	ReverseID    string          `json:"reverseId"`
	Dex0         engine.DexName  `json:"dex0"`
	Dex1         engine.DexName  `json:"dex1"`
	AmountIn     decimal.Decimal `json:"amountIn"`
	AmountBridge decimal.Decimal `json:"amountBridge"`
	AmountOut    decimal.Decimal `json:"amountOut"`
	Route0       chains.Route    `json:"route0"`
	Route1       chains.Route    `json:"route1"`
	Error0       string          `json:"error0"`
	Error1       string          `json:"error1"`
	Height0      uint64          `json:"height0"`
	Height1      uint64          `json:"height1"`
	Pair         [2]engine.Token `json:"pair"`

	// minimum AmountOut for the path to count as profitable
	threshold decimal.Decimal
}

// Profitable reports whether both legs succeeded and the round trip returns
// more than AmountIn plus the configured minimum profit.
func (p ArbPath) Profitable() bool {
	if p.Error0 != "" || p.Error1 != "" {
		return false
	}
	return p.AmountOut.GreaterThan(p.threshold)
}

// pathID names the round trip of pair from dex0 to dex1.
func pathID(pair Pair, dex0, dex1 engine.DexName) string {
	return fmt.Sprintf("%s:%s>%s:%s", dex0, pair.Token0, pair.Token1, dex1)
}
