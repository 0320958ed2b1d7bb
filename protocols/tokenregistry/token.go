package tokenregistry

import "github.com/defistate/dexarb/engine"

// Token maps one exchange local denom to its exchange independent symbol.
type Token struct {
	Symbol   engine.Token     `json:"symbol" yaml:"symbol"`
	Dex      engine.DexName   `json:"dex" yaml:"dex"`
	Denom    engine.PoolToken `json:"denom" yaml:"denom"`
	Decimals int32            `json:"decimals" yaml:"decimals"`
}
