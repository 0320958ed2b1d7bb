package poolregistry

import "github.com/defistate/dexarb/engine"

// Changed reports whether new differs from old in its reserves or in its
// exchange-specific parameters.
func Changed(old, new engine.Pool) bool {
	return !old.SameReserves(new) || !sameKind(old.Kind, new.Kind)
}

func sameKind(a, b engine.PoolKind) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case engine.XYKParams:
		y, ok := b.(engine.XYKParams)
		return ok && x.Fee.Equal(y.Fee) && x.Weight0.Equal(y.Weight0) && x.Weight1.Equal(y.Weight1)
	case engine.StableParams:
		y, ok := b.(engine.StableParams)
		return ok &&
			x.PriceOfToken1.Equal(y.PriceOfToken1) &&
			x.Amplification.Equal(y.Amplification) &&
			x.Gamma1.Equal(y.Gamma1) &&
			x.Gamma2.Equal(y.Gamma2) &&
			x.LPFee.Equal(y.LPFee) &&
			x.DAOFee.Equal(y.DAOFee) &&
			x.MinTradeSize0For1.Equal(y.MinTradeSize0For1) &&
			x.MinTradeSize1For0.Equal(y.MinTradeSize1For0) &&
			x.PriceImpactLimit.Equal(y.PriceImpactLimit)
	default:
		return false
	}
}

// Changes returns, in update order, the pools of update that Differ would
// store, without writing them. Pool ids repeated within one update only count
// their first occurrence, matching what sequential upserts do.
func Changes(r *Registry, dex engine.DexName, update engine.PoolUpdate) []engine.Pool {
	var changed []engine.Pool
	seen := make(map[string]struct{}, len(update.Pools))
	for _, pool := range update.Pools {
		if _, dup := seen[pool.ID]; dup {
			continue
		}
		seen[pool.ID] = struct{}{}
		if r.WouldStore(dex, pool.ID, pool, update.Height) {
			pool.Dex = dex
			changed = append(changed, pool)
		}
	}
	return changed
}

// Differ upserts every pool of an update at height and returns, in update
// order, the pools whose stored value changed. Pools that did not move are
// dropped so callers can tell "new block, nothing moved" from "N pools moved".
func Differ(r *Registry, dex engine.DexName, update engine.PoolUpdate) []engine.Pool {
	var changed []engine.Pool
	for _, pool := range update.Pools {
		if r.Upsert(dex, pool.ID, pool, update.Height) {
			p, _ := r.Get(dex, pool.ID)
			changed = append(changed, p)
		}
	}
	return changed
}
