package guard

import (
	"rebalancer/internal/core"
)

// LimitTurnover bounds how far a proposed allocation may move the portfolio
// from its current allocation in one step. The total increase across
// over-weighted symbols and the total decrease across under-weighted
// symbols are each scaled down so neither exceeds maxTurnover. Symbols
// present on only one side are treated as zero weight on the other.
//
// The up/down budgets are aggregates shared across all symbols moving the
// same direction, which can produce asymmetric per-symbol caps when many
// symbols move together; that is intentional.
func LimitTurnover(current, proposed core.Allocation, maxTurnover float64) core.Allocation {
	keys := make(map[string]struct{}, len(current)+len(proposed))
	for k := range current {
		keys[k] = struct{}{}
	}
	for k := range proposed {
		keys[k] = struct{}{}
	}

	cur := make(core.Allocation, len(keys))
	prop := make(core.Allocation, len(keys))
	for k := range keys {
		cur[k] = current[k]
		if w := proposed[k]; w > 0 {
			prop[k] = w
		} else {
			prop[k] = 0
		}
	}

	if prop.Sum() == 0 {
		symbols := make([]string, 0, len(keys))
		for k := range keys {
			symbols = append(symbols, k)
		}
		prop = core.EqualWeight(symbols)
	} else {
		prop = prop.Normalized()
	}

	upSum, downSum := 0.0, 0.0
	deltas := make(map[string]float64, len(keys))
	for k := range keys {
		d := prop[k] - cur[k]
		deltas[k] = d
		if d > 0 {
			upSum += d
		} else {
			downSum -= d
		}
	}

	upScale, downScale := 1.0, 1.0
	if upSum > maxTurnover && upSum > 0 {
		upScale = maxTurnover / upSum
	}
	if downSum > maxTurnover && downSum > 0 {
		downScale = maxTurnover / downSum
	}

	final := make(core.Allocation, len(keys))
	for k := range keys {
		d := deltas[k]
		if d > 0 {
			d *= upScale
		} else if d < 0 {
			d *= downScale
		}
		final[k] = cur[k] + d
	}

	total := 0.0
	for k, v := range final {
		if v < 0 {
			final[k] = 0
			continue
		}
		total += v
	}
	if total == 0 {
		symbols := make([]string, 0, len(keys))
		for k := range keys {
			symbols = append(symbols, k)
		}
		return core.EqualWeight(symbols)
	}
	for k, v := range final {
		final[k] = v / total
	}
	return final
}
