// Package agent runs the rebalance cycle: snapshot, propose, guard,
// execute. It owns no safety logic of its own; everything it sends goes
// through the guard pipeline.
package agent

import (
	"context"

	"rebalancer/internal/core"
)

// StaticProposer always proposes the same target allocation. This is the
// baseline strategy: hold a fixed mix and let the rebalancer trade drift
// back toward it.
type StaticProposer struct {
	targets core.Allocation
}

func NewStaticProposer(targets core.Allocation) *StaticProposer {
	return &StaticProposer{targets: targets.Clone()}
}

func (p *StaticProposer) Propose(ctx context.Context, current core.Allocation) (core.Allocation, error) {
	return p.targets.Clone(), nil
}

// MomentumProposer tilts a base allocation toward symbols with positive
// recent returns. The tilt is intentionally crude; the guard pipeline, not
// the proposer, is responsible for keeping the result safe.
type MomentumProposer struct {
	base    core.Allocation
	market  core.MarketData
	reserve string
	tilt    float64 // max fraction of a symbol's base weight shifted by momentum
}

func NewMomentumProposer(base core.Allocation, market core.MarketData, reserve string, tilt float64) *MomentumProposer {
	return &MomentumProposer{
		base:    base.Clone(),
		market:  market,
		reserve: reserve,
		tilt:    tilt,
	}
}

// Propose scales each non-reserve weight by its trailing return, bounded
// by the tilt factor. Symbols without enough history keep their base
// weight.
func (p *MomentumProposer) Propose(ctx context.Context, current core.Allocation) (core.Allocation, error) {
	out := p.base.Clone()
	for symbol, weight := range p.base {
		if symbol == p.reserve {
			continue
		}
		history := p.market.History(symbol)
		if len(history) < 2 {
			continue
		}
		first, last := history[0], history[len(history)-1]
		if first <= 0 {
			continue
		}
		ret := (last - first) / first
		adj := ret
		if adj > p.tilt {
			adj = p.tilt
		} else if adj < -p.tilt {
			adj = -p.tilt
		}
		out[symbol] = weight * (1 + adj)
	}
	return out, nil
}
