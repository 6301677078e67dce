// Package guard implements the pre-trade safety pipeline: target
// sanitization, turnover limiting, market sanity breakers, execution rate
// limiting, order validation/splitting and guarded retry execution.
package guard

import (
	"rebalancer/internal/core"
)

// Sanitizer clamps an untrusted proposed allocation into a safe, normalized,
// capped one. Sanitization is total: it never rejects and never returns an
// empty or undefined allocation, it only neutralizes bad input.
type Sanitizer struct {
	allowed       []string
	maxPerAsset   float64
	reserveFloor  float64
	reserveSymbol string
}

// NewSanitizer creates a sanitizer over the given allow-list. reserveSymbol
// must be part of the allow-list; its weight is floored at reserveFloor.
func NewSanitizer(allowed []string, maxPerAsset, reserveFloor float64, reserveSymbol string) *Sanitizer {
	return &Sanitizer{
		allowed:       append([]string(nil), allowed...),
		maxPerAsset:   maxPerAsset,
		reserveFloor:  reserveFloor,
		reserveSymbol: reserveSymbol,
	}
}

// Sanitize applies the fixed clamping sequence. The step order matters:
// each step assumes the prior one is complete.
func (s *Sanitizer) Sanitize(proposed core.Allocation) core.Allocation {
	// 1. Keep allowed symbols with positive weight, clamp negatives to zero.
	clean := make(core.Allocation, len(s.allowed))
	for _, sym := range s.allowed {
		if w := proposed[sym]; w > 0 {
			clean[sym] = w
		}
	}
	if _, ok := clean[s.reserveSymbol]; !ok {
		clean[s.reserveSymbol] = 0
	}

	// 2. Nothing usable survived: fall back to equal weight over the
	// allow-list rather than returning an empty allocation.
	if clean.Sum() == 0 {
		return core.EqualWeight(s.allowed)
	}

	// 3. Normalize to sum 1.
	clean = clean.Normalized()

	// 4. Cap each weight independently. The sum may drop below 1 here;
	// that is corrected by the final normalization.
	for sym, w := range clean {
		if w > s.maxPerAsset {
			clean[sym] = s.maxPerAsset
		}
	}

	// 5. Enforce the reserve floor, deducting the deficit equally from
	// every other asset and clamping each at zero.
	if clean[s.reserveSymbol] < s.reserveFloor {
		need := s.reserveFloor - clean[s.reserveSymbol]
		clean[s.reserveSymbol] = s.reserveFloor
		others := make([]string, 0, len(clean))
		for sym := range clean {
			if sym != s.reserveSymbol {
				others = append(others, sym)
			}
		}
		if len(others) > 0 && need > 0 {
			cut := need / float64(len(others))
			for _, sym := range others {
				clean[sym] -= cut
				if clean[sym] < 0 {
					clean[sym] = 0
				}
			}
		}
	}

	// 6. Final renormalization.
	if clean.Sum() == 0 {
		return core.EqualWeight(s.allowed)
	}
	return clean.Normalized()
}

// Allowed returns the configured allow-list.
func (s *Sanitizer) Allowed() []string {
	return append([]string(nil), s.allowed...)
}

// ReserveSymbol returns the configured reserve asset.
func (s *Sanitizer) ReserveSymbol() string {
	return s.reserveSymbol
}
