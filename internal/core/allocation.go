package core

// Allocation maps asset symbols to portfolio weights. Weights are
// conceptually in [0,1] and sum to 1 after sanitization; untrusted
// proposals may violate both until they pass the guard pipeline.
type Allocation map[string]float64

// Clone returns a deep copy.
func (a Allocation) Clone() Allocation {
	out := make(Allocation, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Sum returns the total weight.
func (a Allocation) Sum() float64 {
	total := 0.0
	for _, v := range a {
		total += v
	}
	return total
}

// Normalized returns a copy scaled so weights sum to 1. An allocation with
// zero total weight is returned unchanged; callers that need a defined
// fallback must handle that case themselves.
func (a Allocation) Normalized() Allocation {
	total := a.Sum()
	if total == 0 {
		return a.Clone()
	}
	out := make(Allocation, len(a))
	for k, v := range a {
		out[k] = v / total
	}
	return out
}

// EqualWeight returns an allocation distributing weight evenly across the
// given symbols.
func EqualWeight(symbols []string) Allocation {
	out := make(Allocation, len(symbols))
	if len(symbols) == 0 {
		return out
	}
	w := 1.0 / float64(len(symbols))
	for _, s := range symbols {
		out[s] = w
	}
	return out
}
