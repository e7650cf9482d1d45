package risk

// DrawdownTracker tracks peak-to-trough drawdown over a session. One
// instance per account; not safe for concurrent use (callers update it
// from the single P&L snapshot path).
type DrawdownTracker struct {
	peak    float64
	current float64
	maxPct  float64
}

func NewDrawdownTracker(initialCapital float64) *DrawdownTracker {
	return &DrawdownTracker{peak: initialCapital, current: initialCapital}
}

// Update records the latest capital value and returns the current
// drawdown percentage from peak.
func (d *DrawdownTracker) Update(capital float64) float64 {
	d.current = capital
	if capital > d.peak {
		d.peak = capital
	}
	var dd float64
	if d.peak > 0 {
		dd = (d.peak - capital) / d.peak * 100
	}
	if dd > d.maxPct {
		d.maxPct = dd
	}
	return dd
}

// MaxDrawdownPct returns the worst drawdown seen since construction.
func (d *DrawdownTracker) MaxDrawdownPct() float64 {
	return d.maxPct
}

// Reset restores the tracker to a fresh session at the given capital.
func (d *DrawdownTracker) Reset(capital float64) {
	d.peak = capital
	d.current = capital
	d.maxPct = 0
}
