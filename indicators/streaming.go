// Package indicators provides streaming indicators fed one price at a
// time. Each keeps only the window it needs; none are safe for
// concurrent use.
package indicators

import "fmt"

// Indicator is the minimal streaming contract: feed prices, ask if it
// has warmed up, read the value.
type Indicator interface {
	Name() string
	Warmup() int
	Update(price float64)
	Ready() bool
	Value() float64
	Reset()
}

// SimpleMA is a streaming simple moving average.
type SimpleMA struct {
	period int
	prices []float64
}

func NewSMA(period int) *SimpleMA {
	return &SimpleMA{period: period, prices: make([]float64, 0, period)}
}

func (m *SimpleMA) Name() string {
	return fmt.Sprintf("SMA(%d)", m.period)
}

func (m *SimpleMA) Warmup() int { return m.period }

func (m *SimpleMA) Reset() { m.prices = m.prices[:0] }

func (m *SimpleMA) Update(price float64) {
	m.prices = append(m.prices, price)
	if len(m.prices) > m.period {
		m.prices = m.prices[1:]
	}
}

func (m *SimpleMA) Ready() bool {
	return len(m.prices) >= m.period
}

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	sum := 0.0
	for _, p := range m.prices {
		sum += p
	}
	return sum / float64(len(m.prices))
}

// ExponentialMA is a streaming exponential moving average, seeded with
// an SMA over the first period values.
type ExponentialMA struct {
	period int
	mult   float64
	value  float64
	seed   []float64
	ready  bool
}

func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{
		period: period,
		mult:   2.0 / float64(period+1),
		seed:   make([]float64, 0, period),
	}
}

func (e *ExponentialMA) Name() string {
	return fmt.Sprintf("EMA(%d)", e.period)
}

func (e *ExponentialMA) Warmup() int { return e.period }

func (e *ExponentialMA) Reset() {
	e.seed = e.seed[:0]
	e.value = 0
	e.ready = false
}

func (e *ExponentialMA) Update(price float64) {
	if !e.ready {
		e.seed = append(e.seed, price)
		if len(e.seed) < e.period {
			return
		}
		sum := 0.0
		for _, p := range e.seed {
			sum += p
		}
		e.value = sum / float64(e.period)
		e.ready = true
		return
	}
	e.value = (price-e.value)*e.mult + e.value
}

func (e *ExponentialMA) Ready() bool { return e.ready }

func (e *ExponentialMA) Value() float64 {
	if !e.ready {
		return 0
	}
	return e.value
}

// Momentum is the percentage change of price over a lookback window.
type Momentum struct {
	period int
	prices []float64
}

func NewMomentum(period int) *Momentum {
	return &Momentum{period: period, prices: make([]float64, 0, period+1)}
}

func (m *Momentum) Name() string {
	return fmt.Sprintf("Momentum(%d)", m.period)
}

func (m *Momentum) Warmup() int { return m.period + 1 }

func (m *Momentum) Reset() { m.prices = m.prices[:0] }

func (m *Momentum) Update(price float64) {
	m.prices = append(m.prices, price)
	if len(m.prices) > m.period+1 {
		m.prices = m.prices[1:]
	}
}

func (m *Momentum) Ready() bool {
	return len(m.prices) >= m.period+1
}

// Value returns the percent move from the oldest price in the window.
func (m *Momentum) Value() float64 {
	if !m.Ready() {
		return 0
	}
	oldest := m.prices[0]
	if oldest == 0 {
		return 0
	}
	return (m.prices[len(m.prices)-1] - oldest) / oldest * 100
}
