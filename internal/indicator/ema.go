package indicator

import "fmt"

// EMA is an exponential moving average seeded with the first price:
// EMA[0] = x[0], EMA[t] = α·x[t] + (1-α)·EMA[t-1], α = 2/(span+1).
// O(1) per update, no window storage.
type EMA struct {
	span    int
	alpha   float64
	current float64
	count   int
}

// NewEMA creates an EMA with the given span.
func NewEMA(span int) (*EMA, error) {
	if span < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSpan, span)
	}
	return &EMA{span: span, alpha: 2.0 / float64(span+1)}, nil
}

// Update feeds the next price and returns the new average.
func (e *EMA) Update(price float64) float64 {
	if e.count == 0 {
		e.current = price
	} else {
		e.current = price*e.alpha + e.current*(1-e.alpha)
	}
	e.count++
	return e.current
}

// Value returns the current average, zero before the first Update.
func (e *EMA) Value() float64 { return e.current }

// EMASeries returns the EMA of xs, one value per input.
func EMASeries(xs []float64, span int) ([]float64, error) {
	e, err := NewEMA(span)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = e.Update(x)
	}
	return out, nil
}
