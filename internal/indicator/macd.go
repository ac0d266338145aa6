package indicator

import "fmt"

// MACD holds the aligned outputs of ComputeMACD. Every slice has the same
// length as the input closes.
type MACD struct {
	Fast      []float64 // EMA(fast)
	Slow      []float64 // EMA(slow)
	Line      []float64 // Fast - Slow
	Signal    []float64 // EMA(signal) of Line
	Histogram []float64 // Line - Signal
}

// Len returns the number of bars.
func (m MACD) Len() int { return len(m.Line) }

// ComputeMACD derives the fast and slow EMAs of closes, the oscillator line
// and its signal line. Empty input yields empty output.
func ComputeMACD(closes []float64, fast, slow, signal int) (MACD, error) {
	st, err := NewMACDStream(fast, slow, signal)
	if err != nil {
		return MACD{}, err
	}
	n := len(closes)
	m := MACD{
		Fast:      make([]float64, n),
		Slow:      make([]float64, n),
		Line:      make([]float64, n),
		Signal:    make([]float64, n),
		Histogram: make([]float64, n),
	}
	for i, c := range closes {
		m.Histogram[i] = st.Update(c)
		m.Fast[i] = st.fast.Value()
		m.Slow[i] = st.slow.Value()
		m.Line[i] = st.Line()
		m.Signal[i] = st.Signal()
	}
	return m, nil
}

// MACDStream is the streaming form of ComputeMACD. Value returns the
// histogram (line minus signal).
type MACDStream struct {
	fast, slow, signal *EMA
	line               float64
}

// NewMACDStream validates the three spans.
func NewMACDStream(fast, slow, signal int) (*MACDStream, error) {
	f, err := NewEMA(fast)
	if err != nil {
		return nil, fmt.Errorf("fast span: %w", err)
	}
	s, err := NewEMA(slow)
	if err != nil {
		return nil, fmt.Errorf("slow span: %w", err)
	}
	sig, err := NewEMA(signal)
	if err != nil {
		return nil, fmt.Errorf("signal span: %w", err)
	}
	return &MACDStream{fast: f, slow: s, signal: sig}, nil
}

// Update feeds the next price and returns the histogram.
func (m *MACDStream) Update(price float64) float64 {
	m.line = m.fast.Update(price) - m.slow.Update(price)
	m.signal.Update(m.line)
	return m.Value()
}

// Value returns the current histogram.
func (m *MACDStream) Value() float64 { return m.line - m.signal.Value() }

// Line returns the current oscillator value.
func (m *MACDStream) Line() float64 { return m.line }

// Signal returns the current signal-line value.
func (m *MACDStream) Signal() float64 { return m.signal.Value() }
