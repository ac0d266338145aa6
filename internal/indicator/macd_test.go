package indicator

import (
	"errors"
	"testing"
)

func TestComputeMACD_HandComputed(t *testing.T) {
	m, err := ComputeMACD(prices, 2, 3, 9)
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != len(prices) {
		t.Fatalf("len %d, want %d", m.Len(), len(prices))
	}
	assertSeries(t, "fast", m.Fast, []float64{100, 100.666667, 99.555556, 103.185185, 103.061728, 106.353909, 104.784636})
	assertSeries(t, "slow", m.Slow, []float64{100, 100.5, 99.75, 102.375, 102.6875, 105.34375, 104.671875})
	assertSeries(t, "line", m.Line, []float64{0, 0.166667, -0.194444, 0.810185, 0.374228, 1.010159, 0.112761})
	assertSeries(t, "signal", m.Signal, []float64{0, 0.033333, -0.012222, 0.152259, 0.196653, 0.359354, 0.310036})
	assertSeries(t, "histogram", m.Histogram, []float64{0, 0.133333, -0.182222, 0.657926, 0.177575, 0.650805, -0.197274})
}

func TestComputeMACD_LineIsFastMinusSlow(t *testing.T) {
	m, err := ComputeMACD(prices, 12, 26, 9)
	if err != nil {
		t.Fatal(err)
	}
	for i := range prices {
		assertClose(t, "line", m.Line[i], m.Fast[i]-m.Slow[i], 1e-12)
		assertClose(t, "hist", m.Histogram[i], m.Line[i]-m.Signal[i], 1e-12)
	}
	// both EMAs start at the first close, so the oscillator starts at zero
	if m.Line[0] != 0 || m.Signal[0] != 0 {
		t.Errorf("first bar line=%v signal=%v, want 0", m.Line[0], m.Signal[0])
	}
}

func TestComputeMACD_InvalidSpans(t *testing.T) {
	cases := []struct {
		name               string
		fast, slow, signal int
	}{
		{"fast", 0, 26, 9},
		{"slow", 12, -3, 9},
		{"signal", 12, 26, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ComputeMACD(prices, tc.fast, tc.slow, tc.signal); !errors.Is(err, ErrInvalidSpan) {
				t.Errorf("err = %v, want ErrInvalidSpan", err)
			}
		})
	}
}

func TestComputeMACD_Empty(t *testing.T) {
	m, err := ComputeMACD(nil, 12, 26, 9)
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 || len(m.Signal) != 0 || len(m.Fast) != 0 {
		t.Errorf("expected empty output, got %+v", m)
	}
}

func TestMACDStream_MatchesSeries(t *testing.T) {
	m, _ := ComputeMACD(prices, 2, 3, 9)
	st, err := NewMACDStream(2, 3, 9)
	if err != nil {
		t.Fatal(err)
	}
	if st.Value() != 0 {
		t.Error("non-zero before first update")
	}
	for i, p := range prices {
		hist := st.Update(p)
		assertClose(t, "stream hist", hist, m.Histogram[i], 1e-12)
		assertClose(t, "stream line", st.Line(), m.Line[i], 1e-12)
		assertClose(t, "stream signal", st.Signal(), m.Signal[i], 1e-12)
	}
	if st.Value() != m.Histogram[len(prices)-1] {
		t.Errorf("value = %v, want last histogram %v", st.Value(), m.Histogram[len(prices)-1])
	}
}
