package indicator

import (
	"errors"
	"math"
	"testing"
)

var prices = []float64{100, 101, 99, 105, 103, 108, 104}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertSeries(t *testing.T, label string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len %d, want %d", label, len(got), len(want))
	}
	for i := range want {
		assertClose(t, label, got[i], want[i], 1e-6)
	}
}

func TestEMA_SeededWithFirstPrice(t *testing.T) {
	for _, span := range []int{1, 2, 12, 26, 200} {
		e, err := NewEMA(span)
		if err != nil {
			t.Fatal(err)
		}
		if got := e.Update(123.45); got != 123.45 {
			t.Errorf("span %d: EMA[0] = %v, want 123.45", span, got)
		}
	}
}

func TestEMASeries_HandComputed(t *testing.T) {
	// span 3 -> alpha 0.5
	// 100, 0.5*101+0.5*100 = 100.5, 0.5*99+0.5*100.5 = 99.75, ...
	got, err := EMASeries(prices, 3)
	if err != nil {
		t.Fatal(err)
	}
	assertSeries(t, "EMA(3)", got, []float64{100, 100.5, 99.75, 102.375, 102.6875, 105.34375, 104.671875})

	// span 2 -> alpha 2/3
	got, err = EMASeries(prices, 2)
	if err != nil {
		t.Fatal(err)
	}
	assertSeries(t, "EMA(2)", got, []float64{100, 100.666667, 99.555556, 103.185185, 103.061728, 106.353909, 104.784636})
}

func TestEMASeries_SpanOneIsIdentity(t *testing.T) {
	got, err := EMASeries(prices, 1)
	if err != nil {
		t.Fatal(err)
	}
	assertSeries(t, "EMA(1)", got, prices)
}

func TestEMASeries_ConstantInput(t *testing.T) {
	xs := []float64{42, 42, 42, 42, 42}
	got, err := EMASeries(xs, 5)
	if err != nil {
		t.Fatal(err)
	}
	assertSeries(t, "EMA(5) constant", got, xs)
}

func TestEMASeries_Empty(t *testing.T) {
	got, err := EMASeries(nil, 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d values for empty input", len(got))
	}
}

func TestEMA_InvalidSpan(t *testing.T) {
	for _, span := range []int{0, -1} {
		if _, err := NewEMA(span); !errors.Is(err, ErrInvalidSpan) {
			t.Errorf("span %d: err = %v, want ErrInvalidSpan", span, err)
		}
		if _, err := EMASeries(prices, span); !errors.Is(err, ErrInvalidSpan) {
			t.Errorf("series span %d: err = %v, want ErrInvalidSpan", span, err)
		}
	}
}

