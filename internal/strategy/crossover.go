// Package strategy turns indicator series into trade signals.
package strategy

import (
	"errors"
	"fmt"

	"alphabot/internal/model"
)

// ErrLengthMismatch is returned when the input series differ in length.
var ErrLengthMismatch = errors.New("strategy: series length mismatch")

// Direction of a crossover.
type Direction string

const (
	Bullish Direction = "BULLISH" // a crosses above b
	Bearish Direction = "BEARISH" // a crosses below b
)

// Crossover marks the bar at which a crossed b.
type Crossover struct {
	Index     int             `json:"index"`
	TS        model.Timestamp `json:"ts"`
	Direction Direction       `json:"direction"`
}

// DetectCrossovers compares a and b bar by bar. Bar t (t >= 1) is bullish
// when a[t] > b[t] and the latest earlier bar with a != b had a < b, and
// bearish in the mirror case. Equal bars carry the previous side forward:
// a touch that turns back emits nothing, and neither does leaving an
// equality that nothing crossed into, such as seeded EMAs at bar 0.
// Results are in ascending index order with at most one event per bar.
func DetectCrossovers(ts []model.Timestamp, a, b []float64) ([]Crossover, error) {
	if len(a) != len(b) || len(ts) != len(a) {
		return nil, fmt.Errorf("%w: ts=%d a=%d b=%d", ErrLengthMismatch, len(ts), len(a), len(b))
	}
	var out []Crossover
	side := 0 // -1 below, +1 above, 0 not yet apart
	for t := range a {
		cur := 0
		switch {
		case a[t] > b[t]:
			cur = 1
		case a[t] < b[t]:
			cur = -1
		}
		if cur == 0 {
			continue
		}
		switch {
		case side < 0 && cur > 0:
			out = append(out, Crossover{Index: t, TS: ts[t], Direction: Bullish})
		case side > 0 && cur < 0:
			out = append(out, Crossover{Index: t, TS: ts[t], Direction: Bearish})
		}
		side = cur
	}
	return out, nil
}
