package strategy

import (
	"fmt"

	"alphabot/internal/indicator"
	"alphabot/internal/model"
)

// MACDCrossover signals when the MACD line crosses its signal line:
// bullish crossings enter, bearish crossings exit.
type MACDCrossover struct {
	FastSpan   int
	SlowSpan   int
	SignalSpan int
}

func (s MACDCrossover) Name() string {
	return fmt.Sprintf("MACD_Crossover_%d_%d_%d", s.FastSpan, s.SlowSpan, s.SignalSpan)
}

// Evaluate computes the indicator over the closes of series and returns it
// with the crossovers of line against signal.
func (s MACDCrossover) Evaluate(series model.PriceSeries) (indicator.MACD, []Crossover, error) {
	m, err := indicator.ComputeMACD(series.Closes(), s.FastSpan, s.SlowSpan, s.SignalSpan)
	if err != nil {
		return indicator.MACD{}, nil, err
	}
	xs, err := DetectCrossovers(series.Timestamps(), m.Line, m.Signal)
	if err != nil {
		return indicator.MACD{}, nil, err
	}
	return m, xs, nil
}
