package notification

import (
	"fmt"
	"strings"

	"alphabot/internal/backtest"
	"alphabot/internal/ingest"
)

// IngestAlert summarises an ingestion run. A failed run is a warning since
// committed pages survive and the next run resumes.
func IngestAlert(rep ingest.Report, err error) Alert {
	if err != nil {
		return Alert{
			Level:   AlertWarning,
			Title:   "Ingestion failed: " + rep.Symbol,
			Message: fmt.Sprintf("run %s stopped after %d pages (%d rows): %v", rep.RunID, rep.Pages, rep.Rows, err),
		}
	}
	msg := fmt.Sprintf("run %s imported %d rows in %d pages", rep.RunID, rep.Rows, rep.Pages)
	if rep.Rows > 0 {
		msg += fmt.Sprintf(" (%s .. %s)", rep.FirstTS, rep.LastTS)
	}
	if rep.Dropped > 0 {
		msg += fmt.Sprintf(", dropped %d at or before cursor", rep.Dropped)
	}
	return Alert{Level: AlertInfo, Title: "Ingestion complete: " + rep.Symbol, Message: msg}
}

// BacktestAlert summarises a backtest run.
func BacktestAlert(rep backtest.Report, err error) Alert {
	if err != nil {
		return Alert{
			Level:   AlertCritical,
			Title:   "Backtest failed: " + rep.Symbol,
			Message: fmt.Sprintf("run %s: %v", rep.RunID, err),
		}
	}
	s := rep.Stats
	var b strings.Builder
	fmt.Fprintf(&b, "%s over %d bars (%s .. %s)\n", rep.Strategy, s.Bars, s.Start, s.End)
	fmt.Fprintf(&b, "equity %s -> %s (%+.2f%%, buy&hold %+.2f%%)\n",
		s.StartEquity.StringFixed(2), s.EndEquity.StringFixed(2), s.TotalReturnPct, s.BenchmarkReturnPct)
	fmt.Fprintf(&b, "max drawdown %.2f%%, %d trades, win rate %.1f%%, fees %s",
		s.MaxDrawdownPct, s.Trades, s.WinRatePct, s.TotalFees.StringFixed(2))
	return Alert{Level: AlertInfo, Title: "Backtest complete: " + rep.Symbol, Message: b.String()}
}
