package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"alphabot/internal/backtest"
	"alphabot/internal/portfolio"
)

const tsLayout = "2006-01-02 15:04"

func printReport(w io.Writer, rep backtest.Report, showTrades bool) {
	s := rep.Stats

	if showTrades && len(rep.Trades) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "#\tTime (UTC)\tSide\tClose\tFill\tUnits\tFee\tPnL\t")
		for i, t := range rep.Trades {
			pnl := ""
			if t.Side == portfolio.Sell {
				pnl = t.PnL.StringFixed(2)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				i+1, t.TS.Time().Format(tsLayout), t.Side,
				t.Close.StringFixed(2), t.Price.StringFixed(4), t.Units.StringFixed(6),
				t.Fee.StringFixed(4), pnl)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k, format string, args ...any) {
		fmt.Fprintf(tw, "%s\t"+format+"\n", append([]any{k}, args...)...)
	}
	row("Symbol", "%s", rep.Symbol)
	row("Strategy", "%s (fee %s, slippage %s)", rep.Strategy, rep.FeeRate, rep.Slippage)
	row("Period", "%s .. %s (%d bars)", s.Start.Time().Format(tsLayout), s.End.Time().Format(tsLayout), s.Bars)
	row("Start Value", "%s", s.StartEquity.StringFixed(2))
	row("End Value", "%s", s.EndEquity.StringFixed(2))
	row("Total Return [%]", "%.2f", s.TotalReturnPct)
	row("Benchmark Return [%]", "%.2f", s.BenchmarkReturnPct)
	row("Max Drawdown [%]", "%.2f", s.MaxDrawdownPct)
	row("Exposure [%]", "%.2f", s.ExposurePct)
	row("Total Fees Paid", "%s", s.TotalFees.StringFixed(2))
	row("Crossovers", "%d", rep.Crossovers)
	row("Total Trades", "%d", s.Trades)
	row("Closed Round Trips", "%d", s.RoundTrips)
	row("Win Rate [%]", "%.2f", s.WinRatePct)
	row("Open Position", "%t", s.OpenPosition)
	tw.Flush()
}
