// Package exporter serializes backtest results into the three persisted
// artifacts: equity.csv, trades.csv and metrics.json. Column order, key
// order and the fixed 10-decimal number formatting are a compatibility
// contract for downstream consumers and golden-file tests.
package exporter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/stockbt/stockbt/internal/downsample"
	"github.com/stockbt/stockbt/internal/timeutil"
	"github.com/stockbt/stockbt/internal/types"
	"github.com/stockbt/stockbt/pkg/errors"
)

const disclaimer = "Educational tool. Not investment advice. No live trading."

// formatFixed renders a float with exactly ten decimal places.
func formatFixed(value float64) string {
	return decimal.NewFromFloat(value).StringFixed(10)
}

func writeFile(path string, kind string, write func(w *bufio.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeExportOpenFailed, err, "Failed to open %s output path: %s", kind, path)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := write(w); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return errors.Wrapf(errors.ErrCodeExportWriteFailed, err, "Failed to write %s output: %s", kind, path)
	}

	return nil
}

// ExportEquityCSV writes one timestamp,equity row per aligned candle/equity pair.
func ExportEquityCSV(path string, candles types.Series, result types.BacktestResult) error {
	return writeFile(path, "equity", func(w *bufio.Writer) error {
		fmt.Fprintln(w, "timestamp,equity")

		count := len(candles)
		if len(result.Equity) < count {
			count = len(result.Equity)
		}

		for i := 0; i < count; i++ {
			fmt.Fprintf(w, "%s,%s\n", timeutil.FormatTimestamp(candles[i].Ts), formatFixed(result.Equity[i]))
		}

		return nil
	})
}

// ExportTradesCSV writes the trade ledger.
func ExportTradesCSV(path string, result types.BacktestResult) error {
	return writeFile(path, "trades", func(w *bufio.Writer) error {
		fmt.Fprintln(w, "entry_time,entry_price,exit_time,exit_price,qty,pnl,return_pct")

		for _, trade := range result.Trades {
			fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s\n",
				timeutil.FormatTimestamp(trade.EntryTime),
				formatFixed(trade.EntryPrice),
				timeutil.FormatTimestamp(trade.ExitTime),
				formatFixed(trade.ExitPrice),
				strconv.Itoa(trade.Qty),
				formatFixed(trade.PnL),
				formatFixed(trade.ReturnPct))
		}

		return nil
	})
}

// ExportMetricsJSON writes the run summary. The document is emitted
// literally rather than marshalled so key order and fixed-precision numbers
// stay byte-stable across runs.
func ExportMetricsJSON(path string, dataset types.DatasetMetadata, params types.SmaParams,
	settings types.BacktestSettings, metrics types.Metrics,
) error {
	return writeFile(path, "metrics", func(w *bufio.Writer) error {
		fmt.Fprintln(w, "{")
		fmt.Fprintln(w, "  \"schema_version\": 2,")
		fmt.Fprintf(w, "  \"dataset\": {\"rows\": %d, \"start\": %q, \"end\": %q},\n",
			dataset.Rows,
			timeutil.FormatTimestamp(dataset.StartTs),
			timeutil.FormatTimestamp(dataset.EndTs))
		fmt.Fprintf(w, "  \"strategy\": {\"name\": \"SMA_CROSS\", \"fast\": %d, \"slow\": %d},\n",
			params.FastWindow, params.SlowWindow)
		fmt.Fprintf(w, "  \"settings\": {\"starting_cash\": %s, \"commission_pct\": %s, \"position_size_pct\": %s, \"stop_loss_pct\": %s, \"take_profit_pct\": %s},\n",
			formatFixed(settings.StartingCash),
			formatFixed(settings.CommissionPct),
			formatFixed(settings.PositionSizePct),
			formatFixed(settings.StopLossPct),
			formatFixed(settings.TakeProfitPct))
		fmt.Fprintln(w, "  \"results\": {")
		fmt.Fprintf(w, "    \"total_return_pct\": %s,\n", formatFixed(metrics.TotalReturnPct))
		fmt.Fprintf(w, "    \"total_pnl\": %s,\n", formatFixed(metrics.TotalPnL))
		fmt.Fprintf(w, "    \"max_drawdown_pct\": %s,\n", formatFixed(metrics.MaxDrawdownPct))
		fmt.Fprintf(w, "    \"trades\": %d,\n", metrics.Trades)
		fmt.Fprintf(w, "    \"win_rate_pct\": %s,\n", formatFixed(metrics.WinRatePct))
		fmt.Fprintf(w, "    \"avg_trade_return_pct\": %s\n", formatFixed(metrics.AvgTradeReturnPct))
		fmt.Fprintln(w, "  },")
		fmt.Fprintf(w, "  \"disclaimer\": %q\n", disclaimer)
		fmt.Fprintln(w, "}")

		return nil
	})
}

// ExportPreviewCSV writes a downsampled timestamp,value series in render
// order, two rows per bucket. Used for quick equity-curve previews.
func ExportPreviewCSV(path string, buckets []types.BucketMinMax) error {
	return writeFile(path, "preview", func(w *bufio.Writer) error {
		fmt.Fprintln(w, "timestamp,value")

		for _, bucket := range buckets {
			first, second := downsample.RenderOrder(bucket)
			fmt.Fprintf(w, "%s,%s\n", timeutil.FormatTimestamp(first.Ts), formatFixed(first.Value))
			fmt.Fprintf(w, "%s,%s\n", timeutil.FormatTimestamp(second.Ts), formatFixed(second.Value))
		}

		return nil
	})
}
