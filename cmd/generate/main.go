package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/stockbt/stockbt/internal/backtest"
	"github.com/stockbt/stockbt/internal/importer"
	"github.com/stockbt/stockbt/internal/logger"
	"github.com/stockbt/stockbt/internal/types"
	"github.com/stockbt/stockbt/internal/version"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// writeSyntheticCSV emits a deterministic pseudo-market OHLCV path with
// bounded drift. The same row count always yields the same bytes, so the
// output doubles as a stress fixture for import and engine timing runs.
func writeSyntheticCSV(w io.Writer, rows int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Date,Open,High,Low,Close,Volume")

	price := 100.0
	day, month, year := 1, 1, 2020

	for i := 0; i < rows; i++ {
		drift := float64(i%29-14) * 0.02
		open := price

		close := open + drift
		if close < 1.0 {
			close = 1.0
		}

		high := open
		if close > high {
			high = close
		}

		low := open
		if close < low {
			low = close
		}

		fmt.Fprintf(bw, "%04d-%02d-%02d,%.6f,%.6f,%.6f,%.6f,1000\n",
			year, month, day, open, high+0.3, low-0.3, close)

		price = close

		// Flat 28-day months keep the calendar arithmetic trivial.
		day++
		if day > 28 {
			day = 1

			month++
			if month > 12 {
				month = 1
				year++
			}
		}
	}

	return bw.Flush()
}

func generateAction(ctx context.Context, cmd *cli.Command) error {
	l, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer l.Sync()

	rows := int(cmd.Int("rows"))
	if rows <= 0 {
		return fmt.Errorf("rows must be positive, got %d", rows)
	}

	outPath := cmd.String("out")

	file, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := writeSyntheticCSV(file, rows); err != nil {
		file.Close()
		return err
	}

	if err := file.Close(); err != nil {
		return err
	}

	l.Info("synthetic dataset written", zap.String("path", outPath), zap.Int("rows", rows))

	if !cmd.Bool("bench") {
		return nil
	}

	importStart := time.Now()
	imported := importer.ImportFile(outPath, types.DateFormatISO)
	importElapsed := time.Since(importStart)

	if !imported.Success {
		return imported.Err()
	}

	params := types.SmaParams{FastWindow: 20, SlowWindow: 50}
	settings := types.DefaultBacktestSettings()

	runStart := time.Now()
	result := backtest.Run(imported.Candles, params, settings)
	runElapsed := time.Since(runStart)

	l.Info("benchmark complete",
		zap.Int("rows", len(imported.Candles)),
		zap.Duration("import", importElapsed),
		zap.Duration("backtest", runElapsed),
		zap.Int("trades", result.Metrics.Trades),
		zap.Float64("total_return_pct", result.Metrics.TotalReturnPct))

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "generate",
		Usage:   "Generate a deterministic synthetic OHLCV dataset",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "rows",
				Aliases: []string{"n"},
				Usage:   "Number of daily bars to generate",
				Value:   200000,
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output CSV path",
				Value:   "synthetic_ohlcv.csv",
			},
			&cli.BoolFlag{
				Name:  "bench",
				Usage: "Time an import and a 20/50 crossover run over the generated file",
			},
		},
		Action: generateAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
