package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/stockbt/stockbt/internal/backtest"
	"github.com/stockbt/stockbt/internal/importer"
	"github.com/stockbt/stockbt/internal/logger"
	"github.com/stockbt/stockbt/internal/types"
	"github.com/stockbt/stockbt/internal/version"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// sweepRow is one evaluated fast/slow combination, scored on the training
// slice and re-run out of sample on the test slice.
type sweepRow struct {
	Fast  int
	Slow  int
	Train types.Metrics
	Test  types.Metrics
}

type grid struct {
	FastMin, FastMax int
	SlowMin, SlowMax int
	Step             int
}

// combos expands the grid, dropping window pairs that are invalid or whose
// slow window exceeds maxSlow (such pairs can never produce a signal on
// either data slice, so evaluating them would only pad the report).
func (g grid) combos(maxSlow int) []types.SmaParams {
	var out []types.SmaParams

	for fast := g.FastMin; fast <= g.FastMax; fast += g.Step {
		for slow := g.SlowMin; slow <= g.SlowMax; slow += g.Step {
			params := types.SmaParams{FastWindow: fast, SlowWindow: slow}
			if params.IsValid() && slow <= maxSlow {
				out = append(out, params)
			}
		}
	}

	return out
}

// evaluate runs every grid combination over the train/test slices with a
// bounded worker pool. Series slices are read-only, so the workers share
// them without copies.
func evaluate(train, test types.Series, combos []types.SmaParams, settings types.BacktestSettings,
	bar *progressbar.ProgressBar,
) []sweepRow {
	rows := make([]sweepRow, len(combos))
	jobs := make(chan int)

	var wg sync.WaitGroup

	workers := runtime.NumCPU()
	if workers > len(combos) {
		workers = len(combos)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range jobs {
				params := combos[i]
				rows[i] = sweepRow{
					Fast:  params.FastWindow,
					Slow:  params.SlowWindow,
					Train: backtest.Run(train, params, settings).Metrics,
					Test:  backtest.Run(test, params, settings).Metrics,
				}

				bar.Add(1)
			}
		}()
	}

	for i := range combos {
		jobs <- i
	}

	close(jobs)
	wg.Wait()

	return rows
}

func writeReport(path string, rows []sweepRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open report path: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintln(w, "fast,slow,train_return_pct,train_max_drawdown_pct,train_trades,test_return_pct,test_max_drawdown_pct,test_trades")

	for _, row := range rows {
		fmt.Fprintf(w, "%d,%d,%.6f,%.6f,%d,%.6f,%.6f,%d\n",
			row.Fast, row.Slow,
			row.Train.TotalReturnPct, row.Train.MaxDrawdownPct, row.Train.Trades,
			row.Test.TotalReturnPct, row.Test.MaxDrawdownPct, row.Test.Trades)
	}

	return w.Flush()
}

func sweepAction(ctx context.Context, cmd *cli.Command) error {
	l, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer l.Sync()

	format, err := types.ParseDateFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	imported := importer.ImportFile(cmd.String("data"), format)
	if !imported.Success {
		for _, issue := range imported.Errors {
			l.Error("import error", zap.Int("line", issue.Line), zap.String("message", issue.Message))
		}

		return imported.Err()
	}

	split := cmd.Float("split")
	if split <= 0 || split >= 1 {
		return fmt.Errorf("split must be in (0, 1), got %v", split)
	}

	candles := imported.Candles
	cut := int(float64(len(candles)) * split)
	train, test := candles[:cut], candles[cut:]

	if len(train) < 2 {
		return fmt.Errorf("dataset too short for requested split ratio")
	}

	g := grid{
		FastMin: int(cmd.Int("fast-min")),
		FastMax: int(cmd.Int("fast-max")),
		SlowMin: int(cmd.Int("slow-min")),
		SlowMax: int(cmd.Int("slow-max")),
		Step:    int(cmd.Int("step")),
	}

	if g.Step <= 0 {
		return fmt.Errorf("step must be positive, got %d", g.Step)
	}

	maxSlow := len(train)
	if len(test) < maxSlow {
		maxSlow = len(test)
	}

	combos := g.combos(maxSlow)
	if len(combos) == 0 {
		return fmt.Errorf("grid contains no valid fast/slow combination for this split")
	}

	l.Info("sweep starting",
		zap.Int("combinations", len(combos)),
		zap.Int("train_rows", len(train)),
		zap.Int("test_rows", len(test)))

	bar := progressbar.Default(int64(len(combos)), "sweeping")
	rows := evaluate(train, test, combos, types.DefaultBacktestSettings(), bar)

	// Best train return first; drawdown breaks ties, then the grid order.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Train.TotalReturnPct != rows[j].Train.TotalReturnPct {
			return rows[i].Train.TotalReturnPct > rows[j].Train.TotalReturnPct
		}

		return rows[i].Train.MaxDrawdownPct > rows[j].Train.MaxDrawdownPct
	})

	reportPath := cmd.String("out")
	if err := writeReport(reportPath, rows); err != nil {
		return err
	}

	best := rows[0]
	l.Info("sweep complete",
		zap.String("report", reportPath),
		zap.Int("best_fast", best.Fast),
		zap.Int("best_slow", best.Slow),
		zap.Float64("best_train_return_pct", best.Train.TotalReturnPct),
		zap.Float64("best_test_return_pct", best.Test.TotalReturnPct))

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "sweep",
		Usage:   "Grid-search SMA windows with a train/test split",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the OHLCV CSV file",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Ambiguous-date convention: iso, mdy or dmy",
				Value:   "iso",
			},
			&cli.FloatFlag{
				Name:  "split",
				Usage: "Fraction of rows used for training",
				Value: 0.7,
			},
			&cli.IntFlag{Name: "fast-min", Usage: "Smallest fast window", Value: 5},
			&cli.IntFlag{Name: "fast-max", Usage: "Largest fast window", Value: 30},
			&cli.IntFlag{Name: "slow-min", Usage: "Smallest slow window", Value: 10},
			&cli.IntFlag{Name: "slow-max", Usage: "Largest slow window", Value: 60},
			&cli.IntFlag{Name: "step", Usage: "Grid step for both windows", Value: 5},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Report CSV path",
				Value:   "sweep_report.csv",
			},
		},
		Action: sweepAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
