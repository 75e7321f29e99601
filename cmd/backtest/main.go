package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/stockbt/stockbt/internal/backtest"
	"github.com/stockbt/stockbt/internal/downsample"
	"github.com/stockbt/stockbt/internal/exporter"
	"github.com/stockbt/stockbt/internal/importer"
	"github.com/stockbt/stockbt/internal/logger"
	"github.com/stockbt/stockbt/internal/types"
	"github.com/stockbt/stockbt/internal/version"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// displayCap bounds the preview export to at most this many rendered points.
const displayCap = 2000

// RunConfig is the yaml run configuration. Flags fill the same fields when
// no config file is given.
type RunConfig struct {
	Strategy types.SmaParams        `yaml:"strategy"`
	Settings types.BacktestSettings `yaml:"settings"`
}

func (c RunConfig) Validate() error {
	if !c.Strategy.IsValid() {
		return fmt.Errorf("invalid strategy windows: fast=%d slow=%d (need 0 < fast < slow)",
			c.Strategy.FastWindow, c.Strategy.SlowWindow)
	}

	return c.Settings.Validate()
}

func loadConfig(cmd *cli.Command) (RunConfig, error) {
	config := RunConfig{
		Strategy: types.SmaParams{
			FastWindow: int(cmd.Int("fast")),
			SlowWindow: int(cmd.Int("slow")),
		},
		Settings: types.DefaultBacktestSettings(),
	}

	if path := cmd.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("failed to read config: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	l, err := newLogger(cmd.Bool("verbose"))
	if err != nil {
		return err
	}
	defer l.Sync()

	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	format, err := types.ParseDateFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	dataPath := cmd.String("data")
	imported := importer.ImportFile(dataPath, format)

	for _, warning := range imported.Warnings {
		l.Warn("import warning", zap.Int("line", warning.Line), zap.String("message", warning.Message))
	}

	if !imported.Success {
		for _, issue := range imported.Errors {
			l.Error("import error", zap.Int("line", issue.Line), zap.String("message", issue.Message))
		}

		return imported.Err()
	}

	l.Info("dataset imported",
		zap.String("path", dataPath),
		zap.Int("rows", len(imported.Candles)),
		zap.Int("dropped", imported.DroppedRows))

	result := backtest.Run(imported.Candles, config.Strategy, config.Settings)

	for _, warning := range result.Warnings {
		l.Warn("backtest warning", zap.String("message", warning))
	}

	runID := cmd.String("run-id")
	if runID == "" {
		runID = uuid.New().String()
	}

	runDir := filepath.Join(cmd.String("out"), runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create results folder: %w", err)
	}

	candles := imported.Candles
	dataset := types.DatasetMetadata{
		Rows:    len(candles),
		StartTs: candles[0].Ts,
		EndTs:   candles[len(candles)-1].Ts,
	}

	if err := exporter.ExportEquityCSV(filepath.Join(runDir, "equity.csv"), candles, result); err != nil {
		return err
	}

	if err := exporter.ExportTradesCSV(filepath.Join(runDir, "trades.csv"), result); err != nil {
		return err
	}

	if err := exporter.ExportMetricsJSON(filepath.Join(runDir, "metrics.json"),
		dataset, config.Strategy, config.Settings, result.Metrics); err != nil {
		return err
	}

	if width := int(cmd.Int("preview-width")); width > 0 {
		points := make([]types.SeriesPoint, len(candles))
		for i, candle := range candles {
			points[i] = types.SeriesPoint{Ts: candle.Ts, Value: result.Equity[i]}
		}

		buckets := downsample.Reduce(points, width, displayCap)
		if err := exporter.ExportPreviewCSV(filepath.Join(runDir, "preview.csv"), buckets); err != nil {
			return err
		}
	}

	l.Info("backtest complete",
		zap.String("results", runDir),
		zap.Float64("total_return_pct", result.Metrics.TotalReturnPct),
		zap.Float64("max_drawdown_pct", result.Metrics.MaxDrawdownPct),
		zap.Int("trades", result.Metrics.Trades))

	return nil
}

func newLogger(verbose bool) (*logger.Logger, error) {
	if verbose {
		return logger.NewVerboseLogger()
	}

	return logger.NewLogger()
}

func main() {
	cmd := &cli.Command{
		Name:    "backtest",
		Usage:   "Run an SMA crossover backtest over a CSV dataset",
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
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a yaml run config (overrides --fast/--slow)",
			},
			&cli.IntFlag{
				Name:  "fast",
				Usage: "Fast SMA window",
				Value: 10,
			},
			&cli.IntFlag{
				Name:  "slow",
				Usage: "Slow SMA window",
				Value: 30,
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Results folder; each run writes into a subfolder",
				Value:   "results",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Fixed run subfolder name (default: random uuid)",
			},
			&cli.IntFlag{
				Name:  "preview-width",
				Usage: "If > 0, also export a downsampled equity preview for this pixel width",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: runAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
