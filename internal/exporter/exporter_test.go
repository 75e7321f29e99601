package exporter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stockbt/stockbt/internal/backtest"
	"github.com/stockbt/stockbt/internal/downsample"
	"github.com/stockbt/stockbt/internal/importer"
	"github.com/stockbt/stockbt/internal/types"
	"github.com/stockbt/stockbt/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ExporterTestSuite struct {
	suite.Suite
}

func TestExporterSuite(t *testing.T) {
	suite.Run(t, new(ExporterTestSuite))
}

func (suite *ExporterTestSuite) importSample() types.Series {
	result := importer.ImportFile(filepath.Join("testdata", "sample.csv"), types.DateFormatISO)
	suite.Require().True(result.Success)
	suite.Require().Len(result.Candles, 5)

	return result.Candles
}

func (suite *ExporterTestSuite) readFile(path string) string {
	data, err := os.ReadFile(path)
	suite.Require().NoError(err)

	return string(data)
}

func (suite *ExporterTestSuite) TestGoldenRegression() {
	candles := suite.importSample()
	params := types.SmaParams{FastWindow: 2, SlowWindow: 3}
	settings := types.DefaultBacktestSettings()

	result := backtest.Run(candles, params, settings)
	suite.Require().Len(result.Trades, 1)

	dir := suite.T().TempDir()

	equityPath := filepath.Join(dir, "equity.csv")
	suite.Require().NoError(ExportEquityCSV(equityPath, candles, result))

	tradesPath := filepath.Join(dir, "trades.csv")
	suite.Require().NoError(ExportTradesCSV(tradesPath, result))

	dataset := types.DatasetMetadata{
		Rows:    len(candles),
		StartTs: candles[0].Ts,
		EndTs:   candles[len(candles)-1].Ts,
	}

	metricsPath := filepath.Join(dir, "metrics.json")
	suite.Require().NoError(ExportMetricsJSON(metricsPath, dataset, params, settings, result.Metrics))

	suite.Equal(suite.readFile(filepath.Join("testdata", "golden", "equity.csv")), suite.readFile(equityPath))
	suite.Equal(suite.readFile(filepath.Join("testdata", "golden", "trades.csv")), suite.readFile(tradesPath))
	suite.Equal(suite.readFile(filepath.Join("testdata", "golden", "metrics.json")), suite.readFile(metricsPath))
}

func (suite *ExporterTestSuite) TestExportIsByteDeterministic() {
	candles := suite.importSample()
	params := types.SmaParams{FastWindow: 2, SlowWindow: 3}
	settings := types.DefaultBacktestSettings()

	dir := suite.T().TempDir()
	paths := [2]string{}

	for run := 0; run < 2; run++ {
		result := backtest.Run(candles, params, settings)

		path := filepath.Join(dir, "equity"+string(rune('a'+run))+".csv")
		suite.Require().NoError(ExportEquityCSV(path, candles, result))

		tradesPath := filepath.Join(dir, "trades"+string(rune('a'+run))+".csv")
		suite.Require().NoError(ExportTradesCSV(tradesPath, result))

		dataset := types.DatasetMetadata{Rows: len(candles), StartTs: candles[0].Ts, EndTs: candles[4].Ts}
		metricsPath := filepath.Join(dir, "metrics"+string(rune('a'+run))+".json")
		suite.Require().NoError(ExportMetricsJSON(metricsPath, dataset, params, settings, result.Metrics))

		paths[run] = path
	}

	suite.Equal(suite.readFile(paths[0]), suite.readFile(paths[1]))
	suite.Equal(
		suite.readFile(filepath.Join(dir, "tradesa.csv")),
		suite.readFile(filepath.Join(dir, "tradesb.csv")))
	suite.Equal(
		suite.readFile(filepath.Join(dir, "metricsa.json")),
		suite.readFile(filepath.Join(dir, "metricsb.json")))
}

func (suite *ExporterTestSuite) TestEquityRowCountMatchesAlignment() {
	candles := suite.importSample()
	result := backtest.Run(candles, types.SmaParams{FastWindow: 2, SlowWindow: 3}, types.DefaultBacktestSettings())

	path := filepath.Join(suite.T().TempDir(), "equity.csv")
	suite.Require().NoError(ExportEquityCSV(path, candles, result))

	content := suite.readFile(path)
	lines := 0

	for _, ch := range content {
		if ch == '\n' {
			lines++
		}
	}

	suite.Equal(len(candles)+1, lines) // header + one row per candle
}

func (suite *ExporterTestSuite) TestTradesExportWithNoTrades() {
	path := filepath.Join(suite.T().TempDir(), "trades.csv")
	suite.Require().NoError(ExportTradesCSV(path, types.BacktestResult{}))
	suite.Equal("entry_time,entry_price,exit_time,exit_price,qty,pnl,return_pct\n", suite.readFile(path))
}

func (suite *ExporterTestSuite) TestExportFailsOnUnwritablePath() {
	badPath := filepath.Join(suite.T().TempDir(), "missing", "dir", "equity.csv")

	err := ExportEquityCSV(badPath, nil, types.BacktestResult{})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeExportOpenFailed))
	suite.Contains(err.Error(), badPath)

	err = ExportTradesCSV(badPath, types.BacktestResult{})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeExportOpenFailed))

	err = ExportMetricsJSON(badPath, types.DatasetMetadata{}, types.SmaParams{}, types.BacktestSettings{}, types.Metrics{})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeExportOpenFailed))
}

func (suite *ExporterTestSuite) TestPreviewExportRendersInTemporalOrder() {
	buckets := []types.BucketMinMax{
		{MinTs: 60, MinValue: 1, MaxTs: 120, MaxValue: 9},
		{MinTs: 300, MinValue: 2, MaxTs: 240, MaxValue: 8},
	}

	path := filepath.Join(suite.T().TempDir(), "preview.csv")
	suite.Require().NoError(ExportPreviewCSV(path, buckets))

	expected := "timestamp,value\n" +
		"1970-01-01T00:01:00Z,1.0000000000\n" +
		"1970-01-01T00:02:00Z,9.0000000000\n" +
		"1970-01-01T00:04:00Z,8.0000000000\n" +
		"1970-01-01T00:05:00Z,2.0000000000\n"
	suite.Equal(expected, suite.readFile(path))
}

func (suite *ExporterTestSuite) TestPreviewOfReducedEquityCurve() {
	candles := suite.importSample()
	result := backtest.Run(candles, types.SmaParams{FastWindow: 2, SlowWindow: 3}, types.DefaultBacktestSettings())

	points := make([]types.SeriesPoint, len(candles))
	for i, candle := range candles {
		points[i] = types.SeriesPoint{Ts: candle.Ts, Value: result.Equity[i]}
	}

	buckets := downsample.Reduce(points, 800, 2000)
	suite.Len(buckets, len(points)) // small series stays verbatim

	path := filepath.Join(suite.T().TempDir(), "preview.csv")
	suite.Require().NoError(ExportPreviewCSV(path, buckets))
}
