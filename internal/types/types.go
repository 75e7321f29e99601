package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/stockbt/stockbt/pkg/errors"
)

// DateFormat selects the textual timestamp convention used by a CSV file.
type DateFormat string

const (
	DateFormatISO DateFormat = "iso"
	DateFormatMDY DateFormat = "mdy"
	DateFormatDMY DateFormat = "dmy"
)

// ParseDateFormat maps a user-supplied format name to a DateFormat.
func ParseDateFormat(value string) (DateFormat, error) {
	switch DateFormat(value) {
	case DateFormatISO, DateFormatMDY, DateFormatDMY:
		return DateFormat(value), nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter,
			"unknown date format %q, expected iso, mdy or dmy", value)
	}
}

// Candle is a single OHLCV bar. Ts is UTC epoch seconds.
type Candle struct {
	Ts     int64   `yaml:"ts" json:"ts" csv:"ts"`
	Open   float64 `yaml:"open" json:"open" csv:"open"`
	High   float64 `yaml:"high" json:"high" csv:"high"`
	Low    float64 `yaml:"low" json:"low" csv:"low"`
	Close  float64 `yaml:"close" json:"close" csv:"close"`
	Volume float64 `yaml:"volume" json:"volume" csv:"volume"`
}

// Series is an ordered candle sequence. After import the timestamps are
// strictly ascending and unique, and the slice is treated as read-only.
type Series = []Candle

// SmaParams holds the fast/slow window lengths of the crossover strategy.
type SmaParams struct {
	FastWindow int `yaml:"fast_window" json:"fast_window" validate:"gt=0"`
	SlowWindow int `yaml:"slow_window" json:"slow_window" validate:"gt=0,gtfield=FastWindow"`
}

// IsValid reports whether the windows can produce a crossover signal.
func (p SmaParams) IsValid() bool {
	return p.FastWindow > 0 && p.SlowWindow > 0 && p.FastWindow < p.SlowWindow
}

// BacktestSettings holds the cash, cost and risk configuration of a run.
// StopLossPct and TakeProfitPct are fractions from the entry close; zero
// disables the exit.
type BacktestSettings struct {
	StartingCash    float64 `yaml:"starting_cash" json:"starting_cash" validate:"gt=0"`
	CommissionPct   float64 `yaml:"commission_pct" json:"commission_pct" validate:"gte=0,lt=1"`
	PositionSizePct float64 `yaml:"position_size_pct" json:"position_size_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct" json:"stop_loss_pct" validate:"gte=0"`
	TakeProfitPct   float64 `yaml:"take_profit_pct" json:"take_profit_pct" validate:"gte=0"`
}

// DefaultBacktestSettings returns the settings used when nothing is configured.
func DefaultBacktestSettings() BacktestSettings {
	return BacktestSettings{
		StartingCash:    10000.0,
		CommissionPct:   0.001,
		PositionSizePct: 1.0,
		StopLossPct:     0,
		TakeProfitPct:   0,
	}
}

// Validate checks the settings against their field constraints.
func (s BacktestSettings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest settings", err)
	}

	return nil
}

// Trade records one closed round trip. PnL is net of entry and exit
// commission; ReturnPct is the raw (exit-entry)/entry fraction.
type Trade struct {
	EntryTime  int64   `csv:"entry_time"`
	EntryPrice float64 `csv:"entry_price"`
	ExitTime   int64   `csv:"exit_time"`
	ExitPrice  float64 `csv:"exit_price"`
	Qty        int     `csv:"qty"`
	PnL        float64 `csv:"pnl"`
	ReturnPct  float64 `csv:"return_pct"`
}

// Metrics summarizes a backtest run. Percent fields are already scaled by 100.
type Metrics struct {
	TotalReturnPct    float64 `json:"total_return_pct"`
	TotalPnL          float64 `json:"total_pnl"`
	Trades            int     `json:"trades"`
	WinRatePct        float64 `json:"win_rate_pct"`
	AvgTradeReturnPct float64 `json:"avg_trade_return_pct"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`
}

// BacktestResult is the full output of one engine invocation. Equity and
// Drawdown are aligned 1:1 with the input series; the caller owns the result.
type BacktestResult struct {
	Equity   []float64
	Drawdown []float64
	Trades   []Trade
	Metrics  Metrics
	Warnings []string
}

// ImportIssue describes one problem found during import. Line 0 marks a
// file-level issue; data rows are 1-indexed including the header line.
type ImportIssue struct {
	Line    int
	Message string
}

// ImportResult is the structured outcome of a CSV import. FailureCode
// classifies the file-level cause when Success is false.
type ImportResult struct {
	Success        bool
	PartialSuccess bool
	DroppedRows    int
	Candles        Series
	Warnings       []ImportIssue
	Errors         []ImportIssue
	FailureCode    errors.ErrorCode
}

// Err converts a failed import into a coded error. Returns nil on success.
func (r ImportResult) Err() error {
	if r.Success {
		return nil
	}

	code := r.FailureCode
	if code == 0 {
		code = errors.ErrCodeUnknown
	}

	message := "import failed"
	if len(r.Errors) > 0 {
		message = r.Errors[0].Message
	}

	return errors.New(code, message)
}

// DatasetMetadata identifies the imported dataset in exported artifacts.
type DatasetMetadata struct {
	Rows    int
	StartTs int64
	EndTs   int64
}

// SeriesPoint is a timestamped sample handed to the downsampler.
type SeriesPoint struct {
	Ts    int64
	Value float64
}

// BucketMinMax is the pair of extremes of one downsampling bucket.
type BucketMinMax struct {
	MinTs    int64
	MinValue float64
	MaxTs    int64
	MaxValue float64
}
