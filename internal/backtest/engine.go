// Package backtest runs a deterministic single-asset, long-only SMA
// crossover simulation. Run is a pure function: the result depends only on
// its inputs and no state is retained between calls, so concurrent
// invocations over the same read-only candle series are safe.
package backtest

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/stockbt/stockbt/internal/types"
)

// pendingAction is the scheduled next-bar order. Signals detected on bar i
// fill at bar i+1's open, which removes lookahead bias.
type pendingAction int

const (
	pendingNone pendingAction = iota
	pendingBuy
	pendingSell
)

// openPosition tracks the entry of the currently held qty.
type openPosition struct {
	entryTime  int64
	entryPrice float64
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}

	if value > 1 {
		return 1
	}

	return value
}

func closeTrade(entry openPosition, exitTime int64, exitPrice float64, qty int, commissionPct float64) types.Trade {
	quantity := float64(qty)

	returnPct := 0.0
	if entry.entryPrice > 0 {
		returnPct = (exitPrice - entry.entryPrice) / entry.entryPrice
	}

	return types.Trade{
		EntryTime:  entry.entryTime,
		EntryPrice: entry.entryPrice,
		ExitTime:   exitTime,
		ExitPrice:  exitPrice,
		Qty:        qty,
		PnL: (exitPrice-entry.entryPrice)*quantity -
			entry.entryPrice*quantity*commissionPct -
			exitPrice*quantity*commissionPct,
		ReturnPct: returnPct,
	}
}

// Run simulates the crossover strategy over candles and returns the equity
// curve, drawdown curve, trade ledger, summary metrics and any warnings.
// Bad inputs degrade to warnings; Run never fails.
func Run(candles types.Series, params types.SmaParams, settings types.BacktestSettings) types.BacktestResult {
	var result types.BacktestResult

	if len(candles) == 0 {
		result.Warnings = append(result.Warnings, "Backtest skipped: empty dataset.")

		return result
	}

	if !params.IsValid() {
		result.Warnings = append(result.Warnings,
			"Backtest skipped: invalid SMA parameters (require fast < slow and > 0).")

		return result
	}

	n := len(candles)
	result.Equity = make([]float64, n)
	result.Drawdown = make([]float64, n)

	for i := range result.Equity {
		result.Equity[i] = settings.StartingCash
	}

	if n < params.SlowWindow {
		result.Warnings = append(result.Warnings,
			"Dataset length is below slow_window. No signals/trades generated.")
	}

	cash := settings.StartingCash
	qty := 0
	positionSizePct := clamp01(settings.PositionSizePct)
	stopLossEnabled := settings.StopLossPct > 0
	takeProfitEnabled := settings.TakeProfitPct > 0

	entry := optional.None[openPosition]()
	pending := pendingNone

	fastSum := 0.0
	slowSum := 0.0
	prevFast := 0.0
	prevSlow := 0.0
	prevValid := false

	for i := 0; i < n; i++ {
		bar := candles[i]

		// 1. Execute the action scheduled on the previous bar at this open.
		switch pending {
		case pendingBuy:
			entryPrice := bar.Open
			denom := entryPrice * (1 + settings.CommissionPct)
			budget := cash * positionSizePct

			buyQty := 0
			if denom > 0 {
				buyQty = int(math.Floor(budget / denom))
			}

			if buyQty > 0 {
				cost := float64(buyQty) * entryPrice
				commission := cost * settings.CommissionPct
				cash -= cost + commission
				qty = buyQty
				entry = optional.Some(openPosition{entryTime: bar.Ts, entryPrice: entryPrice})
			}

			pending = pendingNone
		case pendingSell:
			if qty > 0 {
				exitPrice := bar.Open
				proceeds := float64(qty) * exitPrice
				commission := proceeds * settings.CommissionPct
				cash += proceeds - commission

				position, _ := entry.Take()
				result.Trades = append(result.Trades,
					closeTrade(position, bar.Ts, exitPrice, qty, settings.CommissionPct))
				qty = 0
				entry = optional.None[openPosition]()
			}

			pending = pendingNone
		}

		// 2. Rolling-window sums for both averages.
		fastSum += bar.Close
		slowSum += bar.Close

		if i >= params.FastWindow {
			fastSum -= candles[i-params.FastWindow].Close
		}

		if i >= params.SlowWindow {
			slowSum -= candles[i-params.SlowWindow].Close
		}

		fastValid := i+1 >= params.FastWindow
		slowValid := i+1 >= params.SlowWindow

		// 3. Crossover detection, only with a valid previous pair.
		if fastValid && slowValid {
			fast := fastSum / float64(params.FastWindow)
			slow := slowSum / float64(params.SlowWindow)

			if prevValid {
				crossUp := prevFast <= prevSlow && fast > slow
				crossDown := prevFast >= prevSlow && fast < slow

				if crossUp && qty == 0 && pending == pendingNone {
					if i+1 < n {
						pending = pendingBuy
					} else {
						result.Warnings = append(result.Warnings,
							"Last bar signal discarded (no next bar for execution).")
					}
				} else if crossDown && qty > 0 && pending == pendingNone {
					if i+1 < n {
						pending = pendingSell
					} else {
						result.Warnings = append(result.Warnings,
							"Last bar signal discarded (no next bar for execution).")
					}
				}
			}

			prevFast = fast
			prevSlow = slow
			prevValid = true
		}

		// 4. Risk exits on the close-to-close return from entry.
		if qty > 0 && pending == pendingNone && entry.IsSome() {
			position := entry.Unwrap()

			barReturn := 0.0
			if position.entryPrice > 0 {
				barReturn = (bar.Close - position.entryPrice) / position.entryPrice
			}

			if stopLossEnabled && barReturn <= -settings.StopLossPct {
				if i+1 < n {
					pending = pendingSell

					result.Warnings = append(result.Warnings,
						"Stop-loss triggered; exit scheduled on next bar open.")
				} else {
					result.Warnings = append(result.Warnings,
						"Stop-loss triggered on last bar; exiting at final close.")
				}
			} else if takeProfitEnabled && barReturn >= settings.TakeProfitPct {
				if i+1 < n {
					pending = pendingSell

					result.Warnings = append(result.Warnings,
						"Take-profit triggered; exit scheduled on next bar open.")
				} else {
					result.Warnings = append(result.Warnings,
						"Take-profit triggered on last bar; exiting at final close.")
				}
			}
		}

		// 5. Mark to market.
		result.Equity[i] = cash + float64(qty)*bar.Close
	}

	// Force-close anything still open at the final close.
	if qty > 0 {
		last := candles[n-1]
		exitPrice := last.Close
		proceeds := float64(qty) * exitPrice
		commission := proceeds * settings.CommissionPct
		cash += proceeds - commission

		position, _ := entry.Take()
		result.Trades = append(result.Trades,
			closeTrade(position, last.Ts, exitPrice, qty, settings.CommissionPct))

		result.Equity[n-1] = cash
		result.Warnings = append(result.Warnings, "Open position force-closed at last bar close.")
	}

	peak := math.Inf(-1)
	minDrawdown := 0.0

	for i, equity := range result.Equity {
		if equity > peak {
			peak = equity
		}

		drawdown := 0.0
		if peak > 0 {
			drawdown = (equity - peak) / peak
		}

		result.Drawdown[i] = drawdown

		if drawdown < minDrawdown {
			minDrawdown = drawdown
		}
	}

	finalEquity := result.Equity[n-1]
	result.Metrics.TotalPnL = finalEquity - settings.StartingCash

	if settings.StartingCash != 0 {
		result.Metrics.TotalReturnPct = result.Metrics.TotalPnL / settings.StartingCash * 100
	}

	result.Metrics.Trades = len(result.Trades)

	wins := 0
	sumReturns := 0.0

	for _, trade := range result.Trades {
		if trade.PnL > 0 {
			wins++
		}

		sumReturns += trade.ReturnPct
	}

	if len(result.Trades) > 0 {
		result.Metrics.WinRatePct = float64(wins) / float64(len(result.Trades)) * 100
		result.Metrics.AvgTradeReturnPct = sumReturns / float64(len(result.Trades)) * 100
	}

	result.Metrics.MaxDrawdownPct = minDrawdown * 100

	return result
}
