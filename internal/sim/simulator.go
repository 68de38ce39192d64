package sim

import (
	"github.com/cryptoedge/exittune/internal/domain"
)

// Simulate replays one historical entry against its price path under a
// candidate exit configuration and determines how the trade would have exited.
//
// The function is total: for any trade and parameter set it returns exactly
// one of WIN, LOSS or EXPIRED. A path that never reaches either level, or that
// runs out before max hold, expires at the last available sample. Intrabar
// slippage is not modeled, so a WIN realizes exactly +tp_pct and a LOSS
// exactly -sl_pct.
//
// When both levels would be crossed within the same sample step, the stop
// loss wins. Losses are never under-counted.
func Simulate(trade domain.HistoricalTrade, path domain.PricePath, params domain.ParameterSet) domain.SimulatedOutcome {
	tpPrice, slPrice := exitLevels(trade, params)

	var lastPrice = trade.EntryPrice
	var lastHours float64

	for _, pt := range path.Points {
		if !pt.Timestamp.After(trade.EntryTime) {
			continue
		}

		hours := pt.Timestamp.Sub(trade.EntryTime).Hours()
		if hours > params.MaxHoldHours {
			break
		}

		// SL checked first: conservative tie-break when both levels fall
		// inside the same sample step.
		if crossedSL(trade.Direction, pt.Price, slPrice) {
			return domain.SimulatedOutcome{
				Kind:              domain.OutcomeLoss,
				RealizedReturnPct: -params.SLPct,
				HoldDurationHours: hours,
			}
		}
		if crossedTP(trade.Direction, pt.Price, tpPrice) {
			return domain.SimulatedOutcome{
				Kind:              domain.OutcomeWin,
				RealizedReturnPct: params.TPPct,
				HoldDurationHours: hours,
			}
		}

		lastPrice = pt.Price
		lastHours = hours
	}

	return domain.SimulatedOutcome{
		Kind:              domain.OutcomeExpired,
		RealizedReturnPct: directionalReturnPct(trade.Direction, trade.EntryPrice, lastPrice),
		HoldDurationHours: lastHours,
	}
}

// exitLevels computes the absolute TP and SL price levels for the trade's
// direction. A SHORT profits on the way down, so its levels are mirrored.
func exitLevels(trade domain.HistoricalTrade, params domain.ParameterSet) (tp, sl float64) {
	if trade.Direction == domain.Short {
		tp = trade.EntryPrice * (1 - params.TPPct/100)
		sl = trade.EntryPrice * (1 + params.SLPct/100)
		return tp, sl
	}
	tp = trade.EntryPrice * (1 + params.TPPct/100)
	sl = trade.EntryPrice * (1 - params.SLPct/100)
	return tp, sl
}

func crossedTP(dir domain.Direction, price, tpPrice float64) bool {
	if dir == domain.Short {
		return price <= tpPrice
	}
	return price >= tpPrice
}

func crossedSL(dir domain.Direction, price, slPrice float64) bool {
	if dir == domain.Short {
		return price >= slPrice
	}
	return price <= slPrice
}

// directionalReturnPct is the signed percent return of exiting at price for a
// position entered at entry.
func directionalReturnPct(dir domain.Direction, entry, price float64) float64 {
	ret := (price/entry - 1) * 100
	if dir == domain.Short {
		return -ret
	}
	return ret
}
