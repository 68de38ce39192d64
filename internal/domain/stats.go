package domain

// ConfigurationStats aggregates the performance of one ParameterSet across a
// population of trades.
type ConfigurationStats struct {
	TradesTested   int     `json:"trades_tested" db:"trades_tested"`
	Wins           int     `json:"wins" db:"wins"`
	Losses         int     `json:"losses" db:"losses"`
	Expired        int     `json:"expired" db:"expired"`
	TotalReturnPct float64 `json:"total_return_pct" db:"total_return_pct"`
	AvgReturnPct   float64 `json:"avg_return_pct" db:"avg_return_pct"`
	WinRatePct     float64 `json:"win_rate_pct" db:"win_rate_pct"`
	ProfitFactor   float64 `json:"profit_factor" db:"profit_factor"`
	BestTradePct   float64 `json:"best_trade_pct" db:"best_trade_pct"`
	WorstTradePct  float64 `json:"worst_trade_pct" db:"worst_trade_pct"`
	AvgHoldHours   float64 `json:"avg_hold_hours" db:"avg_hold_hours"`
}

// StatsAccumulator folds simulated outcomes into ConfigurationStats. Zero
// value is ready to use.
type StatsAccumulator struct {
	count      int
	wins       int
	losses     int
	expired    int
	grossWin   float64
	grossLoss  float64
	totalRet   float64
	totalHold  float64
	best       float64
	worst      float64
	returns    []float64
}

// Add folds one outcome into the accumulator.
func (a *StatsAccumulator) Add(o SimulatedOutcome) {
	switch o.Kind {
	case OutcomeWin:
		a.wins++
	case OutcomeLoss:
		a.losses++
	case OutcomeExpired:
		a.expired++
	}

	if o.RealizedReturnPct > 0 {
		a.grossWin += o.RealizedReturnPct
	} else {
		a.grossLoss += -o.RealizedReturnPct
	}

	if a.count == 0 || o.RealizedReturnPct > a.best {
		a.best = o.RealizedReturnPct
	}
	if a.count == 0 || o.RealizedReturnPct < a.worst {
		a.worst = o.RealizedReturnPct
	}

	a.totalRet += o.RealizedReturnPct
	a.totalHold += o.HoldDurationHours
	a.returns = append(a.returns, o.RealizedReturnPct)
	a.count++
}

// Count returns the number of outcomes folded so far.
func (a *StatsAccumulator) Count() int {
	return a.count
}

// Returns exposes the raw return series, used for per-window Sharpe.
func (a *StatsAccumulator) Returns() []float64 {
	return a.returns
}

// Stats materializes the aggregate. Profit factor is 0 when no gross losses
// exist, so an all-win population never divides by zero.
func (a *StatsAccumulator) Stats() ConfigurationStats {
	stats := ConfigurationStats{
		TradesTested:   a.count,
		Wins:           a.wins,
		Losses:         a.losses,
		Expired:        a.expired,
		TotalReturnPct: a.totalRet,
		BestTradePct:   a.best,
		WorstTradePct:  a.worst,
	}
	if a.count == 0 {
		return stats
	}
	stats.AvgReturnPct = a.totalRet / float64(a.count)
	stats.WinRatePct = float64(a.wins) / float64(a.count) * 100
	stats.AvgHoldHours = a.totalHold / float64(a.count)
	if a.grossLoss > 0 {
		stats.ProfitFactor = a.grossWin / a.grossLoss
	}
	return stats
}
