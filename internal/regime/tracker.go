package regime

import (
	"sort"

	"github.com/cryptoedge/exittune/internal/domain"
)

// LabeledTrade is a historical trade annotated with the market-regime label
// the (external) regime classifier assigned to its time period, plus the
// outcome the signal tracker actually recorded. Hypothetical replays never
// feed this tracker.
type LabeledTrade struct {
	Trade             domain.HistoricalTrade `json:"trade"`
	RegimeLabel       string                 `json:"regime_label"`
	RealizedReturnPct float64                `json:"realized_return_pct"`
	OutcomeRecorded   bool                   `json:"outcome_recorded"`
}

// Stat is the win rate of one (algorithm, asset class, regime) bucket.
// Buckets with few trades are still reported; confidence weighting is the
// consumer's concern, not the tracker's.
type Stat struct {
	AlgorithmName string  `json:"algorithm_name" db:"algorithm_name"`
	AssetClass    string  `json:"asset_class" db:"asset_class"`
	RegimeLabel   string  `json:"regime_label" db:"regime_label"`
	TradeCount    int     `json:"trade_count" db:"trade_count"`
	Wins          int     `json:"wins" db:"wins"`
	WinRatePct    float64 `json:"win_rate_pct" db:"win_rate_pct"`
	AvgReturnPct  float64 `json:"avg_return_pct" db:"avg_return_pct"`
}

type bucketKey struct {
	algorithm  string
	assetClass string
	regime     string
}

// Track groups recorded trade outcomes by (algorithm, asset class, regime)
// and computes win rates. Trades without a recorded outcome or without a
// regime label are ignored. Output is sorted by key so recomputation is
// byte-stable.
func Track(trades []LabeledTrade) []Stat {
	type bucket struct {
		count    int
		wins     int
		totalRet float64
	}
	buckets := make(map[bucketKey]*bucket)

	for _, lt := range trades {
		if !lt.OutcomeRecorded || lt.RegimeLabel == "" {
			continue
		}
		key := bucketKey{
			algorithm:  lt.Trade.AlgorithmName,
			assetClass: lt.Trade.AssetClass,
			regime:     lt.RegimeLabel,
		}
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.count++
		if lt.RealizedReturnPct > 0 {
			b.wins++
		}
		b.totalRet += lt.RealizedReturnPct
	}

	stats := make([]Stat, 0, len(buckets))
	for key, b := range buckets {
		stats = append(stats, Stat{
			AlgorithmName: key.algorithm,
			AssetClass:    key.assetClass,
			RegimeLabel:   key.regime,
			TradeCount:    b.count,
			Wins:          b.wins,
			WinRatePct:    float64(b.wins) / float64(b.count) * 100,
			AvgReturnPct:  b.totalRet / float64(b.count),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.AlgorithmName != b.AlgorithmName {
			return a.AlgorithmName < b.AlgorithmName
		}
		if a.AssetClass != b.AssetClass {
			return a.AssetClass < b.AssetClass
		}
		return a.RegimeLabel < b.RegimeLabel
	})

	return stats
}
