package domain

import (
	"fmt"
	"time"
)

// Direction indicates which way a trade is positioned.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Valid reports whether the direction is one of the two supported values.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// HistoricalTrade is an immutable record of one completed or hypothetical
// trading opportunity produced by the signal-tracking subsystem. The engine
// only reads these.
type HistoricalTrade struct {
	AlgorithmName  string     `json:"algorithm_name" db:"algorithm_name"`
	AssetClass     string     `json:"asset_class" db:"asset_class"`
	Symbol         string     `json:"symbol" db:"symbol"`
	Direction      Direction  `json:"direction" db:"direction"`
	EntryPrice     float64    `json:"entry_price" db:"entry_price"`
	EntryTime      time.Time  `json:"entry_time" db:"entry_time"`
	ActualExitTime *time.Time `json:"actual_exit_time,omitempty" db:"actual_exit_time"`
}

// Validate checks the invariants the engine relies on.
func (t HistoricalTrade) Validate() error {
	if t.EntryPrice <= 0 {
		return fmt.Errorf("entry price must be positive, got %f", t.EntryPrice)
	}
	if !t.Direction.Valid() {
		return fmt.Errorf("invalid direction: %s", t.Direction)
	}
	if t.EntryTime.IsZero() {
		return fmt.Errorf("entry time is required")
	}
	return nil
}

// PricePoint is a single (timestamp, price) sample.
type PricePoint struct {
	Timestamp time.Time `json:"ts"`
	Price     float64   `json:"price"`
}

// PricePath is an ordered series of price samples for one symbol, supplied by
// the price-cache subsystem and read-only to the engine.
type PricePath struct {
	Symbol     string       `json:"symbol"`
	AssetClass string       `json:"asset_class"`
	Points     []PricePoint `json:"points"`
}

// Validate enforces non-empty, strictly increasing timestamps.
func (p PricePath) Validate() error {
	if len(p.Points) == 0 {
		return fmt.Errorf("price path for %s is empty", p.Symbol)
	}
	for i := 1; i < len(p.Points); i++ {
		if !p.Points[i].Timestamp.After(p.Points[i-1].Timestamp) {
			return fmt.Errorf("price path for %s not strictly increasing at index %d", p.Symbol, i)
		}
	}
	return nil
}

// Usable reports whether the path can drive a replay at all. Missing or empty
// paths are a data gap, never a fatal error.
func (p *PricePath) Usable() bool {
	return p != nil && len(p.Points) > 0
}

// ParameterSet is one candidate exit configuration: take-profit percent,
// stop-loss percent and maximum hold duration in hours. Immutable value type.
type ParameterSet struct {
	TPPct        float64 `json:"tp_pct" db:"tp_pct"`
	SLPct        float64 `json:"sl_pct" db:"sl_pct"`
	MaxHoldHours float64 `json:"max_hold_hours" db:"max_hold_hours"`
}

func (p ParameterSet) String() string {
	return fmt.Sprintf("tp=%.2f%% sl=%.2f%% hold=%.0fh", p.TPPct, p.SLPct, p.MaxHoldHours)
}

// OutcomeKind classifies how a replayed trade exited.
type OutcomeKind string

const (
	OutcomeWin     OutcomeKind = "WIN"
	OutcomeLoss    OutcomeKind = "LOSS"
	OutcomeExpired OutcomeKind = "EXPIRED"
)

// SimulatedOutcome is the result of replaying one (trade, parameter set) pair.
// Derived, never persisted on its own.
type SimulatedOutcome struct {
	Kind              OutcomeKind `json:"outcome_kind"`
	RealizedReturnPct float64     `json:"realized_return_pct"`
	HoldDurationHours float64     `json:"hold_duration_hours"`
}
