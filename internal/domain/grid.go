package domain

import "fmt"

// ParameterGrid is the finite configuration space the optimizer sweeps. The
// candidate lists are externally supplied; the engine never hard-codes them.
type ParameterGrid struct {
	TPValues  []float64 `json:"tp_values" yaml:"tp_values"`
	SLValues  []float64 `json:"sl_values" yaml:"sl_values"`
	HoldHours []float64 `json:"hold_hours" yaml:"hold_hours"`
}

// Validate rejects degenerate grids at construction time so a zero TP or SL
// can never reach the simulator.
func (g ParameterGrid) Validate() error {
	if len(g.TPValues) == 0 || len(g.SLValues) == 0 || len(g.HoldHours) == 0 {
		return fmt.Errorf("grid requires at least one candidate per axis")
	}
	for _, tp := range g.TPValues {
		if tp <= 0 {
			return fmt.Errorf("degenerate tp candidate: %f", tp)
		}
	}
	for _, sl := range g.SLValues {
		if sl <= 0 {
			return fmt.Errorf("degenerate sl candidate: %f", sl)
		}
	}
	for _, h := range g.HoldHours {
		if h <= 0 {
			return fmt.Errorf("degenerate hold candidate: %f", h)
		}
	}
	return nil
}

// Size returns the number of configurations in the cross product.
func (g ParameterGrid) Size() int {
	return len(g.TPValues) * len(g.SLValues) * len(g.HoldHours)
}

// MaxHoldHours returns the largest hold candidate, which bounds how much price
// history a replay can consume.
func (g ParameterGrid) MaxHoldHours() float64 {
	var max float64
	for _, h := range g.HoldHours {
		if h > max {
			max = h
		}
	}
	return max
}

// Combinations enumerates the grid in canonical (tp, sl, hold) order. The
// enumeration index is the final tie-break when ranking winners, so the order
// here is part of the engine's determinism contract.
func (g ParameterGrid) Combinations() []ParameterSet {
	combos := make([]ParameterSet, 0, g.Size())
	for _, tp := range g.TPValues {
		for _, sl := range g.SLValues {
			for _, h := range g.HoldHours {
				combos = append(combos, ParameterSet{TPPct: tp, SLPct: sl, MaxHoldHours: h})
			}
		}
	}
	return combos
}

// DefaultGrid returns the production candidate lists. Callers normally load a
// grid from config; this is the fallback.
func DefaultGrid() ParameterGrid {
	return ParameterGrid{
		TPValues:  []float64{0.5, 1, 1.5, 2, 3, 5, 8, 10},
		SLValues:  []float64{0.3, 0.5, 1, 1.5, 2, 3, 5},
		HoldHours: []float64{1, 2, 4, 6, 12, 24, 48},
	}
}
