// Package calc computes the presentation numbers of a pick: the stake
// tier emoji derived from profit and the minimum soft odds still worth
// taking against the sharp counterpart. Calculators are selected per
// sharp bookmaker through a factory.
package calc

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Calculator derives the stake tier and the minimum acceptable soft
// odds for one sharp bookmaker's pricing model.
type Calculator interface {
	// Stake maps a profit percentage to a tier emoji. ok is false when
	// the profit falls outside the tradeable range and the pick must be
	// dropped.
	Stake(profit float64) (tier string, ok bool)

	// MinOdds returns the lowest soft odds at which the pick still
	// clears the minimum profit target given the sharp odds.
	MinOdds(sharp decimal.Decimal) decimal.Decimal
}

// Factory resolves the calculator for a sharp bookmaker id. Ids are
// matched case-insensitively; unknown sharps fall back to the Pinnacle
// model, the most conservative of the set.
type Factory struct {
	bySharp  map[string]Calculator
	fallback Calculator
}

// NewFactory builds the production calculator set.
func NewFactory(minProfit, maxProfit float64) *Factory {
	pinnacle := NewPinnacle(minProfit, maxProfit)
	return &Factory{
		bySharp: map[string]Calculator{
			"pinnaclesports": pinnacle,
		},
		fallback: pinnacle,
	}
}

// For returns the calculator for the given sharp bookmaker id.
func (f *Factory) For(sharpID string) Calculator {
	if c, ok := f.bySharp[strings.ToLower(strings.TrimSpace(sharpID))]; ok {
		return c
	}
	return f.fallback
}
