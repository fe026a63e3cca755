package calc

import "github.com/shopspring/decimal"

// maxOdds caps MinOdds when the sharp price leaves no room for a
// profitable counter-bet; 1000 is the highest odds the feed emits.
var maxOdds = decimal.NewFromInt(1000)

var (
	one    = decimal.NewFromInt(1)
	margin = decimal.RequireFromString("1.01")
)

// Pinnacle prices picks against Pinnacle's low-margin book.
//
// The minimum soft odds solve 1/soft + 1/sharp = 1/1.01, i.e. the point
// where the two-sided position still returns the 1% target:
//
//	min_odds = 1 / (1.01 - 1/sharp)
//
// rounded half-up to 2 decimal places.
type Pinnacle struct {
	minProfit float64
	maxProfit float64
}

// NewPinnacle creates the calculator with the accepted profit range.
func NewPinnacle(minProfit, maxProfit float64) *Pinnacle {
	return &Pinnacle{minProfit: minProfit, maxProfit: maxProfit}
}

// Stake maps profit to a tier emoji. Out-of-range profit rejects the
// pick; the boundaries themselves are accepted.
func (p *Pinnacle) Stake(profit float64) (string, bool) {
	switch {
	case profit < p.minProfit || profit > p.maxProfit:
		return "", false
	case profit <= -0.5:
		return "🔴", true
	case profit <= 1.5:
		return "🟠", true
	case profit <= 4:
		return "🟡", true
	default:
		return "🟢", true
	}
}

// MinOdds returns 1/(1.01 - 1/sharp) rounded to 2 decimals, or the
// odds ceiling when the sharp price admits no profitable counterpart.
func (p *Pinnacle) MinOdds(sharp decimal.Decimal) decimal.Decimal {
	if sharp.LessThanOrEqual(one) {
		return maxOdds
	}
	denom := margin.Sub(one.Div(sharp))
	if denom.LessThanOrEqual(decimal.Zero) {
		return maxOdds
	}
	return one.DivRound(denom, 2)
}
