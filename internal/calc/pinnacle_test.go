package calc

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStakeTiers(t *testing.T) {
	t.Parallel()
	p := NewPinnacle(-1.0, 25.0)

	tests := []struct {
		profit float64
		tier   string
		ok     bool
	}{
		{-1.01, "", false},
		{-1.0, "🔴", true},
		{-0.5, "🔴", true},
		{-0.49, "🟠", true},
		{0.0, "🟠", true},
		{1.5, "🟠", true},
		{1.51, "🟡", true},
		{2.5, "🟡", true},
		{4.0, "🟡", true},
		{4.01, "🟢", true},
		{25.0, "🟢", true},
		{25.01, "", false},
	}
	for _, tt := range tests {
		tier, ok := p.Stake(tt.profit)
		if tier != tt.tier || ok != tt.ok {
			t.Errorf("Stake(%v) = (%q, %v), want (%q, %v)", tt.profit, tier, ok, tt.tier, tt.ok)
		}
	}
}

func TestMinOddsReferenceTable(t *testing.T) {
	t.Parallel()
	p := NewPinnacle(-1.0, 25.0)

	tests := []struct {
		sharp float64
		want  float64
	}{
		{1.50, 2.92},
		{1.80, 2.20},
		{2.00, 1.96},
		{2.05, 1.92},
		{2.50, 1.64},
		{3.00, 1.48},
	}
	for _, tt := range tests {
		got, _ := p.MinOdds(decimal.NewFromFloat(tt.sharp)).Float64()
		if math.Abs(got-tt.want) > 0.05 {
			t.Errorf("MinOdds(%v) = %v, want %v ±0.05", tt.sharp, got, tt.want)
		}
	}
}

func TestMinOddsCeiling(t *testing.T) {
	t.Parallel()
	p := NewPinnacle(-1.0, 25.0)

	// At sharp odds this low no soft price clears the target.
	if got := p.MinOdds(decimal.NewFromFloat(1.0)); !got.Equal(maxOdds) {
		t.Errorf("MinOdds(1.0) = %v, want ceiling %v", got, maxOdds)
	}
	if got := p.MinOdds(decimal.Zero); !got.Equal(maxOdds) {
		t.Errorf("MinOdds(0) = %v, want ceiling %v", got, maxOdds)
	}
}

func TestMinOddsTwoDecimals(t *testing.T) {
	t.Parallel()
	p := NewPinnacle(-1.0, 25.0)

	got := p.MinOdds(decimal.NewFromFloat(2.0))
	if got.Exponent() < -2 {
		t.Errorf("MinOdds(2.0) = %v, want at most 2 decimal places", got)
	}
	if want := decimal.RequireFromString("1.96"); !got.Equal(want) {
		t.Errorf("MinOdds(2.0) = %v, want %v", got, want)
	}
}

func TestFactoryResolution(t *testing.T) {
	t.Parallel()
	f := NewFactory(-1.0, 25.0)

	if f.For("pinnaclesports") == nil {
		t.Fatal("no calculator for pinnaclesports")
	}
	if f.For("PinnacleSports") != f.For("pinnaclesports") {
		t.Error("sharp id matching should be case-insensitive")
	}
	if f.For("bet365") == nil {
		t.Error("unknown sharp should fall back, not return nil")
	}
}
