package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"retador/internal/dedupe"
	"retador/pkg/types"
)

// Odds requires both legs' decimal odds in [Min, Max].
type Odds struct {
	Min float64
	Max float64
}

func (v *Odds) Name() string { return "odds" }

func (v *Odds) Validate(_ context.Context, p *types.Pick) Result {
	for _, leg := range []types.Leg{p.Soft, p.Sharp} {
		if leg.Value < v.Min || leg.Value > v.Max {
			return reject(v.Name(), fmt.Sprintf("odds %.2f outside [%.2f, %.2f]", leg.Value, v.Min, v.Max))
		}
	}
	return pass()
}

// Profit requires the record profit in [Min, Max].
type Profit struct {
	Min float64
	Max float64
}

func (v *Profit) Name() string { return "profit" }

func (v *Profit) Validate(_ context.Context, p *types.Pick) Result {
	if p.Profit < v.Min || p.Profit > v.Max {
		return reject(v.Name(), fmt.Sprintf("profit %.2f outside [%.2f, %.2f]", p.Profit, v.Min, v.Max))
	}
	return pass()
}

// Time requires the event to start at least MinLead in the future.
type Time struct {
	MinLead time.Duration

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func (v *Time) Name() string { return "time" }

func (v *Time) Validate(_ context.Context, p *types.Pick) Result {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	if lead := p.EventTime().Sub(now()); lead < v.MinLead {
		return reject(v.Name(), fmt.Sprintf("event starts in %s, need %s", lead.Round(time.Second), v.MinLead))
	}
	return pass()
}

// Rules rejects picks flagged with conflicting sporting rules between
// the two bookmakers. The feed filter normally removes these; this is
// the safety net.
type Rules struct{}

func (v *Rules) Name() string { return "rules" }

func (v *Rules) Validate(_ context.Context, p *types.Pick) Result {
	if p.HasRuleConflict() {
		return reject(v.Name(), "different sporting rules")
	}
	return pass()
}

// Generative rejects picks where any leg's generativeness marker meets
// the threshold. The marker arrives as a comma-separated list of ints,
// one per leg; an absent marker means "0,0".
type Generative struct {
	Threshold int
}

func (v *Generative) Name() string { return "generative" }

func (v *Generative) Validate(_ context.Context, p *types.Pick) Result {
	if p.Generatives == "" {
		return pass()
	}
	for _, part := range strings.Split(p.Generatives, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if n >= v.Threshold {
			return reject(v.Name(), fmt.Sprintf("generative marker %d >= %d", n, v.Threshold))
		}
	}
	return pass()
}

// DuplicateChecker is the store surface the duplicate validator needs.
type DuplicateChecker interface {
	ExistsAny(ctx context.Context, keys []string) bool
}

// Duplicate rejects picks whose dedup key or any opposite-market key is
// already present. Always last in the chain; the only validator doing
// I/O.
type Duplicate struct {
	Store DuplicateChecker
}

func (v *Duplicate) Name() string { return "duplicate" }

func (v *Duplicate) Validate(ctx context.Context, p *types.Pick) Result {
	if v.Store.ExistsAny(ctx, dedupe.AllKeys(p)) {
		return reject(v.Name(), "already emitted (or opposite market was)")
	}
	return pass()
}
