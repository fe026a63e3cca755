// Package rules implements the fail-fast validation chain a pick must
// pass before it reaches the Telegram gateway. Cheap CPU checks run
// first; the duplicate check is the only one doing I/O and always runs
// last.
package rules

import (
	"context"

	"retador/internal/config"
	"retador/pkg/types"
)

// Result reports the outcome of a validator or of the whole chain. On
// rejection, Validator names the stage that failed and Reason says why.
type Result struct {
	OK        bool
	Validator string
	Reason    string
}

func pass() Result { return Result{OK: true} }

func reject(validator, reason string) Result {
	return Result{Validator: validator, Reason: reason}
}

// Validator is one independent check in the chain.
type Validator interface {
	Name() string
	Validate(ctx context.Context, p *types.Pick) Result
}

// Chain runs validators in order and stops at the first rejection.
type Chain struct {
	validators []Validator
}

// NewChain composes validators; they run in the given order.
func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// Default is the production chain: odds, profit, time, rules and
// generative markers before the duplicate lookup.
func Default(cfg config.ValidationConfig, dupes DuplicateChecker) *Chain {
	return NewChain(
		&Odds{Min: cfg.MinOdds, Max: cfg.MaxOdds},
		&Profit{Min: cfg.MinProfit, Max: cfg.MaxProfit},
		&Time{MinLead: cfg.MinEventTime},
		&Rules{},
		&Generative{Threshold: cfg.GenerativeThreshold},
		&Duplicate{Store: dupes},
	)
}

// Validate runs the chain. The first rejection wins.
func (c *Chain) Validate(ctx context.Context, p *types.Pick) Result {
	for _, v := range c.validators {
		if res := v.Validate(ctx, p); !res.OK {
			return res
		}
	}
	return pass()
}
