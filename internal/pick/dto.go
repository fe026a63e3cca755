// Package pick reshapes a raw surebet record into a Pick: the soft leg
// becomes the subject of the message, the sharp leg the pricing
// reference. Construction fails fast on records the pipeline cannot
// serve, so the orchestrator can count and drop them before validation.
package pick

import (
	"errors"
	"fmt"

	"retador/internal/config"
	"retador/pkg/types"
)

var (
	// ErrLegCount rejects records without exactly two legs.
	ErrLegCount = errors.New("record does not have exactly two legs")

	// ErrNoSharp rejects records where neither leg is a configured sharp.
	ErrNoSharp = errors.New("no sharp bookmaker in record")

	// ErrNotTarget rejects records whose non-sharp leg is not a
	// configured target.
	ErrNotTarget = errors.New("soft bookmaker is not a target")

	// ErrInvalidPairing rejects records whose sharp is not an allowed
	// counterpart for the target.
	ErrInvalidPairing = errors.New("sharp not allowed for this target")
)

// Build constructs a Pick from a record. The sharp leg is chosen by
// hierarchy order when both legs qualify; the remaining leg must be a
// configured target paired with an allowed sharp.
func Build(rec types.Record, books *config.BookmakerConfig) (*types.Pick, error) {
	if len(rec.Prongs) != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrLegCount, len(rec.Prongs))
	}

	sharpID, ok := books.FirstSharp(rec.Prongs[0].Bookmaker, rec.Prongs[1].Bookmaker)
	if !ok {
		return nil, fmt.Errorf("%w: %s vs %s",
			ErrNoSharp, rec.Prongs[0].Bookmaker, rec.Prongs[1].Bookmaker)
	}

	sharp, soft := rec.Prongs[0], rec.Prongs[1]
	if soft.Bookmaker == sharpID {
		sharp, soft = soft, sharp
	}

	if !books.IsTarget(soft.Bookmaker) {
		return nil, fmt.Errorf("%w: %s", ErrNotTarget, soft.Bookmaker)
	}
	if !books.ValidCounterpart(soft.Bookmaker, sharpID) {
		return nil, fmt.Errorf("%w: %s against %s", ErrInvalidPairing, sharpID, soft.Bookmaker)
	}

	channel, ok := books.Channel(soft.Bookmaker)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no channel", ErrNotTarget, soft.Bookmaker)
	}

	return &types.Pick{
		Soft:           soft,
		Sharp:          sharp,
		Profit:         rec.Profit,
		SoftBookmaker:  soft.Bookmaker,
		SharpBookmaker: sharpID,
		ChannelID:      channel,
		Rules:          rec.Rules,
		Generatives:    rec.Generatives,
	}, nil
}
