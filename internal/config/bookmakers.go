package config

import (
	"fmt"
	"strings"
)

// BookmakerConfig declares the sharp hierarchy, the soft targets, their
// Telegram channels and the allowed sharp counterparts per target.
// Immutable after process start; safe for unsynchronized reads.
type BookmakerConfig struct {
	// SharpHierarchy lists sharp bookmakers in priority order: when a
	// record's both legs could serve as reference, the first match wins.
	SharpHierarchy []string

	// Targets are the soft bookmakers picks are emitted for.
	Targets []string

	// Channels maps each target to its Telegram channel id.
	Channels map[string]int64

	// AllowedSharps optionally restricts the valid counterparts of a
	// target. An absent or empty entry means any sharp is accepted.
	AllowedSharps map[string][]string

	// Sports are the sport ids requested from the feed.
	Sports []string

	sharpSet  map[string]bool
	targetSet map[string]bool
}

// DefaultBookmakers returns the production pairing tables.
func DefaultBookmakers() *BookmakerConfig {
	cfg := &BookmakerConfig{
		SharpHierarchy: []string{"pinnaclesports", "bet365"},
		Targets:        []string{"retabet_apuestas", "yaasscasino"},
		Channels: map[string]int64{
			"retabet_apuestas": -1002294438792,
			"yaasscasino":      -1002360901387,
		},
		AllowedSharps: map[string][]string{
			"retabet_apuestas": {"pinnaclesports"},
			"yaasscasino":      {"pinnaclesports"},
		},
		Sports: []string{
			"AmericanFootball", "Badminton", "Baseball", "Basketball",
			"CounterStrike", "Cricket", "Darts", "E_Football", "Football",
			"Futsal", "Handball", "Hockey", "LeagueOfLegends", "Rugby",
			"Snooker", "TableTennis", "Tennis", "Valorant", "Volleyball",
			"WaterPolo",
		},
	}
	cfg.buildSets()
	return cfg
}

func (b *BookmakerConfig) buildSets() {
	b.sharpSet = make(map[string]bool, len(b.SharpHierarchy))
	for _, s := range b.SharpHierarchy {
		b.sharpSet[s] = true
	}
	b.targetSet = make(map[string]bool, len(b.Targets))
	for _, t := range b.Targets {
		b.targetSet[t] = true
	}
}

// Validate enforces the structural invariants: at least one sharp, every
// target has a channel, and no bookmaker is both sharp and target.
func (b *BookmakerConfig) Validate() error {
	if len(b.SharpHierarchy) == 0 {
		return fmt.Errorf("sharp hierarchy must have at least one bookmaker")
	}
	for _, t := range b.Targets {
		if _, ok := b.Channels[t]; !ok {
			return fmt.Errorf("target %q has no channel mapping", t)
		}
		if b.sharpSet[t] {
			return fmt.Errorf("bookmaker %q cannot be both sharp and target", t)
		}
	}
	for soft, sharps := range b.AllowedSharps {
		if !b.targetSet[soft] {
			return fmt.Errorf("allowed-sharps entry %q is not a target", soft)
		}
		for _, s := range sharps {
			if !b.sharpSet[s] {
				return fmt.Errorf("allowed sharp %q for %q is not in the hierarchy", s, soft)
			}
		}
	}
	return nil
}

// IsSharp reports whether id is in the sharp hierarchy.
func (b *BookmakerConfig) IsSharp(id string) bool { return b.sharpSet[id] }

// IsTarget reports whether id is a soft target.
func (b *BookmakerConfig) IsTarget(id string) bool { return b.targetSet[id] }

// Channel returns the Telegram channel for a target, or (0, false).
func (b *BookmakerConfig) Channel(id string) (int64, bool) {
	ch, ok := b.Channels[id]
	return ch, ok
}

// ValidCounterpart reports whether sharp may serve as the reference for
// soft. An empty restriction list accepts any configured sharp.
func (b *BookmakerConfig) ValidCounterpart(soft, sharp string) bool {
	if !b.sharpSet[sharp] {
		return false
	}
	allowed, ok := b.AllowedSharps[soft]
	if !ok || len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == sharp {
			return true
		}
	}
	return false
}

// FirstSharp returns the highest-priority sharp among the given
// bookmaker ids, or ("", false) when none matches.
func (b *BookmakerConfig) FirstSharp(ids ...string) (string, bool) {
	for _, sharp := range b.SharpHierarchy {
		for _, id := range ids {
			if id == sharp {
				return sharp, true
			}
		}
	}
	return "", false
}

// SourceParam returns the pipe-joined bookmaker list for the feed query:
// the sharp hierarchy followed by targets not already listed.
func (b *BookmakerConfig) SourceParam() string {
	ids := make([]string, 0, len(b.SharpHierarchy)+len(b.Targets))
	ids = append(ids, b.SharpHierarchy...)
	for _, t := range b.Targets {
		if !b.sharpSet[t] {
			ids = append(ids, t)
		}
	}
	return strings.Join(ids, "|")
}

// SportParam returns the pipe-joined sport list for the feed query.
func (b *BookmakerConfig) SportParam() string {
	return strings.Join(b.Sports, "|")
}
