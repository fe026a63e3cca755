// Package dedupe builds canonical duplicate-suppression keys and checks
// them against a Redis store with a local read-through cache.
package dedupe

import (
	"fmt"
	"strings"

	"retador/pkg/types"
)

// oppositeMarkets maps a market to the complementary market(s) on the
// same event. Marking a pick also marks these, so the other side of the
// same surebet is suppressed when it reappears.
var oppositeMarkets = map[string][]string{
	"ah1":           {"ah2"},
	"ah2":           {"ah1"},
	"win1":          {"win2"},
	"win2":          {"win1"},
	"winonly1":      {"winonly2"},
	"winonly2":      {"winonly1"},
	"win1retx":      {"win2retx"},
	"win2retx":      {"win1retx"},
	"over":          {"under"},
	"under":         {"over"},
	"eover":         {"e_under"},
	"e_under":       {"eover"},
	"even":          {"odd"},
	"odd":           {"even"},
	"win1tonil":     {"win2tonil"},
	"win2tonil":     {"win1tonil"},
	"clean_sheet_1": {"clean_sheet_2"},
	"clean_sheet_2": {"clean_sheet_1"},

	// The 1X2 double-chance triangle: any one side emitted suppresses
	// the other two.
	"_1x": {"_x2", "_12"},
	"_x2": {"_1x", "_12"},
	"_12": {"_1x", "_x2"},

	"win1 qualify": {"win2 qualify"},
	"win2 qualify": {"win1 qualify"},

	"betweenmarginh1": {"betweenmarginh2"},
	"betweenmarginh2": {"betweenmarginh1"},
}

// normalize lowercases a key component and collapses runs of whitespace
// to a single space.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Key returns the canonical dedup key of a pick:
//
//	{team1}:{team2}:{event_time_ms}:{market}:{variety}:{soft_bookmaker}
//
// Identical regardless of which leg the feed listed first, because the
// soft leg determines every component.
func Key(p *types.Pick) string {
	return buildKey(p, normalize(p.Soft.Type.Type))
}

// OppositeKeys returns the dedup keys of the complementary markets, if
// the pick's market has any.
func OppositeKeys(p *types.Pick) []string {
	market := normalize(p.Soft.Type.Type)
	opposites, ok := oppositeMarkets[market]
	if !ok {
		return nil
	}
	keys := make([]string, len(opposites))
	for i, opp := range opposites {
		keys[i] = buildKey(p, opp)
	}
	return keys
}

// AllKeys returns the pick's own key followed by its opposite keys.
func AllKeys(p *types.Pick) []string {
	return append([]string{Key(p)}, OppositeKeys(p)...)
}

func buildKey(p *types.Pick, market string) string {
	team1, team2 := "", ""
	if len(p.Soft.Teams) > 0 {
		team1 = normalize(p.Soft.Teams[0])
	}
	if len(p.Soft.Teams) > 1 {
		team2 = normalize(p.Soft.Teams[1])
	}
	return fmt.Sprintf("%s:%s:%d:%s:%s:%s",
		team1,
		team2,
		p.Soft.TimeMs,
		market,
		normalize(p.Soft.Type.Variety),
		normalize(p.SoftBookmaker),
	)
}
