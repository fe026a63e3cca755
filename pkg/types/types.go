// Package types defines the wire types returned by the surebets feed and
// the domain types that flow through the pipeline.
//
// A surebet Record arrives with exactly two legs (prongs) on opposite
// outcomes of the same event. The pipeline reshapes a validated record
// into a Pick: the soft-bookmaker leg becomes the primary subject and the
// sharp leg is kept as the counterpart used for min-odds calculation.
package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LegType describes the market of one leg. The feed sends a nested type
// object; fields beyond Type/Variety are optional descriptors used only
// for message rendering.
type LegType struct {
	Type      string `json:"type"`
	Variety   string `json:"variety"`
	Condition string `json:"condition,omitempty"`
	Base      string `json:"base,omitempty"`
	Game      string `json:"game,omitempty"`
	Period    string `json:"period,omitempty"`
}

// NavLink is the innermost link object of the feed's navigation block.
type NavLink struct {
	URL string `json:"url"`
}

// NavEntry wraps one navigation link.
type NavEntry struct {
	Link NavLink `json:"link"`
}

// Navigation carries the public deep links for a leg.
type Navigation struct {
	Links []NavEntry `json:"links"`
}

// Leg is one side of a surebet record. Immutable after ingestion.
type Leg struct {
	Bookmaker  string     `json:"bk"`
	Value      float64    `json:"value"`
	TimeMs     int64      `json:"time"`
	Teams      []string   `json:"teams"`
	Type       LegType    `json:"type"`
	Tournament string     `json:"tournament"`
	SportID    string     `json:"sport_id"`
	Nav        Navigation `json:"preferred_nav"`
}

// DeepLink returns the first public deep link of the leg, or "".
func (l Leg) DeepLink() string {
	if len(l.Nav.Links) == 0 {
		return ""
	}
	return l.Nav.Links[0].Link.URL
}

// EventTime converts the leg's millisecond epoch to a time.Time.
func (l Leg) EventTime() time.Time {
	return time.UnixMilli(l.TimeMs)
}

// Record is one surebet as returned by the feed. Unknown fields are
// ignored; the client tolerates additions.
//
// Rules is the "different sporting rules" marker ([[0],[1]]-shaped);
// a non-empty value means the two bookmakers settle the market under
// conflicting rules. Generatives is a comma-separated per-leg marker
// ("0,0" normal, "0,2" second leg clearly generative).
type Record struct {
	ID          json.Number     `json:"id"`
	Profit      float64         `json:"profit"`
	Created     int64           `json:"created"`
	Prongs      []Leg           `json:"prongs"`
	Rules       json.RawMessage `json:"rd,omitempty"`
	Generatives string          `json:"generatives,omitempty"`
}

// HasRuleConflict reports whether the record carries a non-empty rules
// marker. The feed filter (hide-different-rules=true) normally removes
// these; this is the safety net.
func (r Record) HasRuleConflict() bool {
	return ruleConflict(r.Rules)
}

// FeedResponse is the top-level JSON envelope of the surebets endpoint.
type FeedResponse struct {
	Records []Record `json:"records"`
}

// Pick is one validated surebet reshaped around the soft leg. A Pick is
// constructed once, frozen, and discarded after delivery.
type Pick struct {
	Soft  Leg // the value side, sent to the channel
	Sharp Leg // the reference counterpart

	Profit         float64
	SoftBookmaker  string
	SharpBookmaker string
	ChannelID      int64

	// Carried from the record for the CPU validators.
	Rules       json.RawMessage
	Generatives string

	// Filled by the calculation service before formatting.
	MinOdds decimal.Decimal
	Stake   string
}

// EventTime returns the event start of the pick's soft leg.
func (p Pick) EventTime() time.Time {
	return p.Soft.EventTime()
}

// HasRuleConflict mirrors Record.HasRuleConflict for the carried marker.
func (p Pick) HasRuleConflict() bool {
	return ruleConflict(p.Rules)
}

func ruleConflict(raw json.RawMessage) bool {
	s := string(raw)
	return s != "" && s != "null" && s != "[]"
}
