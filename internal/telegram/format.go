package telegram

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"retador/internal/cache"
	"retador/pkg/types"
)

// staticTTL bounds reuse of the rendered static block. Events repeat
// across polls within a minute far more often than their metadata
// changes.
const staticTTL = 60 * time.Second

// marketReplacements rewrites feed market codes into the display terms
// subscribers know. Order matters: longer codes first, so "win1retx"
// never degrades into "WIN1retx".
var marketReplacements = []struct{ from, to string }{
	{"win1retx", "DNB1"},
	{"win2retx", "DNB2"},
	{"winonly1", "WIN1"},
	{"winonly2", "WIN2"},
	{"win1", "WIN1"},
	{"win2", "WIN2"},
	{"_1x", "1X"},
	{"_x2", "X2"},
	{"_12", "12"},
}

// stopWords are filler terms dropped from market descriptors.
var stopWords = map[string]bool{
	"point": true, "points": true, "overall": true, "regular": true,
	"overtime": true, "goal": true, "goals": true, "regulartime": true,
	"set": true, "time": true, "total": true, "game": true, "games": true,
	"match": true, "matches": true,
}

var sportEmojis = map[string]string{
	"Football":         "⚽",
	"Futsal":           "⚽",
	"E_Football":       "🎮",
	"CounterStrike":    "🎮",
	"LeagueOfLegends":  "🎮",
	"Valorant":         "🎮",
	"Tennis":           "🎾",
	"TableTennis":      "🏓",
	"Basketball":       "🏀",
	"Baseball":         "⚾",
	"Hockey":           "🏒",
	"AmericanFootball": "🏈",
	"Rugby":            "🏉",
	"Volleyball":       "🏐",
	"Handball":         "🤾",
	"Badminton":        "🏸",
	"Cricket":          "🏏",
	"Darts":            "🎯",
	"Snooker":          "🎱",
	"WaterPolo":        "🤽",
}

const defaultSportEmoji = "🏅"

var spanishDays = [...]string{
	"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado",
}

// Formatter renders the HTML message for a pick. The static block
// (teams, tournament, date, link) is cached per event+bookmaker; the
// dynamic line is rebuilt every time.
type Formatter struct {
	cache *cache.Cache
	loc   *time.Location
}

// NewFormatter creates a formatter rendering dates in Europe/Madrid.
func NewFormatter(c *cache.Cache) *Formatter {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		loc = time.UTC
	}
	return &Formatter{cache: c, loc: loc}
}

// Format renders the full message. Deterministic: the same pick always
// yields byte-identical output.
func (f *Formatter) Format(p *types.Pick) string {
	dynamic := fmt.Sprintf("<b>%s %s @%s (🔻%s)</b>",
		p.Stake,
		MarketDescriptor(p.Soft.Type),
		formatOdds(p.Soft.Value),
		p.MinOdds.StringFixed(2),
	)
	return dynamic + "\n\n" + f.staticBlock(p)
}

func (f *Formatter) staticBlock(p *types.Pick) string {
	key := fmt.Sprintf("fmt:%s:%d:%s",
		strings.Join(p.Soft.Teams, "|"), p.Soft.TimeMs, p.SoftBookmaker)
	if cached, ok := f.cache.Get(key); ok {
		if block, ok := cached.(string); ok {
			return block
		}
	}

	var b strings.Builder
	b.WriteString(sportEmoji(p.Soft.SportID))
	b.WriteString(" <code>")
	b.WriteString(safeEscape(strings.Join(p.Soft.Teams, " - ")))
	b.WriteString("</code>")

	if t := strings.TrimSpace(p.Soft.Tournament); t != "" {
		b.WriteString("\n🏆 ")
		b.WriteString(safeEscape(t))
	}

	b.WriteString("\n📅 ")
	b.WriteString(f.formatDate(p.EventTime()))

	if link := p.Soft.DeepLink(); link != "" {
		b.WriteString("\n\n🔗 ")
		b.WriteString(RewriteDomain(link))
	}

	block := b.String()
	f.cache.SetTTL(key, block, staticTTL)
	return block
}

// formatDate renders "DD/MM/YYYY (Weekday HH:MM)" with the weekday in
// Spanish, in the formatter's location.
func (f *Formatter) formatDate(t time.Time) string {
	local := t.In(f.loc)
	return fmt.Sprintf("%s (%s %s)",
		local.Format("02/01/2006"),
		spanishDays[local.Weekday()],
		local.Format("15:04"),
	)
}

// MarketDescriptor renders a leg's market as the uppercased display
// term: substitution table, then stop-word removal, then escaping.
func MarketDescriptor(t types.LegType) string {
	parts := make([]string, 0, 6)
	for _, part := range []string{t.Type, t.Variety, t.Condition, t.Base, t.Game, t.Period} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	text := strings.ToLower(strings.Join(parts, " "))
	for _, r := range marketReplacements {
		text = strings.ReplaceAll(text, r.from, strings.ToLower(r.to))
	}

	words := make([]string, 0, 6)
	for _, w := range strings.Fields(text) {
		if !stopWords[w] {
			words = append(words, w)
		}
	}
	return safeEscape(strings.ToUpper(strings.Join(words, " ")))
}

// safeEscape HTML-escapes text without double-escaping already escaped
// input: unescape first, then escape.
func safeEscape(text string) string {
	return html.EscapeString(html.UnescapeString(strings.TrimSpace(text)))
}

// RewriteDomain maps bookmaker deep links onto their Spanish domains.
// The rewrites are literal string surgery and must stay bit-exact;
// subscribers land on the wrong storefront otherwise.
func RewriteDomain(link string) string {
	switch {
	case strings.Contains(link, "bet365.com"):
		out := strings.Replace(link, "bet365.com", "bet365.es", 1)
		// bet365.es only resolves uppercased deep-link paths.
		if i := strings.Index(out, ".es"); i >= 0 {
			out = out[:i+3] + strings.ToUpper(out[i+3:])
		}
		return out
	case strings.Contains(link, "sports.betway.com/en/sports"):
		return strings.Replace(link, "sports.betway.com/en/sports", "sports.betway.es/es/sports", 1)
	case strings.Contains(link, "sports.bwin.com/en/"):
		return strings.Replace(link, "sports.bwin.com/en/", "sports.bwin.es/es/", 1)
	case strings.Contains(link, "sportswidget.versus.es/sports"):
		return strings.Replace(link, "sportswidget.versus.es/sports", "www.versus.es/apuestas/sports", 1)
	case strings.Contains(link, "versus.es/sports"):
		return strings.Replace(link, "versus.es/sports", "www.versus.es/apuestas/sports", 1)
	case strings.Contains(link, "pokerstars.uk/"):
		return strings.Replace(link, "pokerstars.uk/", "pokerstars.es/", 1)
	}
	return link
}

func sportEmoji(sportID string) string {
	if e, ok := sportEmojis[sportID]; ok {
		return e
	}
	return defaultSportEmoji
}

func formatOdds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
