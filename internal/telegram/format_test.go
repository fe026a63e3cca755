package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"retador/internal/cache"
	"retador/pkg/types"
)

func testFormatter() *Formatter {
	return NewFormatter(cache.New(100))
}

func formatPick() *types.Pick {
	return &types.Pick{
		Soft: types.Leg{
			Bookmaker:  "retabet_apuestas",
			Value:      2.05,
			TimeMs:     time.Now().Add(time.Hour).UnixMilli(),
			Teams:      []string{"Fnatic", "G2"},
			Type:       types.LegType{Type: "under", Variety: "2.5"},
			Tournament: "ESL Pro League",
			SportID:    "CounterStrike",
			Nav: types.Navigation{Links: []types.NavEntry{
				{Link: types.NavLink{URL: "https://retabet.es/apuestas/123"}},
			}},
		},
		Profit:        2.5,
		SoftBookmaker: "retabet_apuestas",
		MinOdds:       decimal.RequireFromString("1.92"),
		Stake:         "🟡",
	}
}

func TestFormatDynamicLine(t *testing.T) {
	t.Parallel()
	msg := testFormatter().Format(formatPick())

	wantFirst := "<b>🟡 UNDER 2.5 @2.05 (🔻1.92)</b>"
	if first := strings.SplitN(msg, "\n", 2)[0]; first != wantFirst {
		t.Errorf("dynamic line = %q, want %q", first, wantFirst)
	}
}

func TestFormatStaticBlock(t *testing.T) {
	t.Parallel()
	msg := testFormatter().Format(formatPick())

	for _, want := range []string{
		"🎮 <code>Fnatic - G2</code>",
		"🏆 ESL Pro League",
		"📅 ",
		"🔗 https://retabet.es/apuestas/123",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatIdempotent(t *testing.T) {
	t.Parallel()
	f := testFormatter()
	p := formatPick()

	if a, b := f.Format(p), f.Format(p); a != b {
		t.Errorf("repeated Format differs:\n%q\n%q", a, b)
	}
}

func TestFormatCachesStaticBlock(t *testing.T) {
	t.Parallel()
	f := testFormatter()
	p := formatPick()
	first := f.Format(p)

	// Same event+bookmaker within the TTL reuses the rendered block
	// even when mutable metadata changes.
	p.Soft.Tournament = "changed"
	if second := f.Format(p); second != first {
		t.Error("static block not served from cache")
	}
}

func TestMarketDescriptor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		typ  types.LegType
		want string
	}{
		{types.LegType{Type: "under", Variety: "2.5"}, "UNDER 2.5"},
		{types.LegType{Type: "win1retx"}, "DNB1"},
		{types.LegType{Type: "win2retx"}, "DNB2"},
		{types.LegType{Type: "winonly1"}, "WIN1"},
		{types.LegType{Type: "win1"}, "WIN1"},
		{types.LegType{Type: "_1x"}, "1X"},
		{types.LegType{Type: "_12"}, "12"},
		// Stop words dropped, whitespace collapsed.
		{types.LegType{Type: "over", Variety: "2.5", Condition: "total  goals"}, "OVER 2.5"},
		{types.LegType{Type: "win1", Condition: "regular time"}, "WIN1"},
	}
	for _, tt := range tests {
		if got := MarketDescriptor(tt.typ); got != tt.want {
			t.Errorf("MarketDescriptor(%+v) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestSafeEscapeReentrant(t *testing.T) {
	t.Parallel()
	once := safeEscape("Atlético & Real <1>")
	if !strings.Contains(once, "&amp;") || !strings.Contains(once, "&lt;1&gt;") {
		t.Errorf("escaping missing: %q", once)
	}
	if twice := safeEscape(once); twice != once {
		t.Errorf("double escape changed output:\n%q\n%q", once, twice)
	}
}

func TestRewriteDomain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"https://bet365.com/dl/sport/foo?bar=1", "https://bet365.es/DL/SPORT/FOO?BAR=1"},
		{"https://sports.betway.com/en/sports/evt/1", "https://sports.betway.es/es/sports/evt/1"},
		{"https://sports.bwin.com/en/sports/live", "https://sports.bwin.es/es/sports/live"},
		{"https://sportswidget.versus.es/sports/evt/1", "https://www.versus.es/apuestas/sports/evt/1"},
		{"https://versus.es/sports/evt/1", "https://www.versus.es/apuestas/sports/evt/1"},
		{"https://pokerstars.uk/bets/5", "https://pokerstars.es/bets/5"},
		{"https://retabet.es/apuestas/123", "https://retabet.es/apuestas/123"},
	}
	for _, tt := range tests {
		if got := RewriteDomain(tt.in); got != tt.want {
			t.Errorf("RewriteDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
		// A rewritten link must survive a second pass untouched.
		if again := RewriteDomain(tt.want); again != tt.want {
			t.Errorf("RewriteDomain not idempotent for %q: %q", tt.want, again)
		}
	}
}

func TestSpanishDate(t *testing.T) {
	t.Parallel()
	f := testFormatter()

	// 2026-01-01 is a Thursday.
	got := f.formatDate(time.Date(2026, 1, 1, 12, 0, 0, 0, f.loc))
	if got != "01/01/2026 (Jueves 12:00)" {
		t.Errorf("formatDate = %q", got)
	}
}
