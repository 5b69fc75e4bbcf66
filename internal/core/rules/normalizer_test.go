package rules

import (
	"errors"
	"testing"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

func TestNormalizeFixesDomainTypos(t *testing.T) {
	n := MustDefaultNormalizer()

	cases := map[string]string{
		"My PREINTER is jammed":         "my printer is jammed",
		"all prnters offline":           "all printers offline",
		"cannot join Wi Fi":             "cannot join wifi",
		"wfi drops every hour":          "wifi drops every hour",
		"VNP will not connect":          "vpn will not connect",
		"eamil bounced":                 "email bounced",
		"reset my passwrod":             "reset my password",
		"forgot pasword":                "forgot password",
		"outlook maill stuck in outbox": "outlook mail stuck in outbox",
		"nothing to fix here":           "nothing to fix here",
		"":                              "",
	}
	for input, want := range cases {
		if got := n.Normalize(input); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := MustDefaultNormalizer()

	inputs := []string{
		"mailll",
		"maillllllll and preinterss",
		"Wi Fi wfi VNP",
		"pasword passwrod password",
		"HOW DO I RESET MY PASSWROD?",
	}
	for _, input := range inputs {
		once := n.Normalize(input)
		twice := n.Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", input, once, twice)
		}
	}
	if got := n.Normalize("mailll"); got != "mail" {
		t.Fatalf("expected mailll to settle at mail, got %q", got)
	}
}

func TestNormalizeLeavesCanonicalTermsUnchanged(t *testing.T) {
	n := MustDefaultNormalizer()
	for _, term := range []string{"printer", "printers", "wifi", "vpn", "email", "mail", "password"} {
		if got := n.Normalize(term); got != term {
			t.Fatalf("Normalize(%q) = %q", term, got)
		}
	}
}

func TestNewNormalizerRejectsInvalidRules(t *testing.T) {
	cases := []struct {
		name  string
		rules []TypoRule
	}{
		{name: "empty pattern", rules: []TypoRule{{Pattern: "", Replacement: "x"}}},
		{name: "uppercase pattern", rules: []TypoRule{{Pattern: "Wfi", Replacement: "wifi"}}},
		{name: "replacement contains pattern", rules: []TypoRule{{Pattern: "mail", Replacement: "email"}}},
		{name: "replacement contains other pattern", rules: []TypoRule{
			{Pattern: "vnp", Replacement: "vpn"},
			{Pattern: "pn", Replacement: "p"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewNormalizer(tc.rules)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestDefaultTypoRulesAreValid(t *testing.T) {
	if _, err := NewNormalizer(DefaultTypoRules); err != nil {
		t.Fatalf("NewNormalizer(DefaultTypoRules) error = %v", err)
	}
}

func TestNormalizeStopsWhenReplacementsGrowText(t *testing.T) {
	n, err := NewNormalizer([]TypoRule{{Pattern: "ba", Replacement: "aab"}})
	if err != nil {
		t.Fatalf("NewNormalizer() error = %v", err)
	}

	if got := n.Normalize("ba ba"); got != "aab aab" {
		t.Fatalf("Normalize(%q) = %q", "ba ba", got)
	}
	// "bbba" does not settle within five passes.
	if got := n.Normalize("bbba"); got != "aaaaaababb" {
		t.Fatalf("Normalize(%q) = %q, want pass limit result", "bbba", got)
	}
}
