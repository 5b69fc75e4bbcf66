package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

// TypoRule replaces every occurrence of Pattern with Replacement.
type TypoRule struct {
	Pattern     string
	Replacement string
}

// DefaultTypoRules is the domain typo map, applied in order.
var DefaultTypoRules = []TypoRule{
	{Pattern: "preinters", Replacement: "printers"},
	{Pattern: "preinter", Replacement: "printer"},
	{Pattern: "prnters", Replacement: "printers"},
	{Pattern: "prnter", Replacement: "printer"},
	{Pattern: "wi fi", Replacement: "wifi"},
	{Pattern: "wfi", Replacement: "wifi"},
	{Pattern: "vnp", Replacement: "vpn"},
	{Pattern: "eamil", Replacement: "email"},
	{Pattern: "maill", Replacement: "mail"},
	{Pattern: "passwrod", Replacement: "password"},
	{Pattern: "pasword", Replacement: "password"},
}

type Normalizer struct {
	rules []TypoRule
}

// NewNormalizer validates the rule set. Patterns must be non-empty and
// lowercase, and no replacement may contain any pattern.
func NewNormalizer(rules []TypoRule) (*Normalizer, error) {
	var errs []error
	for i, rule := range rules {
		if rule.Pattern == "" {
			errs = append(errs, fmt.Errorf("rule %d: empty pattern", i))
			continue
		}
		if rule.Pattern != strings.ToLower(rule.Pattern) {
			errs = append(errs, fmt.Errorf("rule %d: pattern %q is not lowercase", i, rule.Pattern))
		}
	}
	for i, rule := range rules {
		for _, other := range rules {
			if other.Pattern != "" && strings.Contains(rule.Replacement, other.Pattern) {
				errs = append(errs, fmt.Errorf("rule %d: replacement %q contains pattern %q", i, rule.Replacement, other.Pattern))
			}
		}
	}
	if len(errs) > 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "build normalizer", errors.Join(errs...))
	}

	copied := make([]TypoRule, len(rules))
	copy(copied, rules)
	return &Normalizer{rules: copied}, nil
}

func MustDefaultNormalizer() *Normalizer {
	n, err := NewNormalizer(DefaultTypoRules)
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize lowercases text and applies the typo rules until the text is stable
// or len(text)+1 passes have run.
func (n *Normalizer) Normalize(text string) string {
	out := strings.ToLower(text)
	// Replacements may grow the text, so the pass limit is fixed by the input length.
	maxPasses := len(out) + 1
	for pass := 0; pass < maxPasses; pass++ {
		next := n.applyOnce(out)
		if next == out {
			return out
		}
		out = next
	}
	return out
}

func (n *Normalizer) applyOnce(text string) string {
	for _, rule := range n.rules {
		text = strings.ReplaceAll(text, rule.Pattern, rule.Replacement)
	}
	return text
}
