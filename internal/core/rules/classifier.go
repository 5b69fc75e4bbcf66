package rules

import (
	"fmt"
	"strings"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

// CategoryRule matches when every AllOf keyword and, if AnyOf is set, at
// least one AnyOf keyword occur as substrings of the lowercased text.
type CategoryRule struct {
	Label string
	AllOf []string
	AnyOf []string
}

func (r CategoryRule) matches(text string) bool {
	for _, kw := range r.AllOf {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	if len(r.AnyOf) == 0 {
		return true
	}
	for _, kw := range r.AnyOf {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// DefaultCategoryRules encodes category precedence. The generic account rule
// must stay last: it also matches password policy questions.
var DefaultCategoryRules = []CategoryRule{
	{Label: "wifi", AnyOf: []string{"wifi", "wi-fi", "wireless"}},
	{Label: "vpn", AnyOf: []string{"vpn", "anyconnect"}},
	{Label: "email", AnyOf: []string{"outlook", "email", "mail", "webmail"}},
	{Label: "printer", AnyOf: []string{"printer", "print ", "print job"}},
	{Label: "it", AnyOf: []string{"sla", "priority", "p1", "critical incident"}},
	{Label: "password", AllOf: []string{"password"}, AnyOf: []string{"complexity", "requirement", "requirements", "rules", "policy"}},
	{Label: "account", AnyOf: []string{"password", "account", "login"}},
}

type Classifier struct {
	rules []CategoryRule
}

func NewClassifier(rules []CategoryRule) (*Classifier, error) {
	for i, rule := range rules {
		if strings.TrimSpace(rule.Label) == "" {
			return nil, domain.WrapError(domain.ErrConfiguration, "build classifier", fmt.Errorf("rule %d: empty label", i))
		}
		if len(rule.AllOf) == 0 && len(rule.AnyOf) == 0 {
			return nil, domain.WrapError(domain.ErrConfiguration, "build classifier", fmt.Errorf("rule %q: no keywords", rule.Label))
		}
	}
	copied := make([]CategoryRule, len(rules))
	copy(copied, rules)
	return &Classifier{rules: copied}, nil
}

func MustDefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultCategoryRules)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the label of the first matching rule.
func (c *Classifier) Classify(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, rule := range c.rules {
		if rule.matches(lowered) {
			return rule.Label, true
		}
	}
	return "", false
}
