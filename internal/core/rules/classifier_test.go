package rules

import "testing"

func TestClassifyDefaultRules(t *testing.T) {
	c := MustDefaultClassifier()

	cases := []struct {
		text  string
		label string
		ok    bool
	}{
		{text: "my wifi keeps dropping", label: "wifi", ok: true},
		{text: "Wireless network not visible", label: "wifi", ok: true},
		{text: "AnyConnect fails to start", label: "vpn", ok: true},
		{text: "vpn disconnects after 5 minutes", label: "vpn", ok: true},
		{text: "outlook will not open", label: "email", ok: true},
		{text: "webmail shows blank page", label: "email", ok: true},
		{text: "printer is offline", label: "printer", ok: true},
		{text: "print job stuck in queue", label: "printer", ok: true},
		{text: "what is the sla for a p1", label: "it", ok: true},
		{text: "password complexity requirements", label: "password", ok: true},
		{text: "what is the password policy", label: "password", ok: true},
		{text: "reset my password", label: "account", ok: true},
		{text: "account locked after login attempts", label: "account", ok: true},
		{text: "my monitor flickers", ok: false},
	}
	for _, tc := range cases {
		label, ok := c.Classify(tc.text)
		if ok != tc.ok || label != tc.label {
			t.Fatalf("Classify(%q) = (%q, %v), want (%q, %v)", tc.text, label, ok, tc.label, tc.ok)
		}
	}
}

func TestClassifyPrecedence(t *testing.T) {
	c := MustDefaultClassifier()

	// wifi wins over vpn, vpn over email.
	if label, _ := c.Classify("vpn over wifi is slow"); label != "wifi" {
		t.Fatalf("expected wifi, got %q", label)
	}
	if label, _ := c.Classify("vpn blocks email sync"); label != "vpn" {
		t.Fatalf("expected vpn, got %q", label)
	}
	// password policy questions must not fall through to account.
	if label, _ := c.Classify("account password rules"); label != "password" {
		t.Fatalf("expected password, got %q", label)
	}
	// "print" without a trailing space is not a printer signal.
	if label, ok := c.Classify("where is the blueprint"); ok {
		t.Fatalf("expected no category, got %q", label)
	}
}

func TestClassifyAfterNormalization(t *testing.T) {
	n := MustDefaultNormalizer()
	c := MustDefaultClassifier()

	label, ok := c.Classify(n.Normalize("My preinter is jammed"))
	if !ok || label != "printer" {
		t.Fatalf("expected printer, got (%q, %v)", label, ok)
	}
	label, ok = c.Classify(n.Normalize("VNP not working"))
	if !ok || label != "vpn" {
		t.Fatalf("expected vpn, got (%q, %v)", label, ok)
	}
}

func TestNewClassifierRejectsInvalidRules(t *testing.T) {
	if _, err := NewClassifier([]CategoryRule{{Label: "", AnyOf: []string{"x"}}}); err == nil {
		t.Fatalf("expected error for empty label")
	}
	if _, err := NewClassifier([]CategoryRule{{Label: "x"}}); err == nil {
		t.Fatalf("expected error for rule without keywords")
	}
}
