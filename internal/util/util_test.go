package util

import (
	"strings"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone(" +1 (555) 123-4567 "); got != "+15551234567" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestRenderTemplate(t *testing.T) {
	got := RenderTemplate("Hi {name}, time for {title}.", map[string]string{"name": "Ann", "title": "meds"})
	if got != "Hi Ann, time for meds." {
		t.Fatalf("unexpected %q", got)
	}
}

func TestNewIDPrefixAndOrder(t *testing.T) {
	a := NewReminderID()
	if !strings.HasPrefix(a, "rem_") || len(a) != len("rem_")+26 {
		t.Fatalf("unexpected id %q", a)
	}
	if NewResponseID() == NewResponseID() {
		t.Fatalf("expected unique ids")
	}
}
