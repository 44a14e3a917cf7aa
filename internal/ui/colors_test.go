package ui

import "testing"

func TestOutcome(t *testing.T) {
	tests := map[string]string{
		"":          ColorGreen + "ok" + ColorReset,
		"BLACKOUT":  ColorYellow + "BLACKOUT" + ColorReset,
		"EMPTY_OK":  ColorYellow + "EMPTY_OK" + ColorReset,
		"TRANSPORT": ColorRed + "TRANSPORT" + ColorReset,
	}
	for kind, want := range tests {
		if got := Outcome(kind); got != want {
			t.Errorf("Outcome(%q) = %q, want %q", kind, got, want)
		}
	}
}
