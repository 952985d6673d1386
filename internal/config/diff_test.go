package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustDecode(t *testing.T, doc string) *Config {
	t.Helper()
	cfg, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return cfg
}

func TestDiffReportsSemanticChanges(t *testing.T) {
	previous := mustDecode(t, `workspaces: 4
gaps: {inner: 4}
rules:
  - bundleId: com.apple.finder
    float: true
keybinds:
  - key: alt+1
    action: focus-workspace
    arg: 1
`)
	current := mustDecode(t, `workspaces: 4
gaps: {inner: 8}
rules:
  - bundleId: com.apple.finder
    float: true
keybinds:
  - key: alt+1
    action: focus-workspace
    arg: 1
  - key: alt+h
    action: focus-left
`)
	diff := Diff(previous, current)
	for _, want := range []string{"Inner", "alt+h", "focus-left"} {
		if !strings.Contains(diff, want) {
			t.Fatalf("expected diff to mention %q, got:\n%s", want, diff)
		}
	}
	if strings.Contains(diff, "com.apple.finder") {
		t.Fatalf("unchanged rules should not appear in diff:\n%s", diff)
	}
	if got, want := ChangedSections(previous, current), []string{"gaps", "keybinds"}; !cmp.Equal(got, want) {
		t.Fatalf("ChangedSections = %v, want %v", got, want)
	}
}

func TestDiffIgnoresSpelledOutDefaults(t *testing.T) {
	previous := mustDecode(t, "workspaces: 9\n")
	current := mustDecode(t, "workspaces: 9\ndefaultSplit: vertical\nsplitRatio: 0.5\nlogLevel: info\n")
	if diff := Diff(previous, current); diff != "" {
		t.Fatalf("expected no diff, got:\n%s", diff)
	}
	if got := ChangedSections(previous, current); len(got) != 0 {
		t.Fatalf("expected no changed sections, got %v", got)
	}
}

func TestDiffAgainstMissingConfigUsesDefaults(t *testing.T) {
	current := mustDecode(t, "splitRatio: 0.6\n")
	if got, want := ChangedSections(nil, current), []string{"splitRatio"}; !cmp.Equal(got, want) {
		t.Fatalf("ChangedSections = %v, want %v", got, want)
	}
}
