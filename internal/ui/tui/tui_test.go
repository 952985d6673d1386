package tui

import (
	"strings"
	"testing"

	"github.com/bobrwm/bobrwm/internal/control/client"
	"github.com/bobrwm/bobrwm/internal/layout"
)

func TestRenderSnapshot(t *testing.T) {
	focused := layout.Key{PID: 10, WID: 2}
	snap := Snapshot{
		Displays: []client.Display{{ID: 1, Frame: layout.Rect{Width: 1000, Height: 800}, Active: 1, Workspaces: []int{1, 2}}},
		Workspaces: []client.Workspace{
			{ID: 1, Display: 1, Active: true, Tiled: []layout.Key{{PID: 10, WID: 1}, focused}, Focused: &focused, Fullscreen: &focused},
			{ID: 2, Display: 1},
		},
		Windows: []client.Window{
			{PID: 10, WID: 1, BundleID: "org.mozilla.firefox", Workspace: 1, Managed: true, OnScreen: true, Frame: layout.Rect{Width: 500, Height: 800}},
			{PID: 10, WID: 2, Workspace: 1, Managed: true, OnScreen: true, Frame: layout.Rect{Width: 1000, Height: 800}},
			{PID: 11, WID: 1, Hidden: true},
		},
		Stats: &client.Stats{},
	}
	out := Render(snap)
	for _, want := range []string{
		"Displays:", "1000x800 @ 0,0", "1,2",
		"Workspaces:", "1*", "10:2",
		"*10:2", "org.mozilla.firefox", "(unknown)", "tiled, fullscreen", "unmanaged, minimized",
		"Engine:", "queue 0/0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q:\n%s", want, out)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	out := Render(Snapshot{})
	if strings.Count(out, "(none)") != 3 {
		t.Fatalf("expected three empty sections:\n%s", out)
	}
	if strings.Contains(out, "Engine:") {
		t.Fatalf("stats section must be omitted without stats")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("com.example.application", 8); got != "com.exa…" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncate("short", 8); got != "short" {
		t.Fatalf("unexpected truncation %q", got)
	}
}
