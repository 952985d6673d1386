package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/bobrwm/bobrwm/internal/config"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/platform"
	"github.com/bobrwm/bobrwm/internal/util"
)

func TestFormatPlacement(t *testing.T) {
	p := layout.Placement{Window: layout.Key{PID: 3, WID: 7}, Frame: layout.Rect{X: 10, Y: 20, Width: 300, Height: 200}}
	if got, want := formatPlacement(p), "3:7 -> 10,20 300x200"; got != want {
		t.Fatalf("formatPlacement = %q, want %q", got, want)
	}
}

func TestPreviewDoesNotApplyPlacements(t *testing.T) {
	h := platform.NewHeadless(layout.Rect{Width: 1000, Height: 800})
	h.AddApp(10, "com.example.editor")
	h.AddApp(20, "com.apple.finder")
	h.AddWindow(platform.HeadlessWindow{PID: 10, WID: 1, Managed: true, OnScreen: true})
	h.AddWindow(platform.HeadlessWindow{PID: 20, WID: 2, Managed: true, OnScreen: true})

	cfg, err := config.Parse([]byte(`workspaces: 2
rules:
  - name: finder-floats
    bundleId: com.apple.finder
    float: true
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var out bytes.Buffer
	logger := util.NewLoggerWithWriter(util.LevelError, io.Discard)
	if err := preview(context.Background(), h, cfg, logger, &out); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if h.Placements() != 0 {
		t.Fatalf("preview applied %d placement(s)", h.Placements())
	}
	if got := h.InstalledKeybinds(); len(got) != 0 {
		t.Fatalf("preview installed keybinds: %+v", got)
	}
	output := out.String()
	for _, want := range []string{
		"=== Configuration ===",
		"=== Model Snapshot ===",
		"- 10:1 -> 0,0 1000x800",
		"- com.apple.finder: float (finder-floats)",
		"- com.example.editor: no rule",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestPreviewEmptyServer(t *testing.T) {
	h := platform.NewHeadless(layout.Rect{Width: 800, Height: 600})
	var out bytes.Buffer
	logger := util.NewLoggerWithWriter(util.LevelError, io.Discard)
	if err := preview(context.Background(), h, config.Default(), logger, &out); err != nil {
		t.Fatalf("preview: %v", err)
	}
	for _, want := range []string{"No planned placements", "No applications with a bundle identifier"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}
}
