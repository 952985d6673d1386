package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/bobrwm/bobrwm/internal/layout"
)

func TestHeadlessPlacementAndFailures(t *testing.T) {
	ctx := context.Background()
	h := NewHeadless(layout.Rect{Width: 1000, Height: 800})
	h.AddWindow(HeadlessWindow{PID: 1, WID: 1, Managed: true, OnScreen: true})

	frame := layout.Rect{X: 5, Y: 5, Width: 100, Height: 100}
	if err := h.SetWindowFrame(ctx, 1, 1, frame); err != nil {
		t.Fatalf("SetWindowFrame: %v", err)
	}
	if got, _ := h.Frame(1, 1); got != frame {
		t.Fatalf("expected frame %+v, got %+v", frame, got)
	}
	if err := h.SetWindowFrame(ctx, 1, 99, frame); !errors.Is(err, ErrWindowGone) {
		t.Fatalf("expected ErrWindowGone, got %v", err)
	}

	denied := errors.New("accessibility denied")
	h.FailPlacements(1, 1, denied)
	if err := h.SetWindowFrame(ctx, 1, 1, layout.Rect{}); !errors.Is(err, denied) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	h.FailPlacements(1, 1, nil)
	if err := h.SetWindowFrame(ctx, 1, 1, layout.Rect{}); err != nil {
		t.Fatalf("expected failure to clear, got %v", err)
	}
	if h.Placements() != 2 {
		t.Fatalf("expected 2 successful placements, got %d", h.Placements())
	}
}

func TestHeadlessQueries(t *testing.T) {
	ctx := context.Background()
	h := NewHeadless(layout.Rect{Width: 1000, Height: 800})
	h.AddApp(7, "com.example.term")
	h.AddWindow(HeadlessWindow{PID: 7, WID: 3, Managed: true})
	h.AddWindow(HeadlessWindow{PID: 7, WID: 2, Managed: false, OnScreen: true})

	ids, _ := h.AppWindowIDs(ctx, 7)
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Fatalf("unexpected window ids %v", ids)
	}
	if ok, _ := h.ShouldManageWindow(ctx, 7, 2); ok {
		t.Fatalf("expected unmanaged window")
	}
	if on, _ := h.IsWindowOnScreen(ctx, 3); on {
		t.Fatalf("expected window 3 off screen")
	}
	if _, ok, _ := h.FocusedWindow(ctx, 7); ok {
		t.Fatalf("expected no focused window yet")
	}
	if err := h.FocusWindow(ctx, 7, 3); err != nil {
		t.Fatalf("FocusWindow: %v", err)
	}
	if wid, ok, _ := h.FocusedWindow(ctx, 7); !ok || wid != 3 {
		t.Fatalf("expected focused window 3, got %d %v", wid, ok)
	}
	if id, _ := h.AppBundleID(ctx, 7); id != "com.example.term" {
		t.Fatalf("unexpected bundle id %q", id)
	}
	_ = h.ObserveApp(ctx, 7)
	if !h.Observed(7) {
		t.Fatalf("expected app observed")
	}
	h.RemoveApp(7)
	if windows, _ := h.DiscoverWindows(ctx); len(windows) != 0 {
		t.Fatalf("expected windows removed with app, got %v", windows)
	}
}

func TestDisplaysFallsBackToDisplayFrame(t *testing.T) {
	h := NewHeadless(layout.Rect{Width: 1000, Height: 800})
	second := DisplayInfo{ID: 2, Frame: layout.Rect{X: 1000, Width: 800, Height: 600}}
	h.SetDisplays(DisplayInfo{ID: 1, Frame: layout.Rect{Width: 1000, Height: 800}}, second)

	displays, err := Displays(context.Background(), h)
	if err != nil || len(displays) != 2 {
		t.Fatalf("expected two displays, got %v err=%v", displays, err)
	}
	single, err := Displays(context.Background(), frameOnly{h})
	if err != nil || len(single) != 1 || single[0].ID != 1 {
		t.Fatalf("expected single fallback display, got %v err=%v", single, err)
	}
}

// frameOnly hides the DisplayLister implementation of the wrapped backend.
type frameOnly struct{ Platform }
