package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobrwm/bobrwm/internal/layout"
)

var mainFrame = layout.Rect{X: 0, Y: 0, Width: 1000, Height: 800}

func newTestModel(t *testing.T, workspaces int) *Model {
	t.Helper()
	m := NewModel(workspaces, layout.SplitVertical, layout.DefaultRatio)
	m.RebuildDisplays([]DisplayFrame{{ID: 1, Frame: mainFrame}})
	return m
}

func tileable(m *Model, pid int32, wid uint32) *Window {
	w, _ := m.EnsureWindow(WindowKey{PID: pid, WID: wid})
	w.Managed = true
	w.OnScreen = true
	return w
}

func TestAttachAndDetach(t *testing.T) {
	m := newTestModel(t, 3)
	a := tileable(m, 1, 1)
	b := tileable(m, 1, 2)
	if err := m.Attach(a, 1); err != nil {
		t.Fatalf("attach a: %v", err)
	}
	m.SetFocus(a.Key)
	if err := m.Attach(b, 1); err != nil {
		t.Fatalf("attach b: %v", err)
	}
	ws := m.Workspace(1)
	if diff := cmp.Diff([]WindowKey{a.Key, b.Key}, ws.Tree.Leaves()); diff != "" {
		t.Fatalf("unexpected leaves (-want +got):\n%s", diff)
	}

	if got := m.Detach(a.Key); got != 1 {
		t.Fatalf("expected former workspace 1, got %d", got)
	}
	if ws.Focused != b.Key {
		t.Fatalf("expected focus to fall back to remaining leaf, got %v", ws.Focused)
	}
	if err := m.Attach(a, 9); err == nil {
		t.Fatalf("expected unknown workspace to fail")
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("untracked window should not violate invariants: %v", err)
	}
}

func TestMoveBetweenWorkspaces(t *testing.T) {
	m := newTestModel(t, 2)
	a := tileable(m, 1, 1)
	b := tileable(m, 1, 2)
	_ = m.Attach(a, 1)
	_ = m.Attach(b, 1)
	if err := m.Attach(b, 2); err != nil {
		t.Fatalf("move: %v", err)
	}
	if m.Workspace(1).Tree.Contains(b.Key) || !m.Workspace(2).Tree.Contains(b.Key) {
		t.Fatalf("expected b to move trees")
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func TestFloatTogglePreservesFocus(t *testing.T) {
	m := newTestModel(t, 1)
	a := tileable(m, 1, 1)
	b := tileable(m, 1, 2)
	_ = m.Attach(a, 1)
	_ = m.Attach(b, 1)
	m.SetFocus(b.Key)

	m.Float(b, true)
	ws := m.Workspace(1)
	if ws.Tree.Contains(b.Key) || len(ws.Floating) != 1 {
		t.Fatalf("expected b in floating set, tree=%v floating=%v", ws.Tree.Leaves(), ws.Floating)
	}
	if ws.Focused != b.Key {
		t.Fatalf("expected focus to stay on b, got %v", ws.Focused)
	}
	m.Float(b, false)
	if !ws.Tree.Contains(b.Key) || len(ws.Floating) != 0 {
		t.Fatalf("expected b back in tree")
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func TestRetrackBackgroundWindow(t *testing.T) {
	m := newTestModel(t, 1)
	w, _ := m.EnsureWindow(WindowKey{PID: 5, WID: 9})
	w.Managed = true
	_ = m.Attach(w, 1)
	if m.Workspace(1).Tree.Len() != 0 {
		t.Fatalf("off-screen window should not be tiled")
	}
	w.OnScreen = true
	if !m.Retrack(w) {
		t.Fatalf("expected retrack to insert the window")
	}
	if m.Retrack(w) {
		t.Fatalf("expected second retrack to be a no-op")
	}
}

func TestRemoveWindowUnknownIsNoop(t *testing.T) {
	m := newTestModel(t, 1)
	if _, ok := m.RemoveWindow(WindowKey{PID: 1, WID: 1}); ok {
		t.Fatalf("expected unknown window removal to report false")
	}
}

func TestWindowsOfSorted(t *testing.T) {
	m := newTestModel(t, 1)
	for _, wid := range []uint32{3, 1, 2} {
		m.EnsureWindow(WindowKey{PID: 7, WID: wid})
	}
	m.EnsureWindow(WindowKey{PID: 8, WID: 1})
	want := []WindowKey{{PID: 7, WID: 1}, {PID: 7, WID: 2}, {PID: 7, WID: 3}}
	if diff := cmp.Diff(want, m.WindowsOf(7)); diff != "" {
		t.Fatalf("unexpected windows (-want +got):\n%s", diff)
	}
}

func TestActivateWorkspace(t *testing.T) {
	m := newTestModel(t, 3)
	prev, err := m.ActivateWorkspace(2)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if prev != 1 || m.ActiveWorkspace().ID != 2 {
		t.Fatalf("expected switch 1 -> 2, got prev=%d active=%d", prev, m.ActiveWorkspace().ID)
	}
	if _, err := m.ActivateWorkspace(0); err == nil {
		t.Fatalf("expected workspace 0 to be rejected")
	}
}

func TestRebuildDisplaysPreservesAssignment(t *testing.T) {
	m := NewModel(4, layout.SplitVertical, layout.DefaultRatio)
	second := layout.Rect{X: 1000, Y: 0, Width: 800, Height: 600}
	m.RebuildDisplays([]DisplayFrame{{ID: 1, Frame: mainFrame}, {ID: 2, Frame: second}})
	if m.Workspace(2).Display != 2 || m.Display(2).Active != 2 {
		t.Fatalf("expected workspace 2 on display 2, got %+v", m.Display(2))
	}
	if diff := cmp.Diff([]int{1, 3, 4}, m.Display(1).Workspaces); diff != "" {
		t.Fatalf("unexpected primary workspaces (-want +got):\n%s", diff)
	}

	resized := layout.Rect{X: 0, Y: 25, Width: 1200, Height: 775}
	m.RebuildDisplays([]DisplayFrame{{ID: 1, Frame: resized}, {ID: 2, Frame: second}})
	if m.Workspace(2).Display != 2 || m.Display(1).Frame != resized {
		t.Fatalf("expected assignment preserved and geometry updated")
	}

	all := m.RebuildDisplays([]DisplayFrame{{ID: 1, Frame: resized}})
	if len(all) != 4 {
		t.Fatalf("expected every workspace reported, got %v", all)
	}
	if m.Workspace(2).Display != 1 {
		t.Fatalf("expected orphaned workspace to move to the primary display")
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4}, m.Display(1).Workspaces); diff != "" {
		t.Fatalf("unexpected primary workspaces (-want +got):\n%s", diff)
	}
}

func TestViewIsDetached(t *testing.T) {
	m := newTestModel(t, 2)
	a := tileable(m, 1, 1)
	_ = m.Attach(a, 1)
	m.SetFocus(a.Key)
	m.Apps[1] = &App{PID: 1, BundleID: "com.example.editor"}

	v := m.View()
	a.Frame = layout.Rect{Width: 42}
	m.Workspace(1).Tree.Remove(a.Key)

	wv, ok := v.Window(a.Key)
	if !ok || wv.Frame.Width != 0 || wv.BundleID != "com.example.editor" {
		t.Fatalf("unexpected window view %+v", wv)
	}
	ws, _ := v.Workspace(1)
	if !ws.Active || len(ws.Tiled) != 1 || ws.Layout == nil || ws.Layout.Window == nil {
		t.Fatalf("unexpected workspace view %+v", ws)
	}
	if v.FocusedWindow == nil || *v.FocusedWindow != a.Key {
		t.Fatalf("expected focused window in view")
	}
}
