// Package state holds the window, workspace and display model owned by the
// engine loop. Cross references between entities are IDs into the owning
// collections, never pointers.
package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bobrwm/bobrwm/internal/layout"
)

// WindowKey identifies a window by owning pid and window server id.
type WindowKey = layout.Key

// Window is a tracked top-level window.
type Window struct {
	Key WindowKey
	// Frame is the last explicit frame for floating windows and the last
	// computed target for tiled ones.
	Frame    layout.Rect
	Floating bool
	OnScreen bool
	Hidden   bool
	Managed  bool
	// Workspace is the owning workspace ID, 0 when untracked.
	Workspace int
}

// Tileable reports whether the window belongs in a tiling tree.
func (w *Window) Tileable() bool {
	return w != nil && w.Managed && w.OnScreen && !w.Floating
}

// Workspace is a tiling tree plus a floating layer.
type Workspace struct {
	ID         int
	Display    int
	Tree       layout.Tree
	Floating   []WindowKey
	Focused    WindowKey
	Fullscreen WindowKey
}

// Display is a physical output.
type Display struct {
	ID         int
	Frame      layout.Rect
	Active     int
	Workspaces []int
}

// App is a running application the engine observes.
type App struct {
	PID      int32
	BundleID string
}

// Model is the aggregate of all tracked entities.
type Model struct {
	Windows        map[WindowKey]*Window
	Workspaces     []*Workspace
	Displays       []*Display
	Apps           map[int32]*App
	FocusedDisplay int
}

// DisplayFrame describes a display as reported by the platform.
type DisplayFrame struct {
	ID    int
	Frame layout.Rect
}

// NewModel creates count workspaces seeded with the given split defaults.
// Displays are added by RebuildDisplays.
func NewModel(count int, orientation layout.Orientation, ratio float64) *Model {
	if count <= 0 {
		count = 1
	}
	m := &Model{
		Windows: make(map[WindowKey]*Window),
		Apps:    make(map[int32]*App),
	}
	for i := 1; i <= count; i++ {
		m.Workspaces = append(m.Workspaces, &Workspace{
			ID:   i,
			Tree: layout.Tree{Orientation: orientation, Ratio: ratio},
		})
	}
	return m
}

// SetSplitDefaults changes the orientation and ratio used by future splits.
// Existing internal nodes keep their geometry.
func (m *Model) SetSplitDefaults(orientation layout.Orientation, ratio float64) {
	for _, ws := range m.Workspaces {
		ws.Tree.Orientation = orientation
		ws.Tree.Ratio = ratio
	}
}

// Window returns the tracked window or nil.
func (m *Model) Window(k WindowKey) *Window {
	return m.Windows[k]
}

// EnsureWindow returns the window for k, creating an untracked record when
// absent. The boolean reports whether it was created.
func (m *Model) EnsureWindow(k WindowKey) (*Window, bool) {
	if w, ok := m.Windows[k]; ok {
		return w, false
	}
	w := &Window{Key: k}
	m.Windows[k] = w
	return w, true
}

// Workspace returns the workspace with id or nil.
func (m *Model) Workspace(id int) *Workspace {
	if id < 1 || id > len(m.Workspaces) {
		return nil
	}
	return m.Workspaces[id-1]
}

// Display returns the display with id or nil.
func (m *Model) Display(id int) *Display {
	for _, d := range m.Displays {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// FocusedDisplayRef returns the focused display, falling back to the first.
func (m *Model) FocusedDisplayRef() *Display {
	if d := m.Display(m.FocusedDisplay); d != nil {
		return d
	}
	if len(m.Displays) > 0 {
		return m.Displays[0]
	}
	return nil
}

// ActiveWorkspace returns the active workspace of the focused display.
func (m *Model) ActiveWorkspace() *Workspace {
	d := m.FocusedDisplayRef()
	if d == nil {
		return m.Workspace(1)
	}
	return m.Workspace(d.Active)
}

// IsActive reports whether ws is the active workspace of its display.
func (m *Model) IsActive(ws *Workspace) bool {
	if ws == nil {
		return false
	}
	d := m.Display(ws.Display)
	return d != nil && d.Active == ws.ID
}

// FocusedWindow returns the focus pointer of the active workspace.
func (m *Model) FocusedWindow() (WindowKey, bool) {
	ws := m.ActiveWorkspace()
	if ws == nil || ws.Focused.IsZero() {
		return WindowKey{}, false
	}
	return ws.Focused, true
}

// Attach places w on workspace id: into the tree next to the workspace's
// focused window when tileable, into the floating set when floating, and
// only as a member otherwise. Attaching to the current workspace is a no-op.
func (m *Model) Attach(w *Window, id int) error {
	ws := m.Workspace(id)
	if ws == nil {
		return fmt.Errorf("workspace %d not found", id)
	}
	if w.Workspace != 0 && w.Workspace != id {
		m.Detach(w.Key)
	}
	w.Workspace = id
	switch {
	case w.Floating:
		if !containsKey(ws.Floating, w.Key) {
			ws.Floating = append(ws.Floating, w.Key)
		}
	case w.Tileable():
		ws.Tree.Insert(w.Key, ws.Focused)
	}
	return nil
}

// Detach removes w from its workspace and clears pointers to it. It returns
// the former workspace ID, 0 when the window was not attached.
func (m *Model) Detach(k WindowKey) int {
	w := m.Windows[k]
	if w == nil || w.Workspace == 0 {
		return 0
	}
	id := w.Workspace
	w.Workspace = 0
	ws := m.Workspace(id)
	if ws == nil {
		return 0
	}
	ws.Tree.Remove(k)
	ws.Floating = removeKey(ws.Floating, k)
	if ws.Fullscreen == k {
		ws.Fullscreen = WindowKey{}
	}
	if ws.Focused == k {
		ws.Focused = WindowKey{}
		if leaves := ws.Tree.Leaves(); len(leaves) > 0 {
			ws.Focused = leaves[0]
		} else if len(ws.Floating) > 0 {
			ws.Focused = ws.Floating[len(ws.Floating)-1]
		}
	}
	return id
}

// Float moves w between its workspace tree and floating set.
func (m *Model) Float(w *Window, floating bool) {
	if w.Floating == floating {
		return
	}
	id := w.Workspace
	focused := false
	if ws := m.Workspace(id); ws != nil {
		focused = ws.Focused == w.Key
	}
	if id != 0 {
		m.Detach(w.Key)
	}
	w.Floating = floating
	if id != 0 {
		_ = m.Attach(w, id)
		if focused {
			m.Workspace(id).Focused = w.Key
		}
	}
}

// Retrack reconciles tree membership after Managed, OnScreen or Floating
// changed. It returns true when the tree changed.
func (m *Model) Retrack(w *Window) bool {
	ws := m.Workspace(w.Workspace)
	if ws == nil {
		return false
	}
	inTree := ws.Tree.Contains(w.Key)
	switch {
	case w.Tileable() && !inTree:
		return ws.Tree.Insert(w.Key, ws.Focused)
	case !w.Tileable() && inTree:
		return ws.Tree.Remove(w.Key)
	}
	return false
}

// RemoveWindow forgets k entirely. It returns the former workspace ID and
// whether the window was known.
func (m *Model) RemoveWindow(k WindowKey) (int, bool) {
	if _, ok := m.Windows[k]; !ok {
		return 0, false
	}
	id := m.Detach(k)
	delete(m.Windows, k)
	return id, true
}

// WindowsOf returns every window owned by pid in key order.
func (m *Model) WindowsOf(pid int32) []WindowKey {
	var out []WindowKey
	for k := range m.Windows {
		if k.PID == pid {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out
}

// SetFocus points the owning workspace at k and focuses that workspace's
// display when the workspace is active there.
func (m *Model) SetFocus(k WindowKey) bool {
	w := m.Windows[k]
	if w == nil {
		return false
	}
	ws := m.Workspace(w.Workspace)
	if ws == nil {
		return false
	}
	ws.Focused = k
	if m.IsActive(ws) {
		m.FocusedDisplay = ws.Display
	}
	return true
}

// ActivateWorkspace makes id the active workspace on the focused display and
// returns the previously active workspace ID there. When id is already
// active on another display, that display is focused instead.
func (m *Model) ActivateWorkspace(id int) (int, error) {
	ws := m.Workspace(id)
	if ws == nil {
		return 0, fmt.Errorf("workspace %d not found", id)
	}
	focused := m.FocusedDisplayRef()
	if focused == nil {
		return 0, errors.New("no displays")
	}
	if owner := m.Display(ws.Display); owner != nil && owner.Active == id {
		m.FocusedDisplay = owner.ID
		return id, nil
	}
	if ws.Display != focused.ID {
		if owner := m.Display(ws.Display); owner != nil {
			owner.Workspaces = removeInt(owner.Workspaces, id)
		}
		ws.Display = focused.ID
		focused.Workspaces = insertSorted(focused.Workspaces, id)
	}
	prev := focused.Active
	focused.Active = id
	m.FocusedDisplay = focused.ID
	return prev, nil
}

// RebuildDisplays replaces the display list. Workspaces keep their display
// when it still exists; orphans move to the first display. A display that
// has no workspace claims the highest inactive workspace of the first
// display. Returns every workspace ID in ascending order.
func (m *Model) RebuildDisplays(frames []DisplayFrame) []int {
	if len(frames) == 0 {
		return nil
	}
	prev := make(map[int]*Display, len(m.Displays))
	for _, d := range m.Displays {
		prev[d.ID] = d
	}
	displays := make([]*Display, 0, len(frames))
	byID := make(map[int]*Display, len(frames))
	for _, f := range frames {
		d := &Display{ID: f.ID, Frame: f.Frame}
		if old := prev[f.ID]; old != nil {
			d.Active = old.Active
		}
		displays = append(displays, d)
		byID[d.ID] = d
	}
	primary := displays[0]
	initial := len(m.Displays) == 0
	for _, ws := range m.Workspaces {
		switch {
		case initial && ws.ID <= len(displays):
			ws.Display = displays[ws.ID-1].ID
		case byID[ws.Display] == nil:
			ws.Display = primary.ID
		}
		d := byID[ws.Display]
		d.Workspaces = append(d.Workspaces, ws.ID)
	}
	for _, d := range displays[1:] {
		if len(d.Workspaces) > 0 {
			continue
		}
		for i := len(primary.Workspaces) - 1; i >= 0; i-- {
			id := primary.Workspaces[i]
			if id == primary.Active || len(primary.Workspaces) == 1 {
				continue
			}
			primary.Workspaces = append(primary.Workspaces[:i:i], primary.Workspaces[i+1:]...)
			m.Workspace(id).Display = d.ID
			d.Workspaces = []int{id}
			break
		}
	}
	for _, d := range displays {
		if !containsInt(d.Workspaces, d.Active) && len(d.Workspaces) > 0 {
			d.Active = d.Workspaces[0]
		}
	}
	m.Displays = displays
	if byID[m.FocusedDisplay] == nil {
		m.FocusedDisplay = primary.ID
	}
	all := make([]int, 0, len(m.Workspaces))
	for _, ws := range m.Workspaces {
		all = append(all, ws.ID)
	}
	return all
}

// Validate checks the structural invariants of the model.
func (m *Model) Validate() error {
	var errs []error
	seen := make(map[WindowKey]int)
	for _, ws := range m.Workspaces {
		members := append(ws.Tree.Leaves(), ws.Floating...)
		for _, k := range members {
			if other, dup := seen[k]; dup {
				errs = append(errs, fmt.Errorf("window %s appears in workspace %d and %d", k, other, ws.ID))
				continue
			}
			seen[k] = ws.ID
			w := m.Windows[k]
			if w == nil {
				errs = append(errs, fmt.Errorf("workspace %d references unknown window %s", ws.ID, k))
				continue
			}
			if w.Workspace != ws.ID {
				errs = append(errs, fmt.Errorf("window %s owned by %d but placed in %d", k, w.Workspace, ws.ID))
			}
		}
		for _, k := range ws.Floating {
			if w := m.Windows[k]; w != nil && !w.Floating {
				errs = append(errs, fmt.Errorf("tiled window %s in floating set of %d", k, ws.ID))
			}
		}
	}
	for k, w := range m.Windows {
		if !w.Tileable() || w.Workspace == 0 {
			continue
		}
		ws := m.Workspace(w.Workspace)
		if ws == nil || !ws.Tree.Contains(k) {
			errs = append(errs, fmt.Errorf("tileable window %s missing from workspace %d tree", k, w.Workspace))
		}
	}
	return errors.Join(errs...)
}

func containsKey(keys []WindowKey, k WindowKey) bool {
	for _, existing := range keys {
		if existing == k {
			return true
		}
	}
	return false
}

func removeKey(keys []WindowKey, k WindowKey) []WindowKey {
	for i, existing := range keys {
		if existing == k {
			return append(keys[:i:i], keys[i+1:]...)
		}
	}
	return keys
}

func containsInt(values []int, v int) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

func removeInt(values []int, v int) []int {
	for i, existing := range values {
		if existing == v {
			return append(values[:i:i], values[i+1:]...)
		}
	}
	return values
}

func insertSorted(values []int, v int) []int {
	if containsInt(values, v) {
		return values
	}
	values = append(values, v)
	sort.Ints(values)
	return values
}

func sortKeys(keys []WindowKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PID != keys[j].PID {
			return keys[i].PID < keys[j].PID
		}
		return keys[i].WID < keys[j].WID
	})
}
