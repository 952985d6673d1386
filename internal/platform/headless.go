package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bobrwm/bobrwm/internal/layout"
)

// HeadlessWindow configures a window on the headless backend.
type HeadlessWindow struct {
	PID      int32
	WID      uint32
	Frame    layout.Rect
	Managed  bool
	OnScreen bool
}

type headlessApp struct {
	bundleID string
	focused  uint32
	observed bool
}

// Headless is an in-memory window server. It records every frame and focus
// request so callers can assert on the effect of a retile.
type Headless struct {
	mu       sync.Mutex
	displays []DisplayInfo
	windows  map[layout.Key]*HeadlessWindow
	apps     map[int32]*headlessApp

	placements int
	failures   map[layout.Key]error
	lastFocus  layout.Key
	keybinds   []KeybindEntry
}

// NewHeadless returns a backend with one display of the given usable frame.
func NewHeadless(frame layout.Rect) *Headless {
	return &Headless{
		displays: []DisplayInfo{{ID: 1, Frame: frame}},
		windows:  make(map[layout.Key]*HeadlessWindow),
		apps:     make(map[int32]*headlessApp),
		failures: make(map[layout.Key]error),
	}
}

// SetDisplays replaces the display list.
func (h *Headless) SetDisplays(displays ...DisplayInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.displays = append([]DisplayInfo(nil), displays...)
}

// AddApp registers a running application.
func (h *Headless) AddApp(pid int32, bundleID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.app(pid).bundleID = bundleID
}

// AddWindow registers a window, creating its app when needed.
func (h *Headless) AddWindow(w HeadlessWindow) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := w
	h.windows[layout.Key{PID: w.PID, WID: w.WID}] = &cp
	h.app(w.PID)
}

// RemoveWindow forgets a window.
func (h *Headless) RemoveWindow(pid int32, wid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, layout.Key{PID: pid, WID: wid})
}

// RemoveApp forgets an app and its windows.
func (h *Headless) RemoveApp(pid int32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.apps, pid)
	for k := range h.windows {
		if k.PID == pid {
			delete(h.windows, k)
		}
	}
}

// SetOnScreen toggles whether a window is visible on screen.
func (h *Headless) SetOnScreen(pid int32, wid uint32, onScreen bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w := h.windows[layout.Key{PID: pid, WID: wid}]; w != nil {
		w.OnScreen = onScreen
	}
}

// SetFocused records the focused window of pid as reported by the OS.
func (h *Headless) SetFocused(pid int32, wid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.app(pid).focused = wid
}

// FailPlacements makes SetWindowFrame fail for the window until cleared with
// a nil error.
func (h *Headless) FailPlacements(pid int32, wid uint32, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := layout.Key{PID: pid, WID: wid}
	if err == nil {
		delete(h.failures, k)
		return
	}
	h.failures[k] = err
}

// Frame returns the current frame of a window.
func (h *Headless) Frame(pid int32, wid uint32) (layout.Rect, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := h.windows[layout.Key{PID: pid, WID: wid}]
	if w == nil {
		return layout.Rect{}, false
	}
	return w.Frame, true
}

// Placements reports how many successful SetWindowFrame calls were made.
func (h *Headless) Placements() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.placements
}

// LastFocus returns the window most recently passed to FocusWindow.
func (h *Headless) LastFocus() layout.Key {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastFocus
}

// Observed reports whether ObserveApp is in effect for pid.
func (h *Headless) Observed(pid int32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	app := h.apps[pid]
	return app != nil && app.observed
}

func (h *Headless) app(pid int32) *headlessApp {
	app := h.apps[pid]
	if app == nil {
		app = &headlessApp{}
		h.apps[pid] = app
	}
	return app
}

func (h *Headless) DiscoverWindows(context.Context) ([]WindowInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]WindowInfo, 0, len(h.windows))
	for k, w := range h.windows {
		out = append(out, WindowInfo{PID: k.PID, WID: k.WID, Frame: w.Frame})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PID != out[j].PID {
			return out[i].PID < out[j].PID
		}
		return out[i].WID < out[j].WID
	})
	return out, nil
}

func (h *Headless) DisplayFrame(context.Context) (layout.Rect, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.displays) == 0 {
		return layout.Rect{}, fmt.Errorf("no displays")
	}
	return h.displays[0].Frame, nil
}

func (h *Headless) Displays(context.Context) ([]DisplayInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]DisplayInfo(nil), h.displays...), nil
}

func (h *Headless) SetWindowFrame(_ context.Context, pid int32, wid uint32, frame layout.Rect) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := layout.Key{PID: pid, WID: wid}
	if err := h.failures[k]; err != nil {
		return err
	}
	w := h.windows[k]
	if w == nil {
		return ErrWindowGone
	}
	w.Frame = frame
	h.placements++
	return nil
}

func (h *Headless) FocusWindow(_ context.Context, pid int32, wid uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.windows[layout.Key{PID: pid, WID: wid}] == nil {
		return ErrWindowGone
	}
	h.app(pid).focused = wid
	h.lastFocus = layout.Key{PID: pid, WID: wid}
	return nil
}

func (h *Headless) FocusedWindow(_ context.Context, pid int32) (uint32, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	app := h.apps[pid]
	if app == nil || app.focused == 0 {
		return 0, false, nil
	}
	return app.focused, true, nil
}

func (h *Headless) ShouldManageWindow(_ context.Context, pid int32, wid uint32) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := h.windows[layout.Key{PID: pid, WID: wid}]
	return w != nil && w.Managed, nil
}

func (h *Headless) IsWindowOnScreen(_ context.Context, wid uint32) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k, w := range h.windows {
		if k.WID == wid {
			return w.OnScreen, nil
		}
	}
	return false, nil
}

func (h *Headless) AppWindowIDs(_ context.Context, pid int32) ([]uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []uint32
	for k := range h.windows {
		if k.PID == pid {
			out = append(out, k.WID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (h *Headless) ObserveApp(_ context.Context, pid int32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.app(pid).observed = true
	return nil
}

func (h *Headless) UnobserveApp(_ context.Context, pid int32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if app := h.apps[pid]; app != nil {
		app.observed = false
	}
	return nil
}

func (h *Headless) AppBundleID(_ context.Context, pid int32) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if app := h.apps[pid]; app != nil {
		return app.bundleID, nil
	}
	return "", nil
}

func (h *Headless) SetKeybinds(_ context.Context, binds []KeybindEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keybinds = append([]KeybindEntry(nil), binds...)
	return nil
}

// InstalledKeybinds returns the table most recently passed to SetKeybinds.
func (h *Headless) InstalledKeybinds() []KeybindEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]KeybindEntry(nil), h.keybinds...)
}

var (
	_ Platform      = (*Headless)(nil)
	_ DisplayLister = (*Headless)(nil)
	_ KeybindSink   = (*Headless)(nil)
)
