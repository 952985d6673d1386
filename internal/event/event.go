// Package event defines the records exchanged between producers and the
// engine loop, and the queue that carries them.
package event

import (
	"fmt"
	"strings"

	"github.com/bobrwm/bobrwm/internal/layout"
)

// Kind enumerates every event the engine understands. Numeric values match
// the native shim's wire format.
type Kind uint8

const (
	WindowCreated          Kind = 1
	WindowDestroyed        Kind = 2
	WindowFocused          Kind = 3
	WindowMoved            Kind = 4
	WindowResized          Kind = 5
	WindowMinimized        Kind = 6
	WindowDeminimized      Kind = 7
	AppLaunched            Kind = 8
	AppTerminated          Kind = 9
	SpaceChanged           Kind = 10
	DisplayChanged         Kind = 11
	FocusedWindowChanged   Kind = 12
	HotkeyFocusWorkspace   Kind = 20
	HotkeyMoveToWorkspace  Kind = 21
	HotkeyFocusLeft        Kind = 22
	HotkeyFocusRight       Kind = 23
	HotkeyFocusUp          Kind = 24
	HotkeyFocusDown        Kind = 25
	HotkeyToggleSplit      Kind = 26
	HotkeyToggleFullscreen Kind = 27
	HotkeyToggleFloat      Kind = 28

	// ResizeSplit adjusts the focused leaf's parent ratio by Arg percent.
	ResizeSplit Kind = 40
	// RetileAll forces every workspace to be recomputed.
	RetileAll Kind = 41
)

var kindNames = map[Kind]string{
	WindowCreated:          "window-created",
	WindowDestroyed:        "window-destroyed",
	WindowFocused:          "window-focused",
	WindowMoved:            "window-moved",
	WindowResized:          "window-resized",
	WindowMinimized:        "window-minimized",
	WindowDeminimized:      "window-deminimized",
	AppLaunched:            "app-launched",
	AppTerminated:          "app-terminated",
	SpaceChanged:           "space-changed",
	DisplayChanged:         "display-changed",
	FocusedWindowChanged:   "focused-window-changed",
	HotkeyFocusWorkspace:   "focus-workspace",
	HotkeyMoveToWorkspace:  "move-to-workspace",
	HotkeyFocusLeft:        "focus-left",
	HotkeyFocusRight:       "focus-right",
	HotkeyFocusUp:          "focus-up",
	HotkeyFocusDown:        "focus-down",
	HotkeyToggleSplit:      "toggle-split",
	HotkeyToggleFullscreen: "toggle-fullscreen",
	HotkeyToggleFloat:      "toggle-float",
	ResizeSplit:            "resize-split",
	RetileAll:              "retile-all",
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		out[name] = k
		out[strings.ReplaceAll(name, "-", "")] = k
	}
	return out
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind resolves a kind by name. Hyphens are optional, so both
// "window-created" and "windowcreated" are accepted.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// Kinds returns every known kind in ascending order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := Kind(0); k < 255; k++ {
		if k.Valid() {
			out = append(out, k)
		}
	}
	return out
}

// IsWindowLifecycle reports whether k references a specific window and
// therefore creates it when unknown.
func (k Kind) IsWindowLifecycle() bool {
	switch k {
	case WindowCreated, WindowFocused, WindowMoved, WindowResized,
		WindowMinimized, WindowDeminimized:
		return true
	default:
		return false
	}
}

// IsHotkey reports whether k is a user action rather than an OS notification.
func (k Kind) IsHotkey() bool {
	return k >= HotkeyFocusWorkspace && k <= HotkeyToggleFloat
}

// Event is an immutable notification or command for the engine loop.
type Event struct {
	Kind Kind
	PID  int32
	WID  uint32
	// Arg carries the hotkey argument, e.g. the target workspace index.
	Arg int32
	// Frame is set on moved/resized notifications and discovery.
	Frame    layout.Rect
	HasFrame bool
}

// Window returns the window key referenced by the event.
func (e Event) Window() layout.Key {
	return layout.Key{PID: e.PID, WID: e.WID}
}

func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.PID != 0 || e.WID != 0 {
		fmt.Fprintf(&b, " pid=%d wid=%d", e.PID, e.WID)
	}
	if e.Arg != 0 {
		fmt.Fprintf(&b, " arg=%d", e.Arg)
	}
	if e.HasFrame {
		fmt.Fprintf(&b, " frame=%.0f,%.0f %.0fx%.0f", e.Frame.X, e.Frame.Y, e.Frame.Width, e.Frame.Height)
	}
	return b.String()
}

// Hotkey builds a user action event.
func Hotkey(kind Kind, arg int32) Event {
	return Event{Kind: kind, Arg: arg}
}

// ForWindow builds a window-scoped notification.
func ForWindow(kind Kind, pid int32, wid uint32) Event {
	return Event{Kind: kind, PID: pid, WID: wid}
}

// WithFrame returns a copy of e carrying frame.
func (e Event) WithFrame(frame layout.Rect) Event {
	e.Frame = frame
	e.HasFrame = true
	return e
}
