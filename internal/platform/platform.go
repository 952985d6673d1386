// Package platform describes the window-server operations the engine relies
// on and provides the backends that implement them.
package platform

import (
	"context"
	"errors"

	"github.com/bobrwm/bobrwm/internal/layout"
)

// ErrWindowGone reports that the target window no longer exists.
var ErrWindowGone = errors.New("window gone")

// WindowInfo is a window reported by discovery.
type WindowInfo struct {
	PID   int32       `json:"pid"`
	WID   uint32      `json:"wid"`
	Frame layout.Rect `json:"frame"`
}

// Key returns the window identity.
func (w WindowInfo) Key() layout.Key { return layout.Key{PID: w.PID, WID: w.WID} }

// DisplayInfo is a display with its usable frame.
type DisplayInfo struct {
	ID    int         `json:"id"`
	Frame layout.Rect `json:"frame"`
}

// Platform is the set of native operations consumed by the engine. Every
// call is synchronous from the caller's point of view.
type Platform interface {
	DiscoverWindows(ctx context.Context) ([]WindowInfo, error)
	DisplayFrame(ctx context.Context) (layout.Rect, error)
	SetWindowFrame(ctx context.Context, pid int32, wid uint32, frame layout.Rect) error
	FocusWindow(ctx context.Context, pid int32, wid uint32) error
	// FocusedWindow returns the focused window of pid; ok is false when the
	// app has none.
	FocusedWindow(ctx context.Context, pid int32) (wid uint32, ok bool, err error)
	ShouldManageWindow(ctx context.Context, pid int32, wid uint32) (bool, error)
	IsWindowOnScreen(ctx context.Context, wid uint32) (bool, error)
	AppWindowIDs(ctx context.Context, pid int32) ([]uint32, error)
	ObserveApp(ctx context.Context, pid int32) error
	UnobserveApp(ctx context.Context, pid int32) error
	// AppBundleID returns "" when the app has no bundle identifier.
	AppBundleID(ctx context.Context, pid int32) (string, error)
}

// DisplayLister is implemented by backends that can enumerate more than one
// display.
type DisplayLister interface {
	Displays(ctx context.Context) ([]DisplayInfo, error)
}

// KeybindEntry is one binding as understood by a native keystroke
// interceptor. Mods uses the ALT=1 SHIFT=2 CMD=4 CTRL=8 bitmask and Action
// the event kind wire value.
type KeybindEntry struct {
	Keycode uint16 `json:"keycode"`
	Mods    uint8  `json:"mods"`
	Action  uint8  `json:"action"`
	Arg     int32  `json:"arg"`
}

// KeybindSink is implemented by backends that decide natively whether a
// keystroke is consumed. They receive every replacement of the table.
type KeybindSink interface {
	SetKeybinds(ctx context.Context, binds []KeybindEntry) error
}

// Displays returns every display known to p. Backends without
// DisplayLister report their single usable frame as display 1.
func Displays(ctx context.Context, p Platform) ([]DisplayInfo, error) {
	if lister, ok := p.(DisplayLister); ok {
		return lister.Displays(ctx)
	}
	frame, err := p.DisplayFrame(ctx)
	if err != nil {
		return nil, err
	}
	return []DisplayInfo{{ID: 1, Frame: frame}}, nil
}

var _ layout.Placer = Platform(nil)
