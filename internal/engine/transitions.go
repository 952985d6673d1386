package engine

import (
	"context"

	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/platform"
	"github.com/bobrwm/bobrwm/internal/state"
)

// apply runs the transition for one event. Callers hold e.mu.
func (e *Engine) apply(ctx context.Context, ev event.Event, b *batch) {
	k := ev.Window()
	switch ev.Kind {
	case event.WindowCreated:
		e.createWindow(ctx, k, ev, b)
	case event.WindowDestroyed:
		id, ok := e.model.RemoveWindow(k)
		if !ok {
			e.logger.Debugf("destroy of unknown window %s ignored", k)
			return
		}
		b.retile(id)
	case event.WindowFocused:
		e.focusWindow(ctx, k, ev, b)
	case event.FocusedWindowChanged:
		if k.WID == 0 {
			qctx, cancel := e.queryContext(ctx)
			wid, ok, err := e.platform.FocusedWindow(qctx, k.PID)
			cancel()
			if err != nil || !ok {
				if err != nil {
					e.logger.Debugf("focused window of %d: %v", k.PID, err)
				}
				return
			}
			k.WID = wid
		}
		e.focusWindow(ctx, k, ev, b)
	case event.WindowMoved, event.WindowResized:
		w := e.ensure(ctx, k, ev, b)
		if w == nil || !ev.HasFrame {
			return
		}
		// Tiled windows snap back on the next retile. Parked windows keep
		// their explicit frame; the move is the echo of parking them.
		ws := e.model.Workspace(w.Workspace)
		if !w.Floating || ws == nil || !e.model.IsActive(ws) {
			return
		}
		if park := e.parkFrame(w, ws); ev.Frame.X == park.X && ev.Frame.Y == park.Y {
			e.logger.Debugf("ignoring parked position reported for %s", k)
			return
		}
		w.Frame = ev.Frame
	case event.WindowMinimized, event.WindowDeminimized:
		w := e.ensure(ctx, k, ev, b)
		if w == nil {
			return
		}
		hidden := ev.Kind == event.WindowMinimized
		if w.Hidden != hidden {
			w.Hidden = hidden
			b.retile(w.Workspace)
		}
	case event.AppLaunched:
		e.launchApp(ctx, ev.PID, b)
	case event.AppTerminated:
		for _, wk := range e.model.WindowsOf(ev.PID) {
			if id, ok := e.model.RemoveWindow(wk); ok {
				b.retile(id)
			}
		}
		delete(e.model.Apps, ev.PID)
		qctx, cancel := e.queryContext(ctx)
		err := e.platform.UnobserveApp(qctx, ev.PID)
		cancel()
		if err != nil {
			e.logger.Debugf("unobserve app %d: %v", ev.PID, err)
		}
	case event.SpaceChanged, event.DisplayChanged:
		e.rebuildDisplays(ctx, b)
	case event.HotkeyFocusWorkspace:
		e.switchWorkspace(int(ev.Arg), b)
	case event.HotkeyMoveToWorkspace:
		e.moveFocused(int(ev.Arg), b)
	case event.HotkeyFocusLeft, event.HotkeyFocusRight, event.HotkeyFocusUp, event.HotkeyFocusDown:
		e.focusDirection(directionOf(ev.Kind), b)
	case event.HotkeyToggleSplit:
		e.withFocused(func(w *state.Window, ws *state.Workspace) {
			if ws.Tree.ToggleSplit(w.Key) {
				b.retile(ws.ID)
			}
		})
	case event.HotkeyToggleFullscreen:
		e.withFocused(func(w *state.Window, ws *state.Workspace) {
			switch {
			case ws.Fullscreen == w.Key:
				ws.Fullscreen = layout.Key{}
			case w.Tileable():
				ws.Fullscreen = w.Key
			default:
				return
			}
			b.retile(ws.ID)
		})
	case event.HotkeyToggleFloat:
		e.withFocused(func(w *state.Window, ws *state.Workspace) {
			e.model.Float(w, !w.Floating)
			b.retile(ws.ID)
		})
	case event.ResizeSplit:
		e.withFocused(func(w *state.Window, ws *state.Workspace) {
			if ws.Tree.AdjustRatio(w.Key, float64(ev.Arg)/100) {
				b.retile(ws.ID)
			}
		})
	case event.RetileAll:
		for _, ws := range e.model.Workspaces {
			b.retile(ws.ID)
		}
	default:
		e.logger.Warnf("unhandled event kind %d", ev.Kind)
	}
}

// ensure returns the window for k, creating it from scratch when a
// lifecycle event arrives for a window the engine has never seen.
func (e *Engine) ensure(ctx context.Context, k layout.Key, ev event.Event, b *batch) *state.Window {
	if w := e.model.Window(k); w != nil {
		return w
	}
	if k.WID == 0 {
		return nil
	}
	e.createWindow(ctx, k, ev, b)
	return e.model.Window(k)
}

func (e *Engine) createWindow(ctx context.Context, k layout.Key, ev event.Event, b *batch) {
	if k.WID == 0 {
		e.logger.Debugf("window event without window id from pid %d ignored", k.PID)
		return
	}
	w, created := e.model.EnsureWindow(k)
	if ev.HasFrame {
		w.Frame = ev.Frame
	}
	qctx, cancel := e.queryContext(ctx)
	defer cancel()
	managed, err := e.platform.ShouldManageWindow(qctx, k.PID, k.WID)
	if err != nil {
		e.logger.Debugf("should manage %s: %v", k, err)
		managed = false
	}
	onScreen, err := e.platform.IsWindowOnScreen(qctx, k.WID)
	if err != nil {
		e.logger.Debugf("on screen %s: %v", k, err)
		onScreen = false
	}
	w.Managed = managed
	w.OnScreen = onScreen

	if !created && w.Workspace != 0 {
		if e.model.Retrack(w) {
			b.retile(w.Workspace)
		}
		return
	}
	if !managed {
		e.trace("window.unmanaged", map[string]any{"window": k.String()})
		return
	}

	target := 0
	if ws := e.model.ActiveWorkspace(); ws != nil {
		target = ws.ID
	}
	decision := e.rules.Evaluate(e.bundleID(ctx, k.PID))
	if decision.Matched() {
		w.Floating = decision.Float
		if decision.Workspace > 0 && e.model.Workspace(decision.Workspace) != nil {
			target = decision.Workspace
		}
		e.trace("window.rules", map[string]any{"window": k.String(), "rules": decision.Rules})
	}
	if err := e.model.Attach(w, target); err != nil {
		e.logger.Warnf("attach window %s: %v", k, err)
		return
	}
	ws := e.model.Workspace(target)
	if w.Floating && !e.model.IsActive(ws) {
		e.park(w, ws, b)
	}
	b.retile(target)
}

func (e *Engine) focusWindow(ctx context.Context, k layout.Key, ev event.Event, b *batch) {
	w := e.ensure(ctx, k, ev, b)
	if w == nil {
		return
	}
	// Background tabs become visible when they gain focus.
	if w.Managed && !w.OnScreen {
		qctx, cancel := e.queryContext(ctx)
		onScreen, err := e.platform.IsWindowOnScreen(qctx, k.WID)
		cancel()
		if err == nil && onScreen {
			w.OnScreen = true
			if e.model.Retrack(w) {
				b.retile(w.Workspace)
			}
		}
	}
	ws := e.model.Workspace(w.Workspace)
	if ws == nil {
		return
	}
	if !e.model.IsActive(ws) {
		e.switchWorkspace(ws.ID, b)
	}
	e.model.SetFocus(k)
}

// launchApp starts observing pid and tracks the windows it opened before
// observation took effect, background tabs included.
func (e *Engine) launchApp(ctx context.Context, pid int32, b *batch) {
	e.bundleID(ctx, pid)
	qctx, cancel := e.queryContext(ctx)
	err := e.platform.ObserveApp(qctx, pid)
	cancel()
	if err != nil {
		e.logger.Warnf("observe app %d: %v", pid, err)
	}

	qctx, cancel = e.queryContext(ctx)
	wids, err := e.platform.AppWindowIDs(qctx, pid)
	cancel()
	if err != nil {
		e.logger.Debugf("windows of app %d: %v", pid, err)
		return
	}
	for _, wid := range wids {
		k := layout.Key{PID: pid, WID: wid}
		if e.model.Window(k) != nil {
			continue
		}
		e.createWindow(ctx, k, event.ForWindow(event.WindowCreated, pid, wid), b)
	}
}

// bundleID returns the cached bundle identifier for pid, querying the
// platform on first use.
func (e *Engine) bundleID(ctx context.Context, pid int32) string {
	if app := e.model.Apps[pid]; app != nil {
		return app.BundleID
	}
	qctx, cancel := e.queryContext(ctx)
	defer cancel()
	id, err := e.platform.AppBundleID(qctx, pid)
	if err != nil {
		e.logger.Debugf("bundle id of %d: %v", pid, err)
		return ""
	}
	e.model.Apps[pid] = &state.App{PID: pid, BundleID: id}
	return id
}

func (e *Engine) rebuildDisplays(ctx context.Context, b *batch) {
	qctx, cancel := e.queryContext(ctx)
	displays, err := platform.Displays(qctx, e.platform)
	cancel()
	if err != nil {
		e.logger.Warnf("list displays: %v", err)
		return
	}
	b.retile(e.model.RebuildDisplays(toDisplayFrames(displays))...)
}

// switchWorkspace activates id on the focused display. Stored frames are
// restored without recomputing the tree; the previous workspace is parked.
func (e *Engine) switchWorkspace(id int, b *batch) {
	ws := e.model.Workspace(id)
	if ws == nil {
		e.logger.Warnf("focus workspace %d: no such workspace", id)
		return
	}
	before := ws.Display
	prev, err := e.model.ActivateWorkspace(id)
	if err != nil {
		e.logger.Warnf("focus workspace %d: %v", id, err)
		return
	}
	if prev != id {
		if old := e.model.Workspace(prev); old != nil {
			for _, k := range members(old) {
				if w := e.model.Window(k); w != nil {
					e.park(w, old, b)
				}
			}
		}
		if ws.Display != before {
			// Frames were computed for another display.
			b.retile(id)
		} else {
			for _, k := range members(ws) {
				if w := e.model.Window(k); w != nil && !w.Hidden {
					b.extra.Add(k, w.Frame)
				}
			}
		}
	}
	b.focusOn(ws.Focused)
}

func (e *Engine) moveFocused(id int, b *batch) {
	target := e.model.Workspace(id)
	if target == nil {
		e.logger.Warnf("move to workspace %d: no such workspace", id)
		return
	}
	e.withFocused(func(w *state.Window, ws *state.Workspace) {
		if ws.ID == id {
			return
		}
		if err := e.model.Attach(w, id); err != nil {
			e.logger.Warnf("move window %s: %v", w.Key, err)
			return
		}
		target.Focused = w.Key
		if w.Floating && !e.model.IsActive(target) {
			e.park(w, target, b)
		}
		b.retile(ws.ID, id)
		if e.model.IsActive(ws) {
			b.focusOn(ws.Focused)
		}
	})
}

func (e *Engine) focusDirection(d layout.Direction, b *batch) {
	e.withFocused(func(w *state.Window, ws *state.Workspace) {
		if w.Floating {
			return
		}
		next, ok := layout.Neighbor(e.tiles(ws), w.Key, d)
		if !ok {
			return
		}
		e.model.SetFocus(next)
		b.focusOn(next)
	})
}

// withFocused calls fn with the focused window of the active workspace.
func (e *Engine) withFocused(fn func(*state.Window, *state.Workspace)) {
	k, ok := e.model.FocusedWindow()
	if !ok {
		e.logger.Debugf("no focused window")
		return
	}
	w := e.model.Window(k)
	if w == nil {
		return
	}
	ws := e.model.Workspace(w.Workspace)
	if ws == nil {
		return
	}
	fn(w, ws)
}

func directionOf(k event.Kind) layout.Direction {
	switch k {
	case event.HotkeyFocusLeft:
		return layout.DirLeft
	case event.HotkeyFocusRight:
		return layout.DirRight
	case event.HotkeyFocusUp:
		return layout.DirUp
	default:
		return layout.DirDown
	}
}
