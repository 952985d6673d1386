package engine

import (
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/state"
)

// retile recomputes the frames of one workspace. Computed frames are stored
// on the windows; windows of an inactive workspace are parked instead of
// placed.
func (e *Engine) retile(id int) layout.Plan {
	var plan layout.Plan
	ws := e.model.Workspace(id)
	if ws == nil || e.model.Display(ws.Display) == nil {
		return plan
	}
	active := e.model.IsActive(ws)
	for _, t := range e.tiles(ws) {
		w := e.model.Window(t.Window)
		if w == nil {
			continue
		}
		w.Frame = t.Frame
		if active {
			plan.Add(t.Window, t.Frame)
		} else {
			plan.Add(t.Window, e.parkFrame(w, ws))
		}
	}
	e.trace("workspace.retiled", map[string]any{"workspace": id, "active": active, "placements": plan.Len()})
	return plan
}

// tiles computes the tiled frames of ws. A fullscreen window takes the
// whole usable frame of the display and nothing else is placed.
func (e *Engine) tiles(ws *state.Workspace) []layout.Tile {
	d := e.model.Display(ws.Display)
	if d == nil {
		return nil
	}
	visible := func(k layout.Key) bool {
		w := e.model.Window(k)
		return w != nil && !w.Hidden
	}
	if fs := ws.Fullscreen; !fs.IsZero() && ws.Tree.Contains(fs) && visible(fs) {
		return []layout.Tile{{Window: fs, Frame: d.Frame}}
	}
	return ws.Tree.Compute(d.Frame, e.gaps, visible)
}

// park moves w just past the bottom-right corner of the display owning ws.
func (e *Engine) park(w *state.Window, ws *state.Workspace, b *batch) {
	if w.Hidden {
		return
	}
	b.extra.Add(w.Key, e.parkFrame(w, ws))
}

func (e *Engine) parkFrame(w *state.Window, ws *state.Workspace) layout.Rect {
	d := e.model.Display(ws.Display)
	if d == nil {
		d = e.model.FocusedDisplayRef()
	}
	if d == nil {
		return w.Frame
	}
	return layout.Rect{
		X:      d.Frame.Right() - 1,
		Y:      d.Frame.Bottom() - 1,
		Width:  w.Frame.Width,
		Height: w.Frame.Height,
	}
}

// members returns the tiled and floating windows of ws.
func members(ws *state.Workspace) []layout.Key {
	return append(ws.Tree.Leaves(), ws.Floating...)
}
