package state

import (
	"sort"

	"github.com/bobrwm/bobrwm/internal/layout"
)

// View is a detached, serialisable copy of the model.
type View struct {
	Windows        []WindowView    `json:"windows" yaml:"windows"`
	Workspaces     []WorkspaceView `json:"workspaces" yaml:"workspaces"`
	Displays       []DisplayView   `json:"displays" yaml:"displays"`
	FocusedDisplay int             `json:"focusedDisplay" yaml:"focusedDisplay"`
	FocusedWindow  *WindowKey      `json:"focusedWindow,omitempty" yaml:"focusedWindow,omitempty"`
}

// WindowView describes one window.
type WindowView struct {
	PID       int32       `json:"pid" yaml:"pid"`
	WID       uint32      `json:"wid" yaml:"wid"`
	BundleID  string      `json:"bundleId,omitempty" yaml:"bundleId,omitempty"`
	Frame     layout.Rect `json:"frame" yaml:"frame"`
	Workspace int         `json:"workspace" yaml:"workspace"`
	Floating  bool        `json:"floating" yaml:"floating"`
	OnScreen  bool        `json:"onScreen" yaml:"onScreen"`
	Hidden    bool        `json:"hidden" yaml:"hidden"`
	Managed   bool        `json:"managed" yaml:"managed"`
}

// Key returns the window identity.
func (w WindowView) Key() WindowKey { return WindowKey{PID: w.PID, WID: w.WID} }

// WorkspaceView describes one workspace.
type WorkspaceView struct {
	ID         int         `json:"id" yaml:"id"`
	Display    int         `json:"display" yaml:"display"`
	Active     bool        `json:"active" yaml:"active"`
	Tiled      []WindowKey `json:"tiled" yaml:"tiled"`
	Floating   []WindowKey `json:"floating" yaml:"floating"`
	Focused    *WindowKey  `json:"focused,omitempty" yaml:"focused,omitempty"`
	Fullscreen *WindowKey  `json:"fullscreen,omitempty" yaml:"fullscreen,omitempty"`
	Layout     *NodeView   `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// NodeView mirrors a tiling tree node.
type NodeView struct {
	Window      *WindowKey `json:"window,omitempty" yaml:"window,omitempty"`
	Orientation string     `json:"orientation,omitempty" yaml:"orientation,omitempty"`
	Ratio       float64    `json:"ratio,omitempty" yaml:"ratio,omitempty"`
	Children    []NodeView `json:"children,omitempty" yaml:"children,omitempty"`
}

// DisplayView describes one display.
type DisplayView struct {
	ID         int         `json:"id" yaml:"id"`
	Frame      layout.Rect `json:"frame" yaml:"frame"`
	Active     int         `json:"active" yaml:"active"`
	Workspaces []int       `json:"workspaces" yaml:"workspaces"`
}

// Window finds a window in the view.
func (v View) Window(k WindowKey) (WindowView, bool) {
	for _, w := range v.Windows {
		if w.Key() == k {
			return w, true
		}
	}
	return WindowView{}, false
}

// Workspace finds a workspace in the view.
func (v View) Workspace(id int) (WorkspaceView, bool) {
	for _, ws := range v.Workspaces {
		if ws.ID == id {
			return ws, true
		}
	}
	return WorkspaceView{}, false
}

// View copies the model. The result shares no memory with m.
func (m *Model) View() View {
	v := View{FocusedDisplay: m.FocusedDisplay}
	keys := make([]WindowKey, 0, len(m.Windows))
	for k := range m.Windows {
		keys = append(keys, k)
	}
	sortKeys(keys)
	for _, k := range keys {
		w := m.Windows[k]
		wv := WindowView{
			PID:       k.PID,
			WID:       k.WID,
			Frame:     w.Frame,
			Workspace: w.Workspace,
			Floating:  w.Floating,
			OnScreen:  w.OnScreen,
			Hidden:    w.Hidden,
			Managed:   w.Managed,
		}
		if app := m.Apps[k.PID]; app != nil {
			wv.BundleID = app.BundleID
		}
		v.Windows = append(v.Windows, wv)
	}
	for _, ws := range m.Workspaces {
		v.Workspaces = append(v.Workspaces, WorkspaceView{
			ID:         ws.ID,
			Display:    ws.Display,
			Active:     m.IsActive(ws),
			Tiled:      ws.Tree.Leaves(),
			Floating:   append([]WindowKey(nil), ws.Floating...),
			Focused:    keyPtr(ws.Focused),
			Fullscreen: keyPtr(ws.Fullscreen),
			Layout:     nodeView(ws.Tree.Root),
		})
	}
	for _, d := range m.Displays {
		ids := append([]int(nil), d.Workspaces...)
		sort.Ints(ids)
		v.Displays = append(v.Displays, DisplayView{
			ID:         d.ID,
			Frame:      d.Frame,
			Active:     d.Active,
			Workspaces: ids,
		})
	}
	if k, ok := m.FocusedWindow(); ok {
		v.FocusedWindow = &k
	}
	return v
}

func keyPtr(k WindowKey) *WindowKey {
	if k.IsZero() {
		return nil
	}
	return &k
}

func nodeView(n *layout.Node) *NodeView {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		k := n.Window
		return &NodeView{Window: &k}
	}
	return &NodeView{
		Orientation: n.Orientation.String(),
		Ratio:       n.Ratio,
		Children:    []NodeView{*nodeView(n.Children[0]), *nodeView(n.Children[1])},
	}
}
