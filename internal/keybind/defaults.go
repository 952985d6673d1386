package keybind

import "strconv"

// DefaultSpecs returns the bindings used when the configuration defines
// none: alt+N focuses workspace N, alt+shift+N moves the focused window
// there, alt+h/j/k/l moves focus.
func DefaultSpecs(workspaces int) []Spec {
	if workspaces > 9 {
		workspaces = 9
	}
	var specs []Spec
	for i := 1; i <= workspaces; i++ {
		n := strconv.Itoa(i)
		specs = append(specs,
			Spec{Key: "alt+" + n, Action: "focus-workspace", Arg: int32(i)},
			Spec{Key: "alt+shift+" + n, Action: "move-to-workspace", Arg: int32(i)},
		)
	}
	return append(specs,
		Spec{Key: "alt+h", Action: "focus-left"},
		Spec{Key: "alt+j", Action: "focus-down"},
		Spec{Key: "alt+k", Action: "focus-up"},
		Spec{Key: "alt+l", Action: "focus-right"},
		Spec{Key: "alt+e", Action: "toggle-split"},
		Spec{Key: "alt+f", Action: "toggle-fullscreen"},
		Spec{Key: "alt+shift+space", Action: "toggle-float"},
		Spec{Key: "alt+shift+equal", Action: "resize-split", Arg: 5},
		Spec{Key: "alt+shift+minus", Action: "resize-split", Arg: -5},
		Spec{Key: "alt+shift+r", Action: "retile-all"},
	)
}
