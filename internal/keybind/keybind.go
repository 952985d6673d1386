// Package keybind maps captured keystrokes onto engine hotkey events.
package keybind

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/bobrwm/bobrwm/internal/event"
)

// Binding ties a chord to an action.
type Binding struct {
	Keycode uint16
	Mods    Modifier
	Action  event.Kind
	Arg     int32
}

// Chord renders the binding's key combination.
func (b Binding) Chord() string { return FormatChord(b.Keycode, b.Mods) }

// Spec returns the textual form of the binding.
func (b Binding) Spec() Spec {
	return Spec{Key: b.Chord(), Action: b.Action.String(), Arg: b.Arg}
}

func (b Binding) String() string {
	if b.Arg != 0 {
		return fmt.Sprintf("%s -> %s %d", b.Chord(), b.Action, b.Arg)
	}
	return fmt.Sprintf("%s -> %s", b.Chord(), b.Action)
}

// Event builds the hotkey event the binding injects.
func (b Binding) Event() event.Event {
	return event.Hotkey(b.Action, b.Arg)
}

// Table is an ordered list of bindings. The first binding matching a chord
// wins.
type Table []Binding

// Lookup returns the first binding for keycode and mods.
func (t Table) Lookup(keycode uint16, mods Modifier) (Binding, bool) {
	for _, b := range t {
		if b.Keycode == keycode && b.Mods == mods {
			return b, true
		}
	}
	return Binding{}, false
}

// Duplicates returns the indexes of bindings shadowed by an earlier binding
// with the same chord.
func (t Table) Duplicates() []int {
	type chord struct {
		code uint16
		mods Modifier
	}
	seen := make(map[chord]struct{}, len(t))
	var out []int
	for i, b := range t {
		c := chord{b.Keycode, b.Mods}
		if _, ok := seen[c]; ok {
			out = append(out, i)
			continue
		}
		seen[c] = struct{}{}
	}
	return out
}

// Specs returns the textual form of every binding.
func (t Table) Specs() []Spec {
	out := make([]Spec, 0, len(t))
	for _, b := range t {
		out = append(out, b.Spec())
	}
	return out
}

// Spec is the configuration form of a binding.
type Spec struct {
	Key    string `yaml:"key" json:"key"`
	Action string `yaml:"action" json:"action"`
	Arg    int32  `yaml:"arg,omitempty" json:"arg,omitempty"`
}

// Compile parses one spec.
func (s Spec) Compile() (Binding, error) {
	code, mods, err := ParseChord(s.Key)
	if err != nil {
		return Binding{}, err
	}
	action, err := ParseAction(s.Action)
	if err != nil {
		return Binding{}, err
	}
	if err := ValidateArg(action, s.Arg); err != nil {
		return Binding{}, err
	}
	return Binding{Keycode: code, Mods: mods, Action: action, Arg: s.Arg}, nil
}

// Compile parses specs in order, reporting the first failure with its index.
func Compile(specs []Spec) (Table, error) {
	table := make(Table, 0, len(specs))
	for i, s := range specs {
		b, err := s.Compile()
		if err != nil {
			return nil, fmt.Errorf("keybind %d (%s): %w", i, s.Key, err)
		}
		table = append(table, b)
	}
	return table, nil
}

var actionAliases = map[string]event.Kind{
	"resize":      event.ResizeSplit,
	"retile":      event.RetileAll,
	"move-window": event.HotkeyMoveToWorkspace,
	"workspace":   event.HotkeyFocusWorkspace,
	"fullscreen":  event.HotkeyToggleFullscreen,
	"float":       event.HotkeyToggleFloat,
	"split":       event.HotkeyToggleSplit,
}

// ParseAction resolves an action name to a bindable event kind. Only user
// actions can be bound; OS notifications cannot.
func ParseAction(name string) (event.Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if k, ok := actionAliases[name]; ok {
		return k, nil
	}
	k, ok := event.ParseKind(name)
	if !ok || !(k.IsHotkey() || k == event.ResizeSplit || k == event.RetileAll) {
		return 0, fmt.Errorf("unknown action %q", name)
	}
	return k, nil
}

// ValidateArg checks the argument of a bindable action.
func ValidateArg(action event.Kind, arg int32) error {
	switch action {
	case event.HotkeyFocusWorkspace, event.HotkeyMoveToWorkspace:
		if arg <= 0 {
			return fmt.Errorf("%s requires a positive workspace argument", action)
		}
	case event.ResizeSplit:
		if arg == 0 || arg < -80 || arg > 80 {
			return fmt.Errorf("%s requires a percent delta in [-80, 80]", action)
		}
	}
	return nil
}

// Pusher receives events synthesised from keystrokes.
type Pusher interface {
	PushEvent(event.Event)
}

// Dispatcher resolves keystrokes against the active table. SetKeybinds and
// lookups may run on different goroutines; a lookup observes either the old
// or the new table, never a mix.
type Dispatcher struct {
	table atomic.Pointer[Table]
	sink  Pusher
}

// NewDispatcher creates a dispatcher feeding matches into sink.
func NewDispatcher(sink Pusher, table Table) *Dispatcher {
	d := &Dispatcher{sink: sink}
	d.SetKeybinds(table)
	return d
}

// SetKeybinds replaces the whole table.
func (d *Dispatcher) SetKeybinds(table Table) {
	cp := append(Table(nil), table...)
	d.table.Store(&cp)
}

// Keybinds returns a copy of the active table.
func (d *Dispatcher) Keybinds() Table {
	return append(Table(nil), d.current()...)
}

func (d *Dispatcher) current() Table {
	if t := d.table.Load(); t != nil {
		return *t
	}
	return nil
}

// Lookup resolves a keystroke against the active table.
func (d *Dispatcher) Lookup(keycode uint16, mods Modifier) (Binding, bool) {
	return d.current().Lookup(keycode, mods)
}

// HandleKey enqueues the bound hotkey event and reports whether the
// keystroke was consumed. Unbound keystrokes pass through to the OS.
func (d *Dispatcher) HandleKey(keycode uint16, mods Modifier) bool {
	b, ok := d.Lookup(keycode, mods)
	if !ok {
		return false
	}
	if d.sink != nil {
		d.sink.PushEvent(b.Event())
	}
	return true
}
