package keybind

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Modifier is the modifier bitmask reported by the keystroke interceptor.
type Modifier uint8

const (
	ModAlt Modifier = 1 << iota
	ModShift
	ModCmd
	ModCtrl
)

var modifierNames = []struct {
	mod   Modifier
	names []string
}{
	{ModCtrl, []string{"ctrl", "control"}},
	{ModAlt, []string{"alt", "opt", "option"}},
	{ModShift, []string{"shift"}},
	{ModCmd, []string{"cmd", "command", "super"}},
}

func (m Modifier) String() string {
	var parts []string
	for _, entry := range modifierNames {
		if m&entry.mod != 0 {
			parts = append(parts, entry.names[0])
		}
	}
	return strings.Join(parts, "+")
}

// ANSI virtual keycodes.
var keycodes = map[string]uint16{
	"a": 0, "s": 1, "d": 2, "f": 3, "h": 4, "g": 5, "z": 6, "x": 7, "c": 8, "v": 9,
	"b": 11, "q": 12, "w": 13, "e": 14, "r": 15, "y": 16, "t": 17,
	"1": 18, "2": 19, "3": 20, "4": 21, "6": 22, "5": 23, "equal": 24, "9": 25,
	"7": 26, "minus": 27, "8": 28, "0": 29, "]": 30, "o": 31, "u": 32, "[": 33,
	"i": 34, "p": 35, "return": 36, "l": 37, "j": 38, "quote": 39, "k": 40,
	"semicolon": 41, "backslash": 42, "comma": 43, "slash": 44, "n": 45, "m": 46,
	"period": 47, "tab": 48, "space": 49, "grave": 50, "delete": 51, "escape": 53,
	"left": 123, "right": 124, "down": 125, "up": 126,
}

var keyAliases = map[string]string{
	"=": "equal", "-": "minus", "enter": "return", "'": "quote", ";": "semicolon",
	"\\": "backslash", ",": "comma", "/": "slash", ".": "period", "`": "grave",
	"backspace": "delete", "esc": "escape", "rightbracket": "]", "leftbracket": "[",
}

var keyNames = func() map[uint16]string {
	out := make(map[uint16]string, len(keycodes))
	for name, code := range keycodes {
		out[code] = name
	}
	return out
}()

// KeyName returns the symbolic name of a keycode, or its hex form.
func KeyName(code uint16) string {
	if name, ok := keyNames[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", code)
}

// KnownKeys lists every named key in keycode order.
func KnownKeys() []string {
	names := make([]string, 0, len(keycodes))
	for name := range keycodes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return keycodes[names[i]] < keycodes[names[j]] })
	return names
}

// ParseChord parses chords such as "alt+shift+1" or "cmd+0x12". The final
// component is the key; everything before it must be a modifier.
func ParseChord(chord string) (uint16, Modifier, error) {
	chord = strings.ToLower(strings.TrimSpace(chord))
	if chord == "" {
		return 0, 0, fmt.Errorf("empty chord")
	}
	parts := strings.Split(chord, "+")
	var mods Modifier
	for _, part := range parts[:len(parts)-1] {
		mod, ok := lookupModifier(strings.TrimSpace(part))
		if !ok {
			return 0, 0, fmt.Errorf("unknown modifier %q", part)
		}
		mods |= mod
	}
	code, err := parseKey(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return 0, 0, err
	}
	return code, mods, nil
}

// FormatChord renders a keycode and modifiers back into chord syntax.
func FormatChord(code uint16, mods Modifier) string {
	if mods == 0 {
		return KeyName(code)
	}
	return mods.String() + "+" + KeyName(code)
}

func lookupModifier(name string) (Modifier, bool) {
	for _, entry := range modifierNames {
		for _, candidate := range entry.names {
			if candidate == name {
				return entry.mod, true
			}
		}
	}
	return 0, false
}

func parseKey(name string) (uint16, error) {
	if name == "" {
		return 0, fmt.Errorf("missing key")
	}
	if alias, ok := keyAliases[name]; ok {
		name = alias
	}
	if code, ok := keycodes[name]; ok {
		return code, nil
	}
	if strings.HasPrefix(name, "0x") {
		v, err := strconv.ParseUint(name[2:], 16, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid keycode %q", name)
		}
		return uint16(v), nil
	}
	if len(name) > 1 {
		if v, err := strconv.ParseUint(name, 10, 16); err == nil {
			return uint16(v), nil
		}
	}
	return 0, fmt.Errorf("unknown key %q", name)
}
