package control

import (
	"errors"
	"os"
	"path/filepath"
)

const (
	// SocketFileName is the filename of the control socket within the runtime dir.
	SocketFileName = "control.sock"

	// Command names supported by the control protocol.
	CmdPing                  = "ping"
	CmdListWindows           = "list-windows"
	CmdListWorkspaces        = "list-workspaces"
	CmdListDisplays          = "list-displays"
	CmdFocusWorkspace        = "focus-workspace"
	CmdMoveWindowToWorkspace = "move-window-to-workspace"
	CmdFocus                 = "focus"
	CmdToggleSplit           = "toggle-split"
	CmdToggleFullscreen      = "toggle-fullscreen"
	CmdToggleFloat           = "toggle-float"
	CmdResize                = "resize"
	CmdRetile                = "retile"
	CmdStats                 = "stats"
	CmdGetKeybinds           = "get-keybinds"
	CmdSetKeybinds           = "set-keybinds"
	CmdReload                = "reload"

	// ErrUnknownCommand is the error text for names outside the command set.
	ErrUnknownCommand = "unknown command"
)

// Request is one control command. Args are positional.
type Request struct {
	Name string `json:"name"`
	Args []any  `json:"args,omitempty"`
}

// Response answers one Request.
type Response struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// KeybindsResult is returned by set-keybinds.
type KeybindsResult struct {
	Count int `json:"count"`
}

// DefaultSocketPath returns the expected location of the bobrwm control socket.
func DefaultSocketPath() (string, error) {
	if env := os.Getenv("BOBRWM_SOCKET"); env != "" {
		return env, nil
	}
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
		if base == "" {
			return "", errors.New("no runtime directory available")
		}
	}
	return filepath.Join(base, "bobrwm", SocketFileName), nil
}
