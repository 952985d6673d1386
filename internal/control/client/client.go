package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bobrwm/bobrwm/internal/control"
	"github.com/bobrwm/bobrwm/internal/engine"
	"github.com/bobrwm/bobrwm/internal/keybind"
	"github.com/bobrwm/bobrwm/internal/state"
)

const (
	// defaultTimeout is used when the caller does not provide a context deadline.
	defaultTimeout = 3 * time.Second
)

// Client talks to the running bobrwm daemon over its control socket.
type Client struct {
	socketPath string
}

type (
	// Window mirrors a window entry returned by list-windows.
	Window = state.WindowView
	// Workspace mirrors a workspace entry returned by list-workspaces.
	Workspace = state.WorkspaceView
	// Display mirrors a display entry returned by list-displays.
	Display = state.DisplayView
	// Stats mirrors the engine counters returned by stats.
	Stats = engine.Stats
)

// New creates a client that connects to the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string { return c.socketPath }

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.Do(ctx, control.CmdPing, nil, nil)
}

// Windows lists every tracked window.
func (c *Client) Windows(ctx context.Context) ([]Window, error) {
	var out []Window
	if err := c.Do(ctx, control.CmdListWindows, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Workspaces lists every workspace with its layout.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var out []Workspace
	if err := c.Do(ctx, control.CmdListWorkspaces, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Displays lists the displays known to the daemon.
func (c *Client) Displays(ctx context.Context) ([]Display, error) {
	var out []Display
	if err := c.Do(ctx, control.CmdListDisplays, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FocusWorkspace activates workspace n.
func (c *Client) FocusWorkspace(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("workspace must be positive, got %d", n)
	}
	return c.Do(ctx, control.CmdFocusWorkspace, []any{n}, nil)
}

// MoveWindowToWorkspace moves the focused window to workspace n.
func (c *Client) MoveWindowToWorkspace(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("workspace must be positive, got %d", n)
	}
	return c.Do(ctx, control.CmdMoveWindowToWorkspace, []any{n}, nil)
}

// Focus moves focus to the neighbouring tile in direction dir.
func (c *Client) Focus(ctx context.Context, dir string) error {
	if dir == "" {
		return errors.New("direction cannot be empty")
	}
	return c.Do(ctx, control.CmdFocus, []any{dir}, nil)
}

// ToggleSplit flips the split around the focused window.
func (c *Client) ToggleSplit(ctx context.Context) error {
	return c.Do(ctx, control.CmdToggleSplit, nil, nil)
}

// ToggleFullscreen toggles fullscreen for the focused window.
func (c *Client) ToggleFullscreen(ctx context.Context) error {
	return c.Do(ctx, control.CmdToggleFullscreen, nil, nil)
}

// ToggleFloat toggles floating for the focused window.
func (c *Client) ToggleFloat(ctx context.Context) error {
	return c.Do(ctx, control.CmdToggleFloat, nil, nil)
}

// Resize grows the focused window's share of its split by delta percent.
func (c *Client) Resize(ctx context.Context, delta int) error {
	return c.Do(ctx, control.CmdResize, []any{delta}, nil)
}

// Retile recomputes every workspace.
func (c *Client) Retile(ctx context.Context) error {
	return c.Do(ctx, control.CmdRetile, nil, nil)
}

// Stats retrieves queue and processing counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	if err := c.Do(ctx, control.CmdStats, nil, &out); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// Keybinds retrieves the active keybind table.
func (c *Client) Keybinds(ctx context.Context) ([]keybind.Spec, error) {
	var out []keybind.Spec
	if err := c.Do(ctx, control.CmdGetKeybinds, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetKeybinds replaces the keybind table and returns the new binding count.
func (c *Client) SetKeybinds(ctx context.Context, specs []keybind.Spec) (int, error) {
	args := make([]any, 0, len(specs)*3)
	for _, s := range specs {
		args = append(args, s.Key, s.Action, s.Arg)
	}
	var out control.KeybindsResult
	if err := c.Do(ctx, control.CmdSetKeybinds, args, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Reload asks the daemon to reload its configuration.
func (c *Client) Reload(ctx context.Context) error {
	return c.Do(ctx, control.CmdReload, nil, nil)
}

// Do sends one command and decodes its data into out when non-nil.
func (c *Client) Do(ctx context.Context, name string, args []any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(control.Request{Name: name, Args: args}); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp struct {
		OK    bool            `json:"ok"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
