package platform

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/util"
)

const bridgeCallTimeout = 2 * time.Second

// Bridge talks to the native shim helper. Commands are sent one JSON line
// per connection on the command socket; notifications stream from the event
// socket as "kind>>pid,wid[,x,y,w,h]" lines.
type Bridge struct {
	commandPath string
	eventPath   string
	timeout     time.Duration
	onKey       KeyHandler
}

// KeyHandler receives keystrokes captured by the shim. It reports whether
// the keystroke matched a binding.
type KeyHandler func(keycode uint16, mods uint8) bool

// SetKeyHandler routes "key>>keycode,mods" lines of the event stream to fn.
// It must be called before Subscribe.
func (b *Bridge) SetKeyHandler(fn KeyHandler) { b.onKey = fn }

// NewBridge creates a bridge for the given socket paths.
func NewBridge(commandPath, eventPath string) *Bridge {
	return &Bridge{commandPath: commandPath, eventPath: eventPath, timeout: bridgeCallTimeout}
}

// DefaultBridgePaths resolves the shim sockets from BOBRWM_SHIM_DIR or
// $XDG_RUNTIME_DIR/bobrwm.
func DefaultBridgePaths() (command, events string, err error) {
	dir := os.Getenv("BOBRWM_SHIM_DIR")
	if dir == "" {
		runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
		if runtimeDir == "" {
			return "", "", fmt.Errorf("XDG_RUNTIME_DIR not set")
		}
		dir = filepath.Join(runtimeDir, "bobrwm")
	}
	return filepath.Join(dir, "shim.sock"), filepath.Join(dir, "shim-events.sock"), nil
}

// CommandSocketPath returns the command socket path.
func (b *Bridge) CommandSocketPath() string { return b.commandPath }

// EventSocketPath returns the event socket path.
func (b *Bridge) EventSocketPath() string { return b.eventPath }

type bridgeRequest struct {
	Op    string       `json:"op"`
	PID   int32        `json:"pid,omitempty"`
	WID   uint32       `json:"wid,omitempty"`
	Frame *layout.Rect `json:"frame,omitempty"`

	Keybinds []KeybindEntry `json:"keybinds,omitempty"`
}

type bridgeResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (b *Bridge) call(ctx context.Context, req bridgeRequest, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", b.commandPath)
	if err != nil {
		return fmt.Errorf("connect shim socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Op, err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", req.Op, err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return fmt.Errorf("read %s response: %w", req.Op, err)
	}
	var resp bridgeResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", req.Op, err)
	}
	if !resp.OK {
		if resp.Error == ErrWindowGone.Error() {
			return ErrWindowGone
		}
		if resp.Error == "" {
			resp.Error = "unknown failure"
		}
		return fmt.Errorf("%s: %s", req.Op, resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", req.Op, err)
		}
	}
	return nil
}

func (b *Bridge) DiscoverWindows(ctx context.Context) ([]WindowInfo, error) {
	var out []WindowInfo
	err := b.call(ctx, bridgeRequest{Op: "discover_windows"}, &out)
	return out, err
}

func (b *Bridge) DisplayFrame(ctx context.Context) (layout.Rect, error) {
	var out layout.Rect
	err := b.call(ctx, bridgeRequest{Op: "display_frame"}, &out)
	return out, err
}

func (b *Bridge) Displays(ctx context.Context) ([]DisplayInfo, error) {
	var out []DisplayInfo
	if err := b.call(ctx, bridgeRequest{Op: "list_displays"}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("shim reported no displays")
	}
	return out, nil
}

func (b *Bridge) SetWindowFrame(ctx context.Context, pid int32, wid uint32, frame layout.Rect) error {
	return b.call(ctx, bridgeRequest{Op: "set_window_frame", PID: pid, WID: wid, Frame: &frame}, nil)
}

func (b *Bridge) FocusWindow(ctx context.Context, pid int32, wid uint32) error {
	return b.call(ctx, bridgeRequest{Op: "focus_window", PID: pid, WID: wid}, nil)
}

func (b *Bridge) FocusedWindow(ctx context.Context, pid int32) (uint32, bool, error) {
	var out *uint32
	if err := b.call(ctx, bridgeRequest{Op: "focused_window", PID: pid}, &out); err != nil {
		return 0, false, err
	}
	if out == nil || *out == 0 {
		return 0, false, nil
	}
	return *out, true, nil
}

func (b *Bridge) ShouldManageWindow(ctx context.Context, pid int32, wid uint32) (bool, error) {
	var out bool
	err := b.call(ctx, bridgeRequest{Op: "should_manage_window", PID: pid, WID: wid}, &out)
	return out, err
}

func (b *Bridge) IsWindowOnScreen(ctx context.Context, wid uint32) (bool, error) {
	var out bool
	err := b.call(ctx, bridgeRequest{Op: "is_window_on_screen", WID: wid}, &out)
	return out, err
}

func (b *Bridge) AppWindowIDs(ctx context.Context, pid int32) ([]uint32, error) {
	var out []uint32
	err := b.call(ctx, bridgeRequest{Op: "app_window_ids", PID: pid}, &out)
	return out, err
}

func (b *Bridge) ObserveApp(ctx context.Context, pid int32) error {
	return b.call(ctx, bridgeRequest{Op: "observe_app", PID: pid}, nil)
}

func (b *Bridge) UnobserveApp(ctx context.Context, pid int32) error {
	return b.call(ctx, bridgeRequest{Op: "unobserve_app", PID: pid}, nil)
}

func (b *Bridge) AppBundleID(ctx context.Context, pid int32) (string, error) {
	var out *string
	if err := b.call(ctx, bridgeRequest{Op: "app_bundle_id", PID: pid}, &out); err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return *out, nil
}

// Subscribe connects to the shim event socket and streams decoded events
// until the context is cancelled or the shim closes the stream. Lines that
// fail to decode are logged and skipped.
func (b *Bridge) Subscribe(ctx context.Context, logger *util.Logger) (<-chan event.Event, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", b.eventPath)
	if err != nil {
		return nil, fmt.Errorf("connect event socket: %w", err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	events := make(chan event.Event)
	go func() {
		defer close(events)
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if code, mods, ok, err := ParseKeyLine(line); ok {
				if err != nil {
					logger.Warnf("shim keystroke %q: %v", line, err)
				} else if b.onKey != nil && !b.onKey(code, mods) {
					logger.Tracef("keystroke %d/%d passed through", code, mods)
				}
				continue
			}
			ev, err := ParseEventLine(line)
			if err != nil {
				logger.Warnf("shim event %q: %v", line, err)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Warnf("event stream error: %v", err)
		}
	}()
	return events, nil
}

// ParseEventLine decodes one "kind>>payload" line. The kind is either the
// numeric wire value or its name. Window events carry "pid,wid" optionally
// followed by "x,y,w,h"; hotkey and internal events carry a single argument.
func ParseEventLine(line string) (event.Event, error) {
	name, payload, _ := strings.Cut(line, ">>")
	kind, err := parseKind(name)
	if err != nil {
		return event.Event{}, err
	}
	ev := event.Event{Kind: kind}
	var fields []string
	if payload = strings.TrimSpace(payload); payload != "" {
		fields = strings.Split(payload, ",")
	}

	if kind.IsHotkey() || kind == event.ResizeSplit || kind == event.RetileAll {
		if len(fields) > 1 {
			return event.Event{}, fmt.Errorf("%s takes at most one argument", kind)
		}
		if len(fields) == 1 {
			arg, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 32)
			if err != nil {
				return event.Event{}, fmt.Errorf("invalid argument: %w", err)
			}
			ev.Arg = int32(arg)
		}
		return ev, nil
	}

	switch len(fields) {
	case 0:
		return ev, nil
	case 1, 2, 6:
	default:
		return event.Event{}, fmt.Errorf("unexpected field count %d", len(fields))
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 32)
	if err != nil {
		return event.Event{}, fmt.Errorf("invalid pid: %w", err)
	}
	ev.PID = int32(pid)
	if len(fields) >= 2 {
		wid, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 32)
		if err != nil {
			return event.Event{}, fmt.Errorf("invalid wid: %w", err)
		}
		ev.WID = uint32(wid)
	}
	if len(fields) == 6 {
		var vals [4]float64
		for i := range vals {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[2+i]), 64)
			if err != nil {
				return event.Event{}, fmt.Errorf("invalid frame: %w", err)
			}
			vals[i] = v
		}
		ev = ev.WithFrame(layout.Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]})
	}
	return ev, nil
}

// ParseKeyLine decodes a "key>>keycode,mods" keystroke line. ok is false
// when line is not a keystroke.
func ParseKeyLine(line string) (keycode uint16, mods uint8, ok bool, err error) {
	name, payload, found := strings.Cut(line, ">>")
	if !found || strings.TrimSpace(name) != "key" {
		return 0, 0, false, nil
	}
	codeField, modsField, _ := strings.Cut(payload, ",")
	code, err := strconv.ParseUint(strings.TrimSpace(codeField), 0, 16)
	if err != nil {
		return 0, 0, true, fmt.Errorf("invalid keycode: %w", err)
	}
	var m uint64
	if modsField = strings.TrimSpace(modsField); modsField != "" {
		if m, err = strconv.ParseUint(modsField, 10, 8); err != nil {
			return 0, 0, true, fmt.Errorf("invalid modifiers: %w", err)
		}
	}
	return uint16(code), uint8(m), true, nil
}

func parseKind(name string) (event.Kind, error) {
	name = strings.TrimSpace(name)
	if n, err := strconv.ParseUint(name, 10, 8); err == nil {
		k := event.Kind(n)
		if !k.Valid() {
			return 0, fmt.Errorf("unknown event kind %d", n)
		}
		return k, nil
	}
	k, ok := event.ParseKind(strings.ReplaceAll(name, "_", "-"))
	if !ok {
		return 0, fmt.Errorf("unknown event kind %q", name)
	}
	return k, nil
}

// SetKeybinds installs the binding table in the shim's event tap. The shim
// consumes matching keystrokes and passes every other one through.
func (b *Bridge) SetKeybinds(ctx context.Context, binds []KeybindEntry) error {
	return b.call(ctx, bridgeRequest{Op: "set_keybinds", Keybinds: binds}, nil)
}

var (
	_ Platform      = (*Bridge)(nil)
	_ DisplayLister = (*Bridge)(nil)
	_ KeybindSink   = (*Bridge)(nil)
)
