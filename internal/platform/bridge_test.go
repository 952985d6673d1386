package platform

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/util"
)

// fakeShim answers each command connection with the reply produced by fn.
func fakeShim(t *testing.T, path string, fn func(req bridgeRequest) bridgeResponse) <-chan bridgeRequest {
	t.Helper()
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	seen := make(chan bridgeRequest, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadBytes('\n')
				if err != nil {
					return
				}
				var req bridgeRequest
				if err := json.Unmarshal(line, &req); err != nil {
					return
				}
				seen <- req
				_ = json.NewEncoder(conn).Encode(fn(req))
			}(conn)
		}
	}()
	return seen
}

func TestBridgeSetWindowFrame(t *testing.T) {
	dir := t.TempDir()
	cmdPath := filepath.Join(dir, "shim.sock")
	seen := fakeShim(t, cmdPath, func(bridgeRequest) bridgeResponse { return bridgeResponse{OK: true} })

	b := NewBridge(cmdPath, filepath.Join(dir, "events.sock"))
	frame := layout.Rect{X: 10, Y: 20, Width: 300, Height: 400}
	if err := b.SetWindowFrame(context.Background(), 42, 7, frame); err != nil {
		t.Fatalf("SetWindowFrame: %v", err)
	}
	req := <-seen
	want := bridgeRequest{Op: "set_window_frame", PID: 42, WID: 7, Frame: &frame}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("unexpected request (-want +got):\n%s", diff)
	}
}

func TestBridgeDecodesResults(t *testing.T) {
	dir := t.TempDir()
	cmdPath := filepath.Join(dir, "shim.sock")
	fakeShim(t, cmdPath, func(req bridgeRequest) bridgeResponse {
		switch req.Op {
		case "discover_windows":
			return bridgeResponse{OK: true, Result: json.RawMessage(`[{"pid":1,"wid":2,"frame":{"x":0,"y":0,"w":10,"h":20}}]`)}
		case "focused_window":
			return bridgeResponse{OK: true, Result: json.RawMessage(`null`)}
		case "app_bundle_id":
			return bridgeResponse{OK: true, Result: json.RawMessage(`"com.example.app"`)}
		case "focus_window":
			return bridgeResponse{OK: false, Error: "window gone"}
		default:
			return bridgeResponse{OK: false, Error: "accessibility denied"}
		}
	})
	b := NewBridge(cmdPath, "")
	ctx := context.Background()

	windows, err := b.DiscoverWindows(ctx)
	if err != nil {
		t.Fatalf("DiscoverWindows: %v", err)
	}
	want := []WindowInfo{{PID: 1, WID: 2, Frame: layout.Rect{Width: 10, Height: 20}}}
	if diff := cmp.Diff(want, windows); diff != "" {
		t.Fatalf("unexpected windows (-want +got):\n%s", diff)
	}
	if _, ok, err := b.FocusedWindow(ctx, 1); err != nil || ok {
		t.Fatalf("expected no focused window, got ok=%v err=%v", ok, err)
	}
	if id, err := b.AppBundleID(ctx, 1); err != nil || id != "com.example.app" {
		t.Fatalf("unexpected bundle id %q err=%v", id, err)
	}
	if err := b.FocusWindow(ctx, 1, 2); !errors.Is(err, ErrWindowGone) {
		t.Fatalf("expected ErrWindowGone, got %v", err)
	}
	if err := b.ObserveApp(ctx, 1); err == nil {
		t.Fatalf("expected shim failure to surface")
	}
}

func TestBridgeSubscribeStreamsEvents(t *testing.T) {
	dir := t.TempDir()
	evPath := filepath.Join(dir, "events.sock")
	ln, err := net.Listen("unix", evPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var buf bytes.Buffer
		buf.WriteString("1>>100,5\n")
		buf.WriteString("garbage>>1\n")
		buf.WriteString("window-moved>>100,5,1,2,3,4\n")
		buf.WriteString("focus_workspace>>3\n")
		buf.WriteString("key>>0x12,1\n")
		_, _ = conn.Write(buf.Bytes())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var logs bytes.Buffer
	b := NewBridge("", evPath)
	var keys [][2]int
	b.SetKeyHandler(func(code uint16, mods uint8) bool {
		keys = append(keys, [2]int{int(code), int(mods)})
		return true
	})
	ch, err := b.Subscribe(ctx, util.NewLoggerWithWriter(util.LevelWarn, &logs))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	var got []event.Event
	for ev := range ch {
		got = append(got, ev)
	}
	want := []event.Event{
		event.ForWindow(event.WindowCreated, 100, 5),
		event.ForWindow(event.WindowMoved, 100, 5).WithFrame(layout.Rect{X: 1, Y: 2, Width: 3, Height: 4}),
		event.Hotkey(event.HotkeyFocusWorkspace, 3),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][2]int{{0x12, 1}}, keys); diff != "" {
		t.Fatalf("unexpected keystrokes (-want +got):\n%s", diff)
	}
	if !bytes.Contains(logs.Bytes(), []byte("garbage")) {
		t.Fatalf("expected undecodable line to be logged, got %q", logs.String())
	}
}

func TestBridgeSetKeybinds(t *testing.T) {
	dir := t.TempDir()
	cmdPath := filepath.Join(dir, "shim.sock")
	seen := fakeShim(t, cmdPath, func(bridgeRequest) bridgeResponse { return bridgeResponse{OK: true} })

	b := NewBridge(cmdPath, filepath.Join(dir, "events.sock"))
	binds := []KeybindEntry{
		{Keycode: 18, Mods: 1, Action: 20, Arg: 1},
		{Keycode: 4, Mods: 9, Action: 22},
	}
	if err := b.SetKeybinds(context.Background(), binds); err != nil {
		t.Fatalf("SetKeybinds: %v", err)
	}
	req := <-seen
	if req.Op != "set_keybinds" {
		t.Fatalf("op = %q, want set_keybinds", req.Op)
	}
	if diff := cmp.Diff(binds, req.Keybinds); diff != "" {
		t.Fatalf("keybinds sent to shim (-want +got):\n%s", diff)
	}
}

func TestParseKeyLine(t *testing.T) {
	code, mods, ok, err := ParseKeyLine("key>>18,9")
	if !ok || err != nil || code != 18 || mods != 9 {
		t.Fatalf("ParseKeyLine = %d, %d, %v, %v", code, mods, ok, err)
	}
	if _, _, ok, _ := ParseKeyLine("window-created>>1,2"); ok {
		t.Fatalf("window event treated as keystroke")
	}
	if _, _, ok, err := ParseKeyLine("key>>x"); !ok || err == nil {
		t.Fatalf("expected invalid keycode error, got ok=%v err=%v", ok, err)
	}
}

func TestParseEventLineErrors(t *testing.T) {
	for _, line := range []string{
		"99>>1,2",
		"window-created>>x,2",
		"window-created>>1,2,3",
		"focus-workspace>>1,2",
		"toggle-split>>abc",
	} {
		if _, err := ParseEventLine(line); err == nil {
			t.Fatalf("expected %q to fail", line)
		}
	}
	ev, err := ParseEventLine("app-terminated>>77")
	if err != nil || ev.PID != 77 || ev.Kind != event.AppTerminated {
		t.Fatalf("unexpected event %v err=%v", ev, err)
	}
}

func TestDefaultBridgePaths(t *testing.T) {
	t.Setenv("BOBRWM_SHIM_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/501")
	cmdPath, evPath, err := DefaultBridgePaths()
	if err != nil {
		t.Fatalf("DefaultBridgePaths: %v", err)
	}
	if cmdPath != "/run/user/501/bobrwm/shim.sock" || evPath != "/run/user/501/bobrwm/shim-events.sock" {
		t.Fatalf("unexpected paths %q %q", cmdPath, evPath)
	}
	t.Setenv("BOBRWM_SHIM_DIR", "/tmp/shim")
	cmdPath, _, _ = DefaultBridgePaths()
	if cmdPath != "/tmp/shim/shim.sock" {
		t.Fatalf("expected override, got %q", cmdPath)
	}
}
