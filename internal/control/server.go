package control

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bobrwm/bobrwm/internal/engine"
	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/keybind"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/state"
	"github.com/bobrwm/bobrwm/internal/util"
)

const maxRequestBytes = 1 << 20

var errRequestTooLarge = fmt.Errorf("request exceeds %d bytes", maxRequestBytes)

// Engine is the part of the engine the control server drives.
type Engine interface {
	PushEvent(event.Event)
	Snapshot(ctx context.Context) (state.View, error)
	Stats() engine.Stats
	Keybinds() keybind.Table
	SetKeybinds(keybind.Table)
}

type handlerFunc func(ctx context.Context, args []any) (any, error)

// Server serves the control protocol on an already-bound listener.
type Server struct {
	engine   Engine
	logger   *util.Logger
	reload   func(reason string) error
	handlers map[string]handlerFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

// NewServer creates a control server. reload may be nil.
func NewServer(listener net.Listener, eng Engine, logger *util.Logger, reload func(reason string) error) *Server {
	if logger == nil {
		logger = util.NewLogger(util.LevelInfo)
	}
	s := &Server{
		engine:   eng,
		logger:   logger,
		reload:   reload,
		listener: listener,
		conns:    make(map[net.Conn]struct{}),
	}
	s.handlers = map[string]handlerFunc{
		CmdPing:                  s.handlePing,
		CmdListWindows:           s.handleListWindows,
		CmdListWorkspaces:        s.handleListWorkspaces,
		CmdListDisplays:          s.handleListDisplays,
		CmdFocusWorkspace:        s.workspaceCommand(event.HotkeyFocusWorkspace),
		CmdMoveWindowToWorkspace: s.workspaceCommand(event.HotkeyMoveToWorkspace),
		CmdFocus:                 s.handleFocus,
		CmdToggleSplit:           s.simpleCommand(event.HotkeyToggleSplit),
		CmdToggleFullscreen:      s.simpleCommand(event.HotkeyToggleFullscreen),
		CmdToggleFloat:           s.simpleCommand(event.HotkeyToggleFloat),
		CmdResize:                s.handleResize,
		CmdRetile:                s.simpleCommand(event.RetileAll),
		CmdStats:                 s.handleStats,
		CmdGetKeybinds:           s.handleGetKeybinds,
		CmdSetKeybinds:           s.handleSetKeybinds,
		CmdReload:                s.handleReload,
	}
	return s
}

// Listen prepares a unix socket at path with owner-only permissions,
// removing a stale socket left by a previous run.
func Listen(path string) (net.Listener, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create control dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod control socket: %w", err)
	}
	return listener, nil
}

// Serve accepts connections until ctx is cancelled. Each connection is
// handled on its own goroutine and may carry any number of requests.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("control server has no listener")
	}
	s.logger.Infof("control server listening on %s", listener.Addr())

	var wg sync.WaitGroup
	defer wg.Wait()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		s.shutdown()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Errorf("control accept error: %v", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.untrack(conn)
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) shutdown() {
	s.mu.Lock()
	listener := s.listener
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	for conn := range conns {
		conn.Close()
	}
}

// handle answers requests on conn in order until the peer closes it.
// Malformed and oversized requests get an error response; the connection
// stays open.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	reader := bufio.NewReader(conn)
	enc := json.NewEncoder(conn)
	for {
		raw, err := readRequest(reader)
		if errors.Is(err, errRequestTooLarge) {
			if err := enc.Encode(errorResponse(fmt.Errorf("parse error: %w", err))); err != nil {
				s.logger.Debugf("control write: %v", err)
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Debugf("control read: %v", err)
			}
			return
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		resp := s.HandleCommand(ctx, line)
		if err := enc.Encode(resp); err != nil {
			s.logger.Debugf("control write: %v", err)
			return
		}
	}
}

// readRequest returns the next newline-terminated request. A line longer
// than maxRequestBytes is consumed up to its newline and reported as
// errRequestTooLarge.
func readRequest(r *bufio.Reader) ([]byte, error) {
	var line []byte
	tooLarge := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLarge {
			if len(line)+len(chunk) > maxRequestBytes+1 {
				tooLarge, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && (tooLarge || len(line) > 0):
			// Unterminated final request.
		case err != nil:
			return nil, err
		}
		if tooLarge {
			return nil, errRequestTooLarge
		}
		return line, nil
	}
}

// HandleCommand decodes and executes one raw request.
func (s *Server) HandleCommand(ctx context.Context, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(fmt.Errorf("parse error: %w", err))
	}
	if req.Name == "" {
		return errorResponse(errors.New("parse error: missing command name"))
	}
	return s.Execute(ctx, req)
}

// Execute runs a decoded request.
func (s *Server) Execute(ctx context.Context, req Request) Response {
	h, ok := s.handlers[req.Name]
	if !ok {
		s.logger.Debugf("control: unknown command %q", req.Name)
		return Response{Error: ErrUnknownCommand}
	}
	data, err := h(ctx, req.Args)
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: true, Data: data}
}

func (s *Server) handlePing(context.Context, []any) (any, error) {
	return "pong", nil
}

func (s *Server) handleListWindows(ctx context.Context, args []any) (any, error) {
	view, err := s.snapshot(ctx, args)
	if err != nil {
		return nil, err
	}
	if view.Windows == nil {
		return []state.WindowView{}, nil
	}
	return view.Windows, nil
}

func (s *Server) handleListWorkspaces(ctx context.Context, args []any) (any, error) {
	view, err := s.snapshot(ctx, args)
	if err != nil {
		return nil, err
	}
	return view.Workspaces, nil
}

func (s *Server) handleListDisplays(ctx context.Context, args []any) (any, error) {
	view, err := s.snapshot(ctx, args)
	if err != nil {
		return nil, err
	}
	if view.Displays == nil {
		return []state.DisplayView{}, nil
	}
	return view.Displays, nil
}

func (s *Server) snapshot(ctx context.Context, args []any) (state.View, error) {
	if err := expectArgs(args, 0); err != nil {
		return state.View{}, err
	}
	return s.engine.Snapshot(ctx)
}

func (s *Server) workspaceCommand(kind event.Kind) handlerFunc {
	return func(_ context.Context, args []any) (any, error) {
		if err := expectArgs(args, 1); err != nil {
			return nil, err
		}
		n, err := intArg(args[0])
		if err != nil {
			return nil, invalidArgs("workspace: %v", err)
		}
		if n < 1 {
			return nil, invalidArgs("workspace must be positive, got %d", n)
		}
		s.engine.PushEvent(event.Hotkey(kind, int32(n)))
		return nil, nil
	}
}

func (s *Server) simpleCommand(kind event.Kind) handlerFunc {
	return func(_ context.Context, args []any) (any, error) {
		if err := expectArgs(args, 0); err != nil {
			return nil, err
		}
		s.engine.PushEvent(event.Hotkey(kind, 0))
		return nil, nil
	}
}

func (s *Server) handleFocus(_ context.Context, args []any) (any, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	name, _ := args[0].(string)
	dir, ok := layout.ParseDirection(strings.ToLower(name))
	if !ok {
		return nil, invalidArgs("unknown direction %v", args[0])
	}
	kinds := map[layout.Direction]event.Kind{
		layout.DirLeft:  event.HotkeyFocusLeft,
		layout.DirRight: event.HotkeyFocusRight,
		layout.DirUp:    event.HotkeyFocusUp,
		layout.DirDown:  event.HotkeyFocusDown,
	}
	s.engine.PushEvent(event.Hotkey(kinds[dir], 0))
	return nil, nil
}

func (s *Server) handleResize(_ context.Context, args []any) (any, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	delta, err := intArg(args[0])
	if err != nil {
		return nil, invalidArgs("delta: %v", err)
	}
	if err := keybind.ValidateArg(event.ResizeSplit, int32(delta)); err != nil {
		return nil, invalidArgs("%v", err)
	}
	s.engine.PushEvent(event.Hotkey(event.ResizeSplit, int32(delta)))
	return nil, nil
}

func (s *Server) handleStats(_ context.Context, args []any) (any, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	return s.engine.Stats(), nil
}

func (s *Server) handleGetKeybinds(_ context.Context, args []any) (any, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	return s.engine.Keybinds().Specs(), nil
}

// handleSetKeybinds takes flat (chord, action, arg) triples and replaces the
// whole table. An empty argument list clears it.
func (s *Server) handleSetKeybinds(_ context.Context, args []any) (any, error) {
	if len(args)%3 != 0 {
		return nil, invalidArgs("expected chord, action, arg triples, got %d values", len(args))
	}
	specs := make([]keybind.Spec, 0, len(args)/3)
	for i := 0; i < len(args); i += 3 {
		chord, ok1 := args[i].(string)
		action, ok2 := args[i+1].(string)
		if !ok1 || !ok2 {
			return nil, invalidArgs("binding %d: chord and action must be strings", i/3)
		}
		arg, err := intArg(args[i+2])
		if err != nil {
			return nil, invalidArgs("binding %d: %v", i/3, err)
		}
		specs = append(specs, keybind.Spec{Key: chord, Action: action, Arg: int32(arg)})
	}
	table, err := keybind.Compile(specs)
	if err != nil {
		return nil, invalidArgs("%v", err)
	}
	s.engine.SetKeybinds(table)
	return KeybindsResult{Count: len(table)}, nil
}

func (s *Server) handleReload(_ context.Context, args []any) (any, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	if s.reload == nil {
		return nil, errors.New("reload not supported")
	}
	if err := s.reload("control request"); err != nil {
		return nil, err
	}
	return nil, nil
}

func expectArgs(args []any, n int) error {
	if len(args) != n {
		return invalidArgs("expected %d argument(s), got %d", n, len(args))
	}
	return nil
}

func invalidArgs(format string, args ...any) error {
	return fmt.Errorf("invalid arguments: "+format, args...)
}

// intArg accepts JSON numbers and numeric strings.
func intArg(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.Abs(t) > math.MaxInt32 {
			return 0, fmt.Errorf("%v is not an integer", t)
		}
		return int(t), nil
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", t)
		}
		return n, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%v is not an integer", v)
	}
}

func errorResponse(err error) Response {
	return Response{Error: err.Error()}
}
