package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobrwm/bobrwm/internal/control/client"
	"github.com/bobrwm/bobrwm/internal/engine"
	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/platform"
	"github.com/bobrwm/bobrwm/internal/util"
)

func quietLogger() *util.Logger {
	return util.NewLoggerWithWriter(util.LevelError, io.Discard)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

type fakeSource struct {
	events []event.Event
}

func (f fakeSource) Subscribe(ctx context.Context, _ *util.Logger) (<-chan event.Event, error) {
	ch := make(chan event.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestBridgeEventsServiceForwardsAndReportsClosedStream(t *testing.T) {
	eng := engine.New(platform.NewHeadless(layout.Rect{Width: 800, Height: 600}), quietLogger(), engine.Options{Workspaces: 2, QueueCapacity: 16})
	svc := bridgeEventsService{
		source: fakeSource{events: []event.Event{
			event.ForWindow(event.WindowCreated, 10, 1),
			event.ForWindow(event.WindowDestroyed, 10, 1),
		}},
		engine: eng,
		logger: quietLogger(),
	}
	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatalf("expected error for closed stream")
	}
	if got := eng.Stats().Queue.Pushed; got != 2 {
		t.Fatalf("pushed = %d, want 2", got)
	}
}

func TestConfigWatchReloadsOnSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	var reloads atomic.Int32
	hup := make(chan os.Signal, 1)
	svc := configWatchService{
		path: path,
		reload: func(reason string) error {
			if reason != "received SIGHUP" {
				t.Errorf("reason = %q", reason)
			}
			reloads.Add(1)
			return nil
		},
		logger: quietLogger(),
		hup:    hup,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	hup <- os.Interrupt
	waitFor(t, 2*time.Second, func() bool { return reloads.Load() == 1 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve returned %v, want context.Canceled", err)
	}
}

func TestConfigWatchDebouncesFileWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("workspaces: 3\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var reloads atomic.Int32
	svc := configWatchService{
		path: path,
		reload: func(string) error {
			reloads.Add(1)
			return errors.New("rejected")
		},
		logger: quietLogger(),
		hup:    make(chan os.Signal),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx)
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("workspaces: 4\n"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool { return reloads.Load() >= 1 })
	time.Sleep(2 * reloadDebounce)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("reloads = %d, want 1", got)
	}
}

func TestSupervisorServesControlSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "control.sock")
	logger := quietLogger()
	eng := engine.New(platform.NewHeadless(layout.Rect{Width: 800, Height: 600}), logger, engine.Options{Workspaces: 2, QueueCapacity: 16})
	if err := eng.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	sup := newSupervisor(logger,
		engineService{engine: eng},
		controlService{path: socket, engine: eng, logger: logger},
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sup.Serve(ctx)
	}()

	cli, err := client.New(socket)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return cli.Ping(context.Background()) == nil
	})
	workspaces, err := cli.Workspaces(context.Background())
	if err != nil {
		t.Fatalf("Workspaces: %v", err)
	}
	if len(workspaces) != 2 {
		t.Fatalf("workspaces = %d, want 2", len(workspaces))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor did not stop")
	}
	if _, err := os.Stat(socket); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket not removed on shutdown: %v", err)
	}
}
