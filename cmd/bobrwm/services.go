package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/thejerf/suture/v4"

	"github.com/bobrwm/bobrwm/internal/control"
	"github.com/bobrwm/bobrwm/internal/engine"
	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/util"
)

const reloadDebounce = 250 * time.Millisecond

// newSupervisor builds the service tree. Services that stop while the
// daemon is running are restarted with suture's backoff.
func newSupervisor(logger *util.Logger, services ...suture.Service) *suture.Supervisor {
	sup := suture.New("bobrwm", suture.Spec{
		EventHook: func(ev suture.Event) {
			logger.Warnf("supervisor: %s", ev)
		},
	})
	for _, svc := range services {
		sup.Add(svc)
	}
	return sup
}

type engineService struct {
	engine *engine.Engine
}

func (s engineService) Serve(ctx context.Context) error { return s.engine.Run(ctx) }
func (s engineService) String() string                  { return "engine" }

// controlService owns the control socket. Each restart binds a fresh
// listener.
type controlService struct {
	path   string
	engine control.Engine
	logger *util.Logger
	reload func(reason string) error
}

func (s controlService) Serve(ctx context.Context) error {
	listener, err := control.Listen(s.path)
	if err != nil {
		return err
	}
	defer os.Remove(s.path)
	srv := control.NewServer(listener, s.engine, s.logger, s.reload)
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("control server stopped")
}

func (s controlService) String() string { return "control" }

// eventSource is a notification stream feeding the engine queue.
type eventSource interface {
	Subscribe(ctx context.Context, logger *util.Logger) (<-chan event.Event, error)
}

// bridgeEventsService forwards shim notifications into the engine. A closed
// stream is an error so the supervisor reconnects.
type bridgeEventsService struct {
	source eventSource
	engine *engine.Engine
	logger *util.Logger
}

func (s bridgeEventsService) Serve(ctx context.Context) error {
	events, err := s.source.Subscribe(ctx, s.logger)
	if err != nil {
		return err
	}
	s.logger.Infof("subscribed to shim events")
	for ev := range events {
		s.engine.PushEvent(ev)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("shim event stream closed")
}

func (s bridgeEventsService) String() string { return "shim-events" }

// configWatchService reloads on SIGHUP and on debounced writes to the
// config file.
type configWatchService struct {
	path   string
	reload func(reason string) error
	logger *util.Logger
	// hup overrides SIGHUP delivery in tests.
	hup <-chan os.Signal
}

func (s configWatchService) Serve(ctx context.Context) error {
	target := filepath.Clean(s.path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	if err := watcher.Add(target); err != nil {
		s.logger.Debugf("unable to watch config file directly: %v", err)
	}

	hup := s.hup
	if hup == nil {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGHUP)
		defer signal.Stop(sigs)
		hup = sigs
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hup:
			s.runReload("received SIGHUP")
		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("config watcher closed")
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerCh = timer.C
				continue
			}
			timer.Stop()
			timer.Reset(reloadDebounce)
		case <-timerCh:
			timer = nil
			timerCh = nil
			s.runReload("config file updated")
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("config watcher closed")
			}
			s.logger.Warnf("config watcher error: %v", err)
		}
	}
}

func (s configWatchService) runReload(reason string) {
	if err := s.reload(reason); err != nil {
		s.logger.Errorf("reload failed: %v", err)
	}
}

func (s configWatchService) String() string { return "config-watch" }
