package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/metrics"
	"github.com/bobrwm/bobrwm/internal/platform"
	"github.com/bobrwm/bobrwm/internal/util"
)

// applier performs placements off the engine loop. Pending frames are
// coalesced per window so a slow window server only ever sees the latest
// target.
type applier struct {
	platform platform.Platform
	logger   *util.Logger
	metrics  *metrics.Collector

	mu      sync.Mutex
	pending map[layout.Key]layout.Rect
	order   []layout.Key
	focus   *layout.Key
	wake    chan struct{}

	// serializes flushes
	applyMu sync.Mutex
}

func newApplier(p platform.Platform, logger *util.Logger, m *metrics.Collector) *applier {
	return &applier{
		platform: p,
		logger:   logger,
		metrics:  m,
		pending:  make(map[layout.Key]layout.Rect),
		wake:     make(chan struct{}, 1),
	}
}

func (a *applier) submit(plan layout.Plan, focus *layout.Key) {
	if plan.Len() == 0 && focus == nil {
		return
	}
	a.mu.Lock()
	for _, p := range plan.Placements {
		if _, ok := a.pending[p.Window]; !ok {
			a.order = append(a.order, p.Window)
		}
		a.pending[p.Window] = p.Frame
	}
	if focus != nil {
		k := *focus
		a.focus = &k
	}
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *applier) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.wake:
			_ = a.flush(ctx)
		}
	}
}

// flush applies everything pending. Failures are logged and counted; they
// never stop the remaining placements.
func (a *applier) flush(ctx context.Context) error {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	a.mu.Lock()
	var plan layout.Plan
	for _, k := range a.order {
		plan.Add(k, a.pending[k])
	}
	focus := a.focus
	a.pending = make(map[layout.Key]layout.Rect)
	a.order = nil
	a.focus = nil
	a.mu.Unlock()

	var errs []error
	if plan.Len() > 0 {
		if err := plan.Execute(ctx, countingPlacer{a}); err != nil {
			errs = append(errs, err)
		}
	}
	if focus != nil {
		if err := a.platform.FocusWindow(ctx, focus.PID, focus.WID); err != nil {
			a.logger.Warnf("focus window %s: %v", focus, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type countingPlacer struct{ a *applier }

func (p countingPlacer) SetWindowFrame(ctx context.Context, pid int32, wid uint32, frame layout.Rect) error {
	err := p.a.platform.SetWindowFrame(ctx, pid, wid, frame)
	if err != nil {
		p.a.metrics.RecordPlacementError()
		if errors.Is(err, platform.ErrWindowGone) {
			p.a.logger.Debugf("place window %d:%d: %v", pid, wid, err)
		} else {
			p.a.logger.Warnf("place window %d:%d: %v", pid, wid, err)
		}
		return err
	}
	p.a.metrics.RecordPlacement()
	return nil
}
