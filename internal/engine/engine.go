package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobrwm/bobrwm/internal/config"
	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/keybind"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/metrics"
	"github.com/bobrwm/bobrwm/internal/platform"
	"github.com/bobrwm/bobrwm/internal/rules"
	"github.com/bobrwm/bobrwm/internal/state"
	"github.com/bobrwm/bobrwm/internal/util"
)

// ErrNotRunning is returned when a request needs the engine loop and the
// loop stopped before answering.
var ErrNotRunning = errors.New("engine loop not running")

const (
	queryTimeout        = 250 * time.Millisecond
	keybindSyncTimeout  = 2 * time.Second
	defaultHistoryLimit = 128
)

// Options configures a new engine.
type Options struct {
	Workspaces      int
	Orientation     layout.Orientation
	Ratio           float64
	Gaps            layout.Gaps
	QueueCapacity   int
	Rules           rules.Set
	Keybinds        keybind.Table
	Metrics         *metrics.Collector
	MetricsDisabled bool
	HistoryLimit    int
}

// OptionsFromConfig compiles the rule and keybind sections of cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	set, err := rules.Build(cfg.Rules)
	if err != nil {
		return Options{}, err
	}
	table, err := cfg.KeybindTable()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Workspaces:      cfg.Workspaces,
		Orientation:     cfg.Orientation(),
		Ratio:           cfg.SplitRatio,
		Gaps:            cfg.LayoutGaps(),
		QueueCapacity:   cfg.QueueCapacity,
		Rules:           set,
		Keybinds:        table,
		MetricsDisabled: !cfg.MetricsEnabled(),
	}, nil
}

// Engine owns the window model. Producers only push events; the loop drains
// them in batches, applies transitions and retiles affected workspaces.
type Engine struct {
	platform platform.Platform
	logger   *util.Logger
	queue    *event.Queue
	keys     *keybind.Dispatcher
	metrics  *metrics.Collector
	applier  *applier
	history  *batchLog

	mu    sync.Mutex
	model *state.Model
	gaps  layout.Gaps
	rules rules.Set

	running   atomic.Bool
	runMu     sync.Mutex
	done      chan struct{}
	snapshots chan snapshotRequest
}

type snapshotRequest struct {
	reply chan state.View
}

// New creates an engine over p. Displays are empty until Bootstrap or a
// display-changed event runs.
func New(p platform.Platform, logger *util.Logger, opts Options) *Engine {
	if logger == nil {
		logger = util.NewLogger(util.LevelInfo)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector(!opts.MetricsDisabled)
	}
	e := &Engine{
		platform:  p,
		logger:    logger,
		queue:     event.NewQueue(opts.QueueCapacity),
		metrics:   opts.Metrics,
		history:   newBatchLog(opts.HistoryLimit),
		model:     state.NewModel(opts.Workspaces, opts.Orientation, opts.Ratio),
		gaps:      opts.Gaps,
		rules:     opts.Rules,
		snapshots: make(chan snapshotRequest),
	}
	e.applier = newApplier(p, logger, opts.Metrics)
	e.keys = keybind.NewDispatcher(e, opts.Keybinds)
	return e
}

// PushEvent enqueues ev. It never blocks.
func (e *Engine) PushEvent(ev event.Event) {
	e.queue.Push(ev)
}

// Keys returns the keybind dispatcher feeding this engine.
func (e *Engine) Keys() *keybind.Dispatcher { return e.keys }

// SetKeybinds atomically replaces the keybind table and installs it in the
// native interceptor when the platform has one.
func (e *Engine) SetKeybinds(table keybind.Table) {
	e.keys.SetKeybinds(table)
	e.trace("keybinds.replaced", map[string]any{"count": len(table)})
	ctx, cancel := context.WithTimeout(context.Background(), keybindSyncTimeout)
	defer cancel()
	e.syncKeybinds(ctx)
}

// syncKeybinds pushes the active table to a platform that intercepts
// keystrokes natively. Failures are logged; the in-process table stays
// authoritative.
func (e *Engine) syncKeybinds(ctx context.Context) {
	sink, ok := e.platform.(platform.KeybindSink)
	if !ok {
		return
	}
	table := e.keys.Keybinds()
	entries := make([]platform.KeybindEntry, 0, len(table))
	for _, b := range table {
		entries = append(entries, platform.KeybindEntry{
			Keycode: b.Keycode,
			Mods:    uint8(b.Mods),
			Action:  uint8(b.Action),
			Arg:     b.Arg,
		})
	}
	if err := sink.SetKeybinds(ctx, entries); err != nil {
		e.logger.Warnf("install keybinds in window server: %v", err)
	}
}

// Keybinds returns a copy of the active keybind table.
func (e *Engine) Keybinds() keybind.Table { return e.keys.Keybinds() }

// Metrics returns the collector used by the engine.
func (e *Engine) Metrics() *metrics.Collector { return e.metrics }

// Reconfigure applies reloaded options and schedules a full retile. The
// workspace count and queue capacity are fixed for the life of the engine.
func (e *Engine) Reconfigure(opts Options) {
	e.mu.Lock()
	e.gaps = opts.Gaps
	e.rules = opts.Rules
	e.model.SetSplitDefaults(opts.Orientation, opts.Ratio)
	e.mu.Unlock()
	e.metrics.SetEnabled(!opts.MetricsDisabled)
	e.SetKeybinds(opts.Keybinds)
	e.PushEvent(event.Hotkey(event.RetileAll, 0))
}

// Bootstrap builds the display model and enqueues discovery events for every
// window that already exists.
func (e *Engine) Bootstrap(ctx context.Context) error {
	displays, err := platform.Displays(ctx, e.platform)
	if err != nil {
		return fmt.Errorf("list displays: %w", err)
	}
	e.mu.Lock()
	e.model.RebuildDisplays(toDisplayFrames(displays))
	e.mu.Unlock()

	windows, err := e.platform.DiscoverWindows(ctx)
	if err != nil {
		return fmt.Errorf("discover windows: %w", err)
	}
	launched := make(map[int32]bool)
	for _, w := range windows {
		if !launched[w.PID] {
			launched[w.PID] = true
			e.PushEvent(event.Event{Kind: event.AppLaunched, PID: w.PID})
		}
		e.PushEvent(event.ForWindow(event.WindowCreated, w.PID, w.WID).WithFrame(w.Frame))
	}
	e.syncKeybinds(ctx)
	e.logger.Infof("bootstrap: %d display(s), %d window(s) discovered", len(displays), len(windows))
	return nil
}

// Run is the single consumer of the event queue. It returns when ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	done := make(chan struct{})
	e.runMu.Lock()
	e.done = done
	e.runMu.Unlock()
	defer func() {
		e.running.Store(false)
		close(done)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.applier.run(ctx)
	}()
	defer wg.Wait()

	// Events pushed before Run started have already consumed their wake.
	e.DrainAndApply(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.queue.Wake():
			e.DrainAndApply(ctx)
		case req := <-e.snapshots:
			e.mu.Lock()
			req.reply <- e.model.View()
			e.mu.Unlock()
		}
	}
}

// Snapshot returns a consistent copy of the model. While the loop runs the
// copy is taken between batches; otherwise it is taken directly.
func (e *Engine) Snapshot(ctx context.Context) (state.View, error) {
	e.runMu.Lock()
	done := e.done
	e.runMu.Unlock()
	if !e.running.Load() || done == nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.model.View(), nil
	}
	req := snapshotRequest{reply: make(chan state.View, 1)}
	select {
	case e.snapshots <- req:
	case <-done:
		return state.View{}, ErrNotRunning
	case <-ctx.Done():
		return state.View{}, ctx.Err()
	}
	select {
	case v := <-req.reply:
		return v, nil
	case <-ctx.Done():
		return state.View{}, ctx.Err()
	}
}

// FlushPlacements applies pending placements and focus synchronously.
func (e *Engine) FlushPlacements(ctx context.Context) error {
	return e.applier.flush(ctx)
}

// Result summarises one drained batch.
type Result struct {
	Events  int
	Retiled []int
	Plan    layout.Plan
	Focus   *layout.Key
}

// batch accumulates the side effects of the events of one drain.
type batch struct {
	affected map[int]struct{}
	extra    layout.Plan
	focus    *layout.Key
}

func (b *batch) retile(ids ...int) {
	for _, id := range ids {
		if id > 0 {
			b.affected[id] = struct{}{}
		}
	}
}

func (b *batch) focusOn(k layout.Key) {
	if k.IsZero() {
		return
	}
	b.focus = &k
}

// DrainAndApply processes every queued event, retiles each affected
// workspace once and hands the resulting placements to the applier.
func (e *Engine) DrainAndApply(ctx context.Context) Result {
	events := e.queue.Drain()
	if len(events) == 0 {
		return Result{}
	}
	started := time.Now()

	e.mu.Lock()
	b := &batch{affected: make(map[int]struct{})}
	kinds := make([]string, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind.String())
		e.metrics.RecordEvent(ev.Kind.String())
		e.trace("event.apply", map[string]any{"event": ev.String()})
		e.apply(ctx, ev, b)
	}

	ids := make([]int, 0, len(b.affected))
	for id := range b.affected {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	plan := b.extra
	for _, id := range ids {
		plan.Merge(e.retile(id))
		e.metrics.RecordRetile()
	}
	plan = dedupe(plan)
	e.mu.Unlock()

	took := time.Since(started)
	e.metrics.RecordBatch(len(events), took)
	e.metrics.SetDropped(e.queue.Dropped())
	e.history.record(BatchRecord{
		Timestamp:  started,
		Events:     len(events),
		Kinds:      kinds,
		Retiled:    ids,
		Placements: plan.Len(),
		Duration:   took,
	})
	e.trace("batch.applied", map[string]any{
		"events":     len(events),
		"retiled":    ids,
		"placements": plan.Len(),
	})
	e.applier.submit(plan, b.focus)
	return Result{Events: len(events), Retiled: ids, Plan: plan, Focus: b.focus}
}

// Stats reports queue, counter and history state.
type Stats struct {
	Queue   QueueStats       `json:"queue"`
	Metrics metrics.Snapshot `json:"metrics"`
	History []BatchRecord    `json:"history,omitempty"`
}

// QueueStats describes the event queue.
type QueueStats struct {
	Len     int    `json:"len"`
	Cap     int    `json:"cap"`
	Pushed  uint64 `json:"pushed"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Queue: QueueStats{
			Len:     e.queue.Len(),
			Cap:     e.queue.Cap(),
			Pushed:  e.queue.Pushed(),
			Dropped: e.queue.Dropped(),
		},
		Metrics: e.metrics.Snapshot(),
		History: e.history.snapshot(),
	}
}

// dedupe keeps the last frame for each window, ordered by first appearance.
func dedupe(plan layout.Plan) layout.Plan {
	if plan.Len() < 2 {
		return plan
	}
	index := make(map[layout.Key]int, plan.Len())
	var out layout.Plan
	for _, p := range plan.Placements {
		if i, ok := index[p.Window]; ok {
			out.Placements[i].Frame = p.Frame
			continue
		}
		index[p.Window] = len(out.Placements)
		out.Placements = append(out.Placements, p)
	}
	return out
}

func (e *Engine) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

func toDisplayFrames(displays []platform.DisplayInfo) []state.DisplayFrame {
	out := make([]state.DisplayFrame, 0, len(displays))
	for _, d := range displays {
		out = append(out, state.DisplayFrame{ID: d.ID, Frame: d.Frame})
	}
	return out
}
