package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bobrwm/bobrwm/internal/config"
	"github.com/bobrwm/bobrwm/internal/engine"
	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/metrics"
	"github.com/bobrwm/bobrwm/internal/platform"
	"github.com/bobrwm/bobrwm/internal/util"
)

type benchApp struct {
	PID      int32  `yaml:"pid"`
	BundleID string `yaml:"bundleId"`
}

type benchWindow struct {
	PID       int32
	WID       uint32
	Unmanaged bool
	Offscreen bool
}

type benchFixture struct {
	Name    string
	Display layout.Rect
	Apps    []benchApp
	Windows map[layout.Key]benchWindow
	Events  []benchEvent
}

type benchEvent struct {
	Event event.Event
	Delay time.Duration
}

type benchLatencyStats struct {
	Min    float64 `json:"minMs"`
	Mean   float64 `json:"meanMs"`
	Median float64 `json:"medianMs"`
	P95    float64 `json:"p95Ms"`
	Max    float64 `json:"maxMs"`
}

type benchAllocationStats struct {
	Total          uint64  `json:"totalAllocations"`
	PerEvent       float64 `json:"allocationsPerEvent"`
	BytesTotal     uint64  `json:"bytesTotal"`
	BytesPerEvent  float64 `json:"bytesPerEvent"`
	HeapAllocDelta int64   `json:"heapAllocDeltaBytes"`
}

type benchSummary struct {
	Fixture            string               `json:"fixture"`
	Iterations         int                  `json:"iterations"`
	WarmupIterations   int                  `json:"warmupIterations"`
	BatchSize          int                  `json:"batchSize"`
	EventsPerIteration int                  `json:"eventsPerIteration"`
	TotalEvents        int                  `json:"totalEvents"`
	Batches            int                  `json:"batches"`
	Retiles            int                  `json:"retiles"`
	Placements         int                  `json:"placements"`
	PlacementsPerEvent float64              `json:"placementsPerEvent"`
	Latency            benchLatencyStats    `json:"batchLatency"`
	IterationDuration  benchLatencyStats    `json:"iterationDuration"`
	Allocations        benchAllocationStats `json:"allocations"`
	TotalDurationMs    float64              `json:"totalDurationMs"`
	EventsPerSecond    float64              `json:"eventsPerSecond"`
}

type benchIteration struct {
	Index      int     `json:"index"`
	DurationMs float64 `json:"durationMs"`
	Batches    int     `json:"batches"`
	Retiles    int     `json:"retiles"`
	Placements int     `json:"placements"`
}

type benchReport struct {
	Summary     benchSummary     `json:"summary"`
	DurationsMs []float64        `json:"batchDurationsMs"`
	Iterations  []benchIteration `json:"iterations,omitempty"`
}

// iterationResult is what one replay of the fixture produced.
type iterationResult struct {
	Duration   time.Duration
	Batches    []time.Duration
	Retiles    int
	Placements int
}

type benchOptions struct {
	configPath    string
	fixturePath   string
	iterations    int
	warmup        int
	batchSize     int
	windows       int
	cpuProfile    string
	memProfile    string
	logLevel      string
	respectDelays bool
	outputPath    string
	human         bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitErr(err)
	}
}

func newRootCmd() *cobra.Command {
	opts := benchOptions{}
	cmd := &cobra.Command{
		Use:           "bench",
		Short:         "Replay an event stream against the headless window server and report batch latency",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to YAML config (defaults when empty)")
	f.StringVar(&opts.fixturePath, "fixture", "", "replay fixture (YAML world or kind>>payload event log); synthetic when empty")
	f.IntVar(&opts.iterations, "iterations", 10, "number of times to replay the fixture")
	f.IntVar(&opts.warmup, "warmup", 0, "number of warm-up iterations to run before timing")
	f.IntVar(&opts.batchSize, "batch", 1, "events pushed before each drain")
	f.IntVar(&opts.windows, "windows", 12, "window count of the synthetic fixture")
	f.StringVar(&opts.cpuProfile, "cpu-profile", "", "write CPU profile to file")
	f.StringVar(&opts.memProfile, "mem-profile", "", "write heap profile to file")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level (trace|debug|info|warn|error)")
	f.BoolVar(&opts.respectDelays, "respect-delays", false, "sleep for event delays declared in the fixture")
	f.StringVar(&opts.outputPath, "output", "-", "write JSON report to file ('-' for stdout)")
	f.BoolVar(&opts.human, "human", false, "print a tabular summary alongside the JSON output")
	return cmd
}

func run(opts benchOptions, stdout io.Writer) error {
	if opts.iterations <= 0 {
		return errors.New("iterations must be positive")
	}
	if opts.warmup < 0 {
		return errors.New("warmup must be zero or positive")
	}
	if opts.batchSize <= 0 {
		return errors.New("batch must be positive")
	}

	logger := util.NewLogger(util.ParseLogLevel(opts.logLevel))

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	engOpts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("compile config: %w", err)
	}

	fixture := syntheticFixture(opts.windows)
	if opts.fixturePath != "" {
		fixture, err = loadFixture(opts.fixturePath)
		if err != nil {
			return fmt.Errorf("load fixture: %w", err)
		}
	}
	if len(fixture.Events) == 0 {
		return errors.New("fixture contains no events")
	}

	if opts.cpuProfile != "" {
		f, err := os.Create(opts.cpuProfile)
		if err != nil {
			return fmt.Errorf("create cpu profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx := context.Background()
	for i := 0; i < opts.warmup; i++ {
		if _, err := replayIteration(ctx, fixture, engOpts, logger, opts.batchSize, opts.respectDelays); err != nil {
			return fmt.Errorf("warmup iteration %d: %w", i+1, err)
		}
	}

	runtime.GC()
	var startMem runtime.MemStats
	runtime.ReadMemStats(&startMem)

	results := make([]iterationResult, 0, opts.iterations)
	for i := 0; i < opts.iterations; i++ {
		res, err := replayIteration(ctx, fixture, engOpts, logger, opts.batchSize, opts.respectDelays)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i+1, err)
		}
		results = append(results, res)
	}

	runtime.GC()
	var endMem runtime.MemStats
	runtime.ReadMemStats(&endMem)

	if opts.memProfile != "" {
		f, err := os.Create(opts.memProfile)
		if err != nil {
			return fmt.Errorf("create mem profile: %w", err)
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("write heap profile: %w", err)
		}
	}

	report := buildReport(fixture, opts.warmup, opts.batchSize, results, startMem, endMem)
	if err := writeReport(report, opts.outputPath, stdout); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if opts.human {
		if err := printHumanSummary(report.Summary, stdout); err != nil {
			return fmt.Errorf("print human summary: %w", err)
		}
	}
	return nil
}

// replayIteration runs the fixture against a fresh engine. Window-created
// events register the window with the headless server first so the engine
// sees the same world a live shim would report.
func replayIteration(ctx context.Context, fixture benchFixture, opts engine.Options, logger *util.Logger, batchSize int, respectDelays bool) (iterationResult, error) {
	started := time.Now()
	h := fixture.newHeadless()
	opts.Metrics = metrics.NewCollector(true)
	if opts.QueueCapacity < batchSize {
		opts.QueueCapacity = batchSize
	}
	eng := engine.New(h, logger, opts)
	if err := eng.Bootstrap(ctx); err != nil {
		return iterationResult{}, fmt.Errorf("bootstrap: %w", err)
	}
	eng.DrainAndApply(ctx)
	if err := eng.FlushPlacements(ctx); err != nil {
		logger.Debugf("initial placements: %v", err)
	}
	baseline := h.Placements()

	res := iterationResult{Batches: make([]time.Duration, 0, len(fixture.Events)/batchSize+1)}
	for i := 0; i < len(fixture.Events); i += batchSize {
		end := i + batchSize
		if end > len(fixture.Events) {
			end = len(fixture.Events)
		}
		for _, ev := range fixture.Events[i:end] {
			if respectDelays && ev.Delay > 0 {
				time.Sleep(ev.Delay)
			}
			fixture.mirror(h, ev.Event)
			eng.PushEvent(ev.Event)
		}
		batchStart := time.Now()
		out := eng.DrainAndApply(ctx)
		if err := eng.FlushPlacements(ctx); err != nil {
			logger.Debugf("placements: %v", err)
		}
		res.Batches = append(res.Batches, time.Since(batchStart))
		res.Retiles += len(out.Retiled)
	}
	if dropped := eng.Stats().Queue.Dropped; dropped > 0 {
		return iterationResult{}, fmt.Errorf("queue dropped %d event(s)", dropped)
	}
	res.Placements = h.Placements() - baseline
	res.Duration = time.Since(started)
	return res, nil
}

func buildReport(fixture benchFixture, warmup, batchSize int, results []iterationResult, start, end runtime.MemStats) benchReport {
	iterations := len(results)
	totalEvents := len(fixture.Events) * iterations

	var (
		batchDurations     []time.Duration
		iterationDurations []time.Duration
		retiles            int
		placements         int
	)
	iterationsData := make([]benchIteration, 0, iterations)
	for i, r := range results {
		batchDurations = append(batchDurations, r.Batches...)
		iterationDurations = append(iterationDurations, r.Duration)
		retiles += r.Retiles
		placements += r.Placements
		iterationsData = append(iterationsData, benchIteration{
			Index:      i + 1,
			DurationMs: toMillis(r.Duration),
			Batches:    len(r.Batches),
			Retiles:    r.Retiles,
			Placements: r.Placements,
		})
	}
	latencyStats, totalBatchDuration := buildLatencyStats(batchDurations)
	iterationStats, _ := buildLatencyStats(iterationDurations)

	allocs := end.Mallocs - start.Mallocs
	bytesAllocated := end.TotalAlloc - start.TotalAlloc

	durationsMs := make([]float64, len(batchDurations))
	for i, d := range batchDurations {
		durationsMs[i] = toMillis(d)
	}

	summary := benchSummary{
		Fixture:            fixture.Name,
		Iterations:         iterations,
		WarmupIterations:   warmup,
		BatchSize:          batchSize,
		EventsPerIteration: len(fixture.Events),
		TotalEvents:        totalEvents,
		Batches:            len(batchDurations),
		Retiles:            retiles,
		Placements:         placements,
		PlacementsPerEvent: safeDivide(placements, totalEvents),
		Latency:            latencyStats,
		IterationDuration:  iterationStats,
		Allocations: benchAllocationStats{
			Total:          allocs,
			PerEvent:       safeDivide(int(allocs), totalEvents),
			BytesTotal:     bytesAllocated,
			BytesPerEvent:  safeDivide(int(bytesAllocated), totalEvents),
			HeapAllocDelta: int64(end.HeapAlloc) - int64(start.HeapAlloc),
		},
		TotalDurationMs: toMillis(totalBatchDuration),
		EventsPerSecond: eventsPerSecond(totalBatchDuration, totalEvents),
	}
	return benchReport{Summary: summary, DurationsMs: durationsMs, Iterations: iterationsData}
}

func buildLatencyStats(durations []time.Duration) (benchLatencyStats, time.Duration) {
	stats := benchLatencyStats{}
	if len(durations) == 0 {
		return stats, 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	stats.Min = toMillis(sorted[0])
	stats.Mean = toMillis(total / time.Duration(len(durations)))
	stats.Median = toMillis(percentile(sorted, 0.50))
	stats.P95 = toMillis(percentile(sorted, 0.95))
	stats.Max = toMillis(sorted[len(sorted)-1])
	return stats, total
}

func safeDivide(total int, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func writeReport(report benchReport, outputPath string, stdout io.Writer) error {
	w := stdout
	switch path := strings.TrimSpace(outputPath); path {
	case "", "-":
	default:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create report dir: %w", err)
			}
		}
		out, err := os.Create(path)
		if err != nil {
			return err
		}
		defer out.Close()
		w = out
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func printHumanSummary(summary benchSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		value string
	}{
		{"Fixture:", summary.Fixture},
		{"Iterations:", fmt.Sprintf("%d (+%d warmup)", summary.Iterations, summary.WarmupIterations)},
		{"Events/iteration:", fmt.Sprintf("%d", summary.EventsPerIteration)},
		{"Batches:", fmt.Sprintf("%d (size %d)", summary.Batches, summary.BatchSize)},
		{"Retiles:", fmt.Sprintf("%d", summary.Retiles)},
		{"Placements:", fmt.Sprintf("%d (%.2f / event)", summary.Placements, summary.PlacementsPerEvent)},
		{"Batch latency (ms):", formatLatency(summary.Latency)},
		{"Iteration duration (ms):", formatLatency(summary.IterationDuration)},
		{"Allocations:", fmt.Sprintf("%d total (%.2f / event)", summary.Allocations.Total, summary.Allocations.PerEvent)},
		{"Bytes allocated:", fmt.Sprintf("%s (%.2f / event)", formatBytesUnsigned(summary.Allocations.BytesTotal), summary.Allocations.BytesPerEvent)},
		{"Heap delta:", formatBytesSigned(summary.Allocations.HeapAllocDelta)},
		{"Events/sec:", fmt.Sprintf("%.2f", summary.EventsPerSecond)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", row.label, row.value); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func formatLatency(l benchLatencyStats) string {
	return fmt.Sprintf("min %.2f | mean %.2f | median %.2f | p95 %.2f | max %.2f", l.Min, l.Mean, l.Median, l.P95, l.Max)
}

func formatBytesUnsigned(bytes uint64) string {
	const miB = 1024 * 1024
	if bytes == 0 {
		return "0 B (0.00 MiB)"
	}
	return fmt.Sprintf("%d B (%.2f MiB)", bytes, float64(bytes)/float64(miB))
}

func formatBytesSigned(delta int64) string {
	if delta == 0 {
		return "0 B (0.00 MiB)"
	}
	sign := ""
	if delta < 0 {
		sign = "-"
		delta = -delta
	}
	return sign + formatBytesUnsigned(uint64(delta))
}

func eventsPerSecond(total time.Duration, events int) float64 {
	if total <= 0 || events == 0 {
		return 0
	}
	return float64(events) / total.Seconds()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(p*float64(len(sorted)-1) + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (f benchFixture) newHeadless() *platform.Headless {
	h := platform.NewHeadless(f.Display)
	for _, app := range f.Apps {
		h.AddApp(app.PID, app.BundleID)
	}
	return h
}

// mirror applies the world change an event reports to the headless server.
func (f benchFixture) mirror(h *platform.Headless, ev event.Event) {
	switch ev.Kind {
	case event.WindowCreated:
		w, ok := f.Windows[ev.Window()]
		if !ok {
			w = benchWindow{PID: ev.PID, WID: ev.WID}
		}
		frame := ev.Frame
		if !ev.HasFrame {
			frame = layout.Rect{Width: 640, Height: 480}
		}
		h.AddWindow(platform.HeadlessWindow{
			PID:      ev.PID,
			WID:      ev.WID,
			Frame:    frame,
			Managed:  !w.Unmanaged,
			OnScreen: !w.Offscreen,
		})
	case event.WindowDestroyed:
		h.RemoveWindow(ev.PID, ev.WID)
	case event.WindowFocused:
		h.SetFocused(ev.PID, ev.WID)
	case event.AppTerminated:
		h.RemoveApp(ev.PID)
	}
}

// fixtureFile is the YAML form of a fixture.
type fixtureFile struct {
	Name    string      `yaml:"name"`
	Display layout.Rect `yaml:"display"`
	Apps    []benchApp  `yaml:"apps"`
	Windows []struct {
		PID       int32  `yaml:"pid"`
		WID       uint32 `yaml:"wid"`
		Unmanaged bool   `yaml:"unmanaged"`
		Offscreen bool   `yaml:"offscreen"`
	} `yaml:"windows"`
	Events []struct {
		Event string `yaml:"event"`
		Delay string `yaml:"delay"`
	} `yaml:"events"`
}

func loadFixture(path string) (benchFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return benchFixture{}, err
	}
	fixture := benchFixture{
		Name:    filepath.Base(path),
		Display: defaultDisplay,
		Windows: make(map[layout.Key]benchWindow),
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		events, err := parseEventLog(string(data))
		if err != nil {
			return benchFixture{}, err
		}
		fixture.Events = events
		return fixture, nil
	}

	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return benchFixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	if file.Name != "" {
		fixture.Name = file.Name
	}
	if file.Display.Width > 0 && file.Display.Height > 0 {
		fixture.Display = file.Display
	}
	fixture.Apps = file.Apps
	for _, w := range file.Windows {
		k := layout.Key{PID: w.PID, WID: w.WID}
		fixture.Windows[k] = benchWindow{PID: w.PID, WID: w.WID, Unmanaged: w.Unmanaged, Offscreen: w.Offscreen}
	}
	for i, raw := range file.Events {
		ev, err := platform.ParseEventLine(raw.Event)
		if err != nil {
			return benchFixture{}, fmt.Errorf("event %d: %w", i+1, err)
		}
		var delay time.Duration
		if raw.Delay != "" {
			delay, err = time.ParseDuration(raw.Delay)
			if err != nil {
				return benchFixture{}, fmt.Errorf("parse delay %q: %w", raw.Delay, err)
			}
		}
		fixture.Events = append(fixture.Events, benchEvent{Event: ev, Delay: delay})
	}
	if len(fixture.Events) == 0 {
		return benchFixture{}, errors.New("fixture contains no events")
	}
	return fixture, nil
}

func parseEventLog(input string) ([]benchEvent, error) {
	lines := strings.Split(input, "\n")
	events := make([]benchEvent, 0, len(lines))
	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		ev, err := platform.ParseEventLine(trimmed)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", idx+1, err)
		}
		events = append(events, benchEvent{Event: ev})
	}
	if len(events) == 0 {
		return nil, errors.New("event log produced no events")
	}
	return events, nil
}

var defaultDisplay = layout.Rect{Width: 2560, Height: 1440}

// syntheticFixture opens windows across three apps, shuffles them between
// workspaces and closes them again.
func syntheticFixture(windows int) benchFixture {
	if windows < 2 {
		windows = 2
	}
	apps := []benchApp{
		{PID: 100, BundleID: "com.microsoft.VSCode"},
		{PID: 200, BundleID: "net.kovidgoyal.kitty"},
		{PID: 300, BundleID: "org.mozilla.firefox"},
	}
	fixture := benchFixture{
		Name:    fmt.Sprintf("synthetic-%d", windows),
		Display: defaultDisplay,
		Apps:    apps,
		Windows: make(map[layout.Key]benchWindow),
	}
	add := func(ev event.Event) {
		fixture.Events = append(fixture.Events, benchEvent{Event: ev})
	}
	for _, app := range apps {
		add(event.Event{Kind: event.AppLaunched, PID: app.PID})
	}
	keys := make([]layout.Key, 0, windows)
	for i := 0; i < windows; i++ {
		app := apps[i%len(apps)]
		k := layout.Key{PID: app.PID, WID: uint32(i + 1)}
		keys = append(keys, k)
		add(event.ForWindow(event.WindowCreated, k.PID, k.WID))
		add(event.ForWindow(event.WindowFocused, k.PID, k.WID))
		if i%4 == 3 {
			add(event.Hotkey(event.HotkeyToggleSplit, 0))
		}
	}
	add(event.Hotkey(event.HotkeyFocusLeft, 0))
	add(event.Hotkey(event.ResizeSplit, 10))
	for i, k := range keys {
		if i%3 != 0 {
			continue
		}
		add(event.ForWindow(event.WindowFocused, k.PID, k.WID))
		add(event.Hotkey(event.HotkeyMoveToWorkspace, 2))
	}
	add(event.Hotkey(event.HotkeyFocusWorkspace, 2))
	add(event.Hotkey(event.HotkeyToggleFullscreen, 0))
	add(event.Hotkey(event.HotkeyFocusWorkspace, 1))
	add(event.ForWindow(event.WindowMinimized, keys[1].PID, keys[1].WID))
	add(event.ForWindow(event.WindowDeminimized, keys[1].PID, keys[1].WID))
	add(event.Hotkey(event.RetileAll, 0))
	for _, k := range keys {
		add(event.ForWindow(event.WindowDestroyed, k.PID, k.WID))
	}
	return fixture
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
