package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bobrwm/bobrwm/internal/config"
	"github.com/bobrwm/bobrwm/internal/engine"
	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/util"
)

func TestPercentile(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		name     string
		values   []time.Duration
		p        float64
		expected time.Duration
	}{
		{name: "empty", values: nil, p: 0.5, expected: 0},
		{name: "below range", values: []time.Duration{ms, 2 * ms}, p: -0.1, expected: ms},
		{name: "above range", values: []time.Duration{ms, 2 * ms}, p: 1.2, expected: 2 * ms},
		{name: "median", values: []time.Duration{ms, 2 * ms, 3 * ms}, p: 0.5, expected: 2 * ms},
		{name: "p95", values: []time.Duration{ms, 2 * ms, 3 * ms, 4 * ms, 5 * ms}, p: 0.95, expected: 5 * ms},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := percentile(tc.values, tc.p); got != tc.expected {
				t.Fatalf("percentile(%v, %f) = %s, want %s", tc.values, tc.p, got, tc.expected)
			}
		})
	}
}

func TestEventsPerSecondAndSafeDivide(t *testing.T) {
	if got := eventsPerSecond(0, 10); got != 0 {
		t.Fatalf("eventsPerSecond(0, 10) = %f", got)
	}
	if got := eventsPerSecond(2*time.Second, 10); got != 5 {
		t.Fatalf("eventsPerSecond(2s, 10) = %f, want 5", got)
	}
	if got := safeDivide(10, 0); got != 0 {
		t.Fatalf("safeDivide(10, 0) = %f", got)
	}
	if got := safeDivide(9, 3); got != 3 {
		t.Fatalf("safeDivide(9, 3) = %f", got)
	}
}

func TestFormatBytesSigned(t *testing.T) {
	cases := map[int64]string{
		0:     "0 B (0.00 MiB)",
		1024:  "1024 B (0.00 MiB)",
		-2048: "-2048 B (0.00 MiB)",
	}
	for in, want := range cases {
		if got := formatBytesSigned(in); got != want {
			t.Fatalf("formatBytesSigned(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestPrintHumanSummary(t *testing.T) {
	summary := benchSummary{
		Fixture:            "test",
		Iterations:         2,
		WarmupIterations:   1,
		BatchSize:          4,
		EventsPerIteration: 8,
		TotalEvents:        16,
		Batches:            4,
		Retiles:            6,
		Placements:         24,
		PlacementsPerEvent: 1.5,
		Latency:            benchLatencyStats{Min: 1, Mean: 2, Median: 1.5, P95: 3.5, Max: 4},
		Allocations:        benchAllocationStats{Total: 120, PerEvent: 7.5},
		EventsPerSecond:    300,
	}
	var buf bytes.Buffer
	if err := printHumanSummary(summary, &buf); err != nil {
		t.Fatalf("printHumanSummary returned error: %v", err)
	}
	output := buf.String()
	for _, want := range []string{
		"2 (+1 warmup)",
		"4 (size 4)",
		"24 (1.50 / event)",
		"min 1.00 | mean 2.00 | median 1.50 | p95 3.50 | max 4.00",
		"120 total (7.50 / event)",
		"300.00",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected summary to contain %q, got:\n%s", want, output)
		}
	}
}

func TestBuildReport(t *testing.T) {
	fixture := benchFixture{Name: "fixture", Events: make([]benchEvent, 3)}
	results := []iterationResult{
		{Duration: 10 * time.Millisecond, Batches: []time.Duration{time.Millisecond, 3 * time.Millisecond}, Retiles: 2, Placements: 4},
		{Duration: 20 * time.Millisecond, Batches: []time.Duration{2 * time.Millisecond}, Retiles: 1, Placements: 2},
	}
	var start, end runtime.MemStats
	start.Mallocs, end.Mallocs = 10, 70
	report := buildReport(fixture, 1, 2, results, start, end)

	s := report.Summary
	if s.Iterations != 2 || s.TotalEvents != 6 || s.Batches != 3 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.Retiles != 3 || s.Placements != 6 || s.PlacementsPerEvent != 1 {
		t.Fatalf("unexpected retile/placement totals: %+v", s)
	}
	if s.Latency.Min != 1 || s.Latency.Max != 3 || s.Latency.Mean != 2 {
		t.Fatalf("unexpected latency: %+v", s.Latency)
	}
	if s.Allocations.Total != 60 || s.Allocations.PerEvent != 10 {
		t.Fatalf("unexpected allocations: %+v", s.Allocations)
	}
	if len(report.DurationsMs) != 3 || len(report.Iterations) != 2 || report.Iterations[1].Index != 2 {
		t.Fatalf("unexpected report detail: %+v", report)
	}
}

func TestParseEventLog(t *testing.T) {
	events, err := parseEventLog(`
# comment
window-created>>10,1
1>>10,2,0,0,300,200
focus-workspace>>2
`)
	if err != nil {
		t.Fatalf("parseEventLog: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].Event.Kind != event.WindowCreated || !events[1].Event.HasFrame {
		t.Fatalf("unexpected second event: %+v", events[1].Event)
	}
	if events[2].Event.Kind != event.HotkeyFocusWorkspace || events[2].Event.Arg != 2 {
		t.Fatalf("unexpected third event: %+v", events[2].Event)
	}

	if _, err := parseEventLog("bogus>>1"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := parseEventLog("# nothing\n"); err == nil {
		t.Fatalf("expected error for empty log")
	}
}

func TestLoadFixtureYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	contents := `name: two-apps
display: {x: 0, y: 25, w: 1280, h: 775}
apps:
  - pid: 10
    bundleId: com.example.editor
windows:
  - pid: 10
    wid: 2
    unmanaged: true
events:
  - event: window-created>>10,1
    delay: 5ms
  - event: window-created>>10,2
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	fixture, err := loadFixture(path)
	if err != nil {
		t.Fatalf("loadFixture: %v", err)
	}
	if fixture.Name != "two-apps" || fixture.Display != (layout.Rect{Y: 25, Width: 1280, Height: 775}) {
		t.Fatalf("unexpected fixture header: %+v", fixture)
	}
	if len(fixture.Events) != 2 || fixture.Events[0].Delay != 5*time.Millisecond {
		t.Fatalf("unexpected events: %+v", fixture.Events)
	}
	if w := fixture.Windows[layout.Key{PID: 10, WID: 2}]; !w.Unmanaged {
		t.Fatalf("window 10/2 should be unmanaged: %+v", fixture.Windows)
	}
}

func TestLoadFixtureRejectsBadDelay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	contents := "events:\n  - event: retile-all\n    delay: soon\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := loadFixture(path); err == nil || !strings.Contains(err.Error(), "parse delay") {
		t.Fatalf("expected delay error, got %v", err)
	}
}

func TestReplaySyntheticFixture(t *testing.T) {
	opts, err := engine.OptionsFromConfig(config.Default())
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	logger := util.NewLoggerWithWriter(util.LevelError, io.Discard)
	fixture := syntheticFixture(6)

	for _, batch := range []int{1, 8} {
		res, err := replayIteration(context.Background(), fixture, opts, logger, batch, false)
		if err != nil {
			t.Fatalf("batch %d: replayIteration: %v", batch, err)
		}
		wantBatches := (len(fixture.Events) + batch - 1) / batch
		if len(res.Batches) != wantBatches {
			t.Fatalf("batch %d: got %d batches, want %d", batch, len(res.Batches), wantBatches)
		}
		if res.Placements == 0 || res.Retiles == 0 {
			t.Fatalf("batch %d: expected retiles and placements, got %+v", batch, res)
		}
	}
}

func TestRunWritesReport(t *testing.T) {
	out := filepath.Join(t.TempDir(), "reports", "bench.json")
	opts := benchOptions{
		iterations: 2,
		batchSize:  4,
		windows:    4,
		logLevel:   "error",
		outputPath: out,
	}
	if err := run(opts, io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report benchReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Summary.Fixture != "synthetic-4" || report.Summary.Iterations != 2 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
}

func TestRunValidatesFlags(t *testing.T) {
	for _, opts := range []benchOptions{
		{iterations: 0, batchSize: 1},
		{iterations: 1, warmup: -1, batchSize: 1},
		{iterations: 1, batchSize: 0},
	} {
		if err := run(opts, io.Discard); err == nil {
			t.Fatalf("expected error for %+v", opts)
		}
	}
}
