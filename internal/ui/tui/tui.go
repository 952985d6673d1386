package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bobrwm/bobrwm/internal/control/client"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/state"
)

const (
	defaultRefresh = 500 * time.Millisecond
	bundleWidth    = 40
)

// Renderer periodically polls the daemon and renders a textual dashboard.
type Renderer struct {
	Client  *client.Client
	Writer  io.Writer
	Refresh time.Duration
}

// Snapshot is everything one dashboard frame shows.
type Snapshot struct {
	Displays   []client.Display
	Workspaces []client.Workspace
	Windows    []client.Window
	Stats      *client.Stats
}

// New returns a renderer configured with sensible defaults.
func New(cli *client.Client, w io.Writer) *Renderer {
	return &Renderer{Client: cli, Writer: w, Refresh: defaultRefresh}
}

// Run starts the render loop until the context is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Writer == nil {
		r.Writer = os.Stdout
	}
	if r.Client == nil {
		return fmt.Errorf("tui renderer requires a control client")
	}

	refresh := r.Refresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	fmt.Fprint(r.Writer, "\033[?25l")
	defer fmt.Fprint(r.Writer, "\033[?25h")

	r.render(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.render(ctx)
		}
	}
}

func (r *Renderer) render(ctx context.Context) {
	var buf bytes.Buffer
	buf.WriteString("\033[H\033[2J")
	buf.WriteString("bobrwm dashboard (Ctrl+C to exit)\n")
	buf.WriteString(time.Now().Format(time.RFC1123))
	buf.WriteString("\n\n")

	snap, err := Fetch(ctx, r.Client)
	if err != nil {
		buf.WriteString(fmt.Sprintf("error: %v\n", err))
		fmt.Fprint(r.Writer, buf.String())
		return
	}
	buf.WriteString(Render(snap))
	fmt.Fprint(r.Writer, buf.String())
}

// Fetch collects one dashboard snapshot from the daemon.
func Fetch(ctx context.Context, cli *client.Client) (Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.Displays, err = cli.Displays(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Workspaces, err = cli.Workspaces(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Windows, err = cli.Windows(ctx); err != nil {
		return Snapshot{}, err
	}
	stats, err := cli.Stats(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Stats = &stats
	return snap, nil
}

// Render formats a snapshot without terminal control sequences.
func Render(snap Snapshot) string {
	var b strings.Builder
	b.WriteString(renderDisplays(snap.Displays))
	b.WriteString(renderWorkspaces(snap.Workspaces))
	b.WriteString(renderWindows(snap.Windows, snap.Workspaces))
	if snap.Stats != nil {
		b.WriteString(RenderStats(*snap.Stats))
	}
	return b.String()
}

func renderDisplays(displays []client.Display) string {
	var b strings.Builder
	b.WriteString("Displays:\n")
	if len(displays) == 0 {
		b.WriteString("  (none)\n\n")
		return b.String()
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGeometry\tActive WS\tWorkspaces")
	for _, d := range displays {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", d.ID, formatRect(d.Frame), d.Active, joinInts(d.Workspaces))
	}
	tw.Flush()
	b.WriteByte('\n')
	return b.String()
}

func renderWorkspaces(workspaces []client.Workspace) string {
	var b strings.Builder
	b.WriteString("Workspaces:\n")
	if len(workspaces) == 0 {
		b.WriteString("  (none)\n\n")
		return b.String()
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDisplay\tTiled\tFloating\tFocused")
	for _, ws := range workspaces {
		if len(ws.Tiled) == 0 && len(ws.Floating) == 0 && !ws.Active {
			continue
		}
		id := fmt.Sprintf("%d", ws.ID)
		if ws.Active {
			id += "*"
		}
		focused := "-"
		if ws.Focused != nil {
			focused = ws.Focused.String()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", id, ws.Display, len(ws.Tiled), len(ws.Floating), focused)
	}
	tw.Flush()
	b.WriteByte('\n')
	return b.String()
}

func renderWindows(windows []client.Window, workspaces []client.Workspace) string {
	var b strings.Builder
	b.WriteString("Windows:\n")
	if len(windows) == 0 {
		b.WriteString("  (none)\n\n")
		return b.String()
	}
	byID := make(map[int]client.Workspace, len(workspaces))
	for _, ws := range workspaces {
		byID[ws.ID] = ws
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Window\tBundle\tWorkspace\tFrame\tState")
	for _, w := range windows {
		ws := byID[w.Workspace]
		key := w.Key().String()
		if ws.Focused != nil && *ws.Focused == w.Key() {
			key = "*" + key
		}
		bundle := w.BundleID
		if bundle == "" {
			bundle = "(unknown)"
		}
		label := "-"
		if w.Workspace > 0 {
			label = fmt.Sprintf("%d", w.Workspace)
			if ws.Active {
				label += "*"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", key, truncate(bundle, bundleWidth), label, formatRect(w.Frame), windowState(w, ws))
	}
	tw.Flush()
	b.WriteByte('\n')
	return b.String()
}

// RenderStats formats the engine counters block of the dashboard.
func RenderStats(stats client.Stats) string {
	var b strings.Builder
	b.WriteString("Engine:\n")
	tot := stats.Metrics.Totals
	fmt.Fprintf(&b, "  queue %d/%d  pushed %d  dropped %d\n", stats.Queue.Len, stats.Queue.Cap, stats.Queue.Pushed, stats.Queue.Dropped)
	fmt.Fprintf(&b, "  events %d  batches %d (max %d)  retiles %d  placements %d (failed %d)\n",
		tot.Events, tot.Batches, tot.MaxBatch, tot.Retiles, tot.Placements, tot.PlacementErrors)
	if n := len(stats.History); n > 0 {
		last := stats.History[n-1]
		fmt.Fprintf(&b, "  last batch: %d event(s) in %s, retiled %s\n", last.Events, last.Duration, joinInts(last.Retiled))
	}
	return b.String()
}

func formatRect(rect layout.Rect) string {
	return fmt.Sprintf("%.0fx%.0f @ %.0f,%.0f", rect.Width, rect.Height, rect.X, rect.Y)
}

func joinInts(values []int) string {
	if len(values) == 0 {
		return "-"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}

func windowState(w client.Window, ws state.WorkspaceView) string {
	var parts []string
	switch {
	case !w.Managed:
		parts = append(parts, "unmanaged")
	case w.Floating:
		parts = append(parts, "floating")
	case !w.OnScreen:
		parts = append(parts, "background")
	default:
		parts = append(parts, "tiled")
	}
	if w.Hidden {
		parts = append(parts, "minimized")
	}
	if ws.Fullscreen != nil && *ws.Fullscreen == w.Key() {
		parts = append(parts, "fullscreen")
	}
	return strings.Join(parts, ", ")
}
