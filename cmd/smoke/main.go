package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bobrwm/bobrwm/internal/config"
	"github.com/bobrwm/bobrwm/internal/engine"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/platform"
	"github.com/bobrwm/bobrwm/internal/util"
)

const smokeTimeout = 3 * time.Second

type smokeOptions struct {
	configPath string
	logLevel   string
	headless   bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		exitErr(err)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := smokeOptions{}
	cmd := &cobra.Command{
		Use:           "bobrwm-smoke",
		Short:         "Print the layout bobrwm would apply without moving any window",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := util.NewLogger(util.ParseLogLevel(opts.logLevel))
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			var backend platform.Platform
			if opts.headless {
				backend = platform.NewHeadless(layout.Rect{Width: 1440, Height: 900})
			} else {
				cmdPath, eventPath, err := platform.DefaultBridgePaths()
				if err != nil {
					return fmt.Errorf("resolve shim sockets: %w", err)
				}
				backend = platform.NewBridge(cmdPath, eventPath)
			}
			fmt.Fprintf(stdout, "Loaded config from %s\n", opts.configPath)
			return preview(cmd.Context(), backend, cfg, logger, stdout)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultPath(), "path to YAML config")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "preview against an empty in-memory window server")
	return cmd
}

// preview bootstraps an engine against backend and prints the placements
// of the first batch. The engine loop never starts, so nothing is applied.
func preview(ctx context.Context, backend platform.Platform, cfg *config.Config, logger *util.Logger, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("compile config: %w", err)
	}

	fmt.Fprintln(w, "\n=== Configuration ===")
	if err := marshalYAML(w, cfg); err != nil {
		logger.Warnf("failed to print config: %v", err)
	}

	eng := engine.New(readOnly{backend}, logger, opts)
	ctx, cancel := context.WithTimeout(ctx, smokeTimeout)
	defer cancel()
	if err := eng.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	res := eng.DrainAndApply(ctx)

	view, err := eng.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	fmt.Fprintln(w, "\n=== Model Snapshot ===")
	if err := marshalJSON(w, view); err != nil {
		logger.Warnf("failed to print model snapshot: %v", err)
	}

	fmt.Fprintln(w, "\n=== Planned Placements ===")
	if len(res.Plan.Placements) == 0 {
		fmt.Fprintln(w, "No planned placements")
	}
	for _, p := range res.Plan.Placements {
		fmt.Fprintf(w, "- %s\n", formatPlacement(p))
	}
	if res.Focus != nil {
		fmt.Fprintf(w, "focus %s\n", *res.Focus)
	}

	fmt.Fprintln(w, "\n=== Rule Evaluation Checks ===")
	bundles := make(map[string]bool)
	for _, win := range view.Windows {
		if win.BundleID != "" {
			bundles[win.BundleID] = true
		}
	}
	if len(bundles) == 0 {
		fmt.Fprintln(w, "No applications with a bundle identifier")
		return nil
	}
	ids := make([]string, 0, len(bundles))
	for id := range bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := opts.Rules.Evaluate(id)
		if !d.Matched() {
			fmt.Fprintf(w, "- %s: no rule\n", id)
			continue
		}
		var effects []string
		if d.Float {
			effects = append(effects, "float")
		}
		if d.Workspace > 0 {
			effects = append(effects, fmt.Sprintf("workspace %d", d.Workspace))
		}
		fmt.Fprintf(w, "- %s: %s (%s)\n", id, strings.Join(effects, ", "), strings.Join(d.Rules, ", "))
	}
	return nil
}

// readOnly hides optional backend capabilities that change window server
// state, such as installing keybinds, while keeping display enumeration.
type readOnly struct {
	platform.Platform
}

func (r readOnly) Displays(ctx context.Context) ([]platform.DisplayInfo, error) {
	return platform.Displays(ctx, r.Platform)
}

func formatPlacement(p layout.Placement) string {
	f := p.Frame
	return fmt.Sprintf("%s -> %.0f,%.0f %.0fx%.0f", p.Window, f.X, f.Y, f.Width, f.Height)
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func marshalYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func marshalJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
