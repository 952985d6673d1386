package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bobrwm/bobrwm/internal/config"
	"github.com/bobrwm/bobrwm/internal/control/client"
	"github.com/bobrwm/bobrwm/internal/keybind"
	"github.com/bobrwm/bobrwm/internal/ui/tui"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	keyColor     = color.New(color.FgYellow)
	activeColor  = color.New(color.FgCyan)
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	out     io.Writer
	errOut  io.Writer
	socket  string
	timeout time.Duration
	format  string
	noColor bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "bobrctl",
		Short:         "Control a running bobrwm daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.noColor {
				color.NoColor = true
			}
			switch c.format {
			case "text", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unsupported format %q (text|json|yaml)", c.format)
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	flags := root.PersistentFlags()
	flags.StringVar(&c.socket, "socket", "", "control socket path (default $BOBRWM_SOCKET or the runtime dir)")
	flags.DurationVar(&c.timeout, "timeout", 3*time.Second, "control request timeout")
	flags.StringVarP(&c.format, "format", "o", "text", "output format (text|json|yaml)")
	flags.BoolVar(&c.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		c.pingCmd(),
		c.windowsCmd(),
		c.workspacesCmd(),
		c.displaysCmd(),
		c.workspaceActionCmd("focus-workspace", "Show workspace N on the focused display", func(ctx context.Context, cl *client.Client, n int) error {
			return cl.FocusWorkspace(ctx, n)
		}),
		c.workspaceActionCmd("move", "Move the focused window to workspace N", func(ctx context.Context, cl *client.Client, n int) error {
			return cl.MoveWindowToWorkspace(ctx, n)
		}),
		c.focusCmd(),
		c.simpleCmd("toggle-split", "Flip the split of the focused window's parent", (*client.Client).ToggleSplit),
		c.simpleCmd("toggle-fullscreen", "Toggle fullscreen for the focused window", (*client.Client).ToggleFullscreen),
		c.simpleCmd("toggle-float", "Toggle floating for the focused window", (*client.Client).ToggleFloat),
		c.resizeCmd(),
		c.simpleCmd("retile", "Retile every workspace", (*client.Client).Retile),
		c.simpleCmd("reload", "Reload the daemon configuration", (*client.Client).Reload),
		c.statsCmd(),
		c.keybindsCmd(),
		c.sendCmd(),
		c.checkCmd(),
		c.watchCmd(),
	)
	return root
}

func (c *cli) client() (*client.Client, error) {
	cl, err := client.New(c.socket)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return cl, nil
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// call runs fn against a fresh client with the request timeout applied.
func (c *cli) call(cmd *cobra.Command, fn func(ctx context.Context, cl *client.Client) error) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := c.context(cmd)
	defer cancel()
	return fn(ctx, cl)
}

// emit writes v as JSON or YAML, or calls text for the default format.
func (c *cli) emit(v any, text func(io.Writer)) error {
	switch c.format {
	case "json":
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(c.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(c.out)
		return nil
	}
}

func (c *cli) ok(msg string) {
	if c.format != "text" {
		_ = c.emit(map[string]bool{"ok": true}, nil)
		return
	}
	successColor.Fprintf(c.out, "✓ %s\n", msg)
}

func (c *cli) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				start := time.Now()
				if err := cl.Ping(ctx); err != nil {
					return err
				}
				c.ok(fmt.Sprintf("pong (%s)", time.Since(start).Round(time.Microsecond)))
				return nil
			})
		},
	}
}

func (c *cli) windowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "windows",
		Short: "List tracked windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				windows, err := cl.Windows(ctx)
				if err != nil {
					return err
				}
				return c.emit(windows, func(w io.Writer) {
					if len(windows) == 0 {
						fmt.Fprintln(w, "no windows")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					keyColor.Fprintln(tw, "WINDOW\tWORKSPACE\tSTATE\tFRAME\tBUNDLE")
					for _, win := range windows {
						fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", win.Key(), win.Workspace, windowState(win), formatFrame(win), win.BundleID)
					}
					tw.Flush()
				})
			})
		},
	}
}

func (c *cli) workspacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workspaces",
		Short: "List workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				workspaces, err := cl.Workspaces(ctx)
				if err != nil {
					return err
				}
				return c.emit(workspaces, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					keyColor.Fprintln(tw, "ID\tDISPLAY\tTILED\tFLOATING\tFOCUSED")
					for _, ws := range workspaces {
						focused := "-"
						if ws.Focused != nil {
							focused = ws.Focused.String()
						}
						line := fmt.Sprintf("%d\t%d\t%d\t%d\t%s\n", ws.ID, ws.Display, len(ws.Tiled), len(ws.Floating), focused)
						if ws.Active {
							activeColor.Fprint(tw, line)
							continue
						}
						fmt.Fprint(tw, line)
					}
					tw.Flush()
				})
			})
		},
	}
}

func (c *cli) displaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "displays",
		Short: "List displays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				displays, err := cl.Displays(ctx)
				if err != nil {
					return err
				}
				return c.emit(displays, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					keyColor.Fprintln(tw, "ID\tFRAME\tACTIVE\tWORKSPACES")
					for _, d := range displays {
						ids := make([]string, 0, len(d.Workspaces))
						for _, id := range d.Workspaces {
							ids = append(ids, strconv.Itoa(id))
						}
						fmt.Fprintf(tw, "%d\t%.0fx%.0f+%.0f+%.0f\t%d\t%s\n", d.ID, d.Frame.Width, d.Frame.Height, d.Frame.X, d.Frame.Y, d.Active, strings.Join(ids, ","))
					}
					tw.Flush()
				})
			})
		},
	}
}

func (c *cli) workspaceActionCmd(use, short string, fn func(context.Context, *client.Client, int) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " N",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid workspace %q", args[0])
			}
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				if err := fn(ctx, cl, n); err != nil {
					return err
				}
				c.ok(fmt.Sprintf("%s %d", use, n))
				return nil
			})
		},
	}
}

func (c *cli) focusCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "focus left|right|up|down",
		Short:     "Focus the neighbouring tiled window",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"left", "right", "up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				if err := cl.Focus(ctx, args[0]); err != nil {
					return err
				}
				c.ok("focus " + args[0])
				return nil
			})
		},
	}
}

func (c *cli) resizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resize DELTA",
		Short: "Grow (positive) or shrink the focused window's split by DELTA percent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid delta %q", args[0])
			}
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				if err := cl.Resize(ctx, delta); err != nil {
					return err
				}
				c.ok(fmt.Sprintf("resize %+d", delta))
				return nil
			})
		},
	}
}

func (c *cli) simpleCmd(use, short string, fn func(*client.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				if err := fn(cl, ctx); err != nil {
					return err
				}
				c.ok(use)
				return nil
			})
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue and batch counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				stats, err := cl.Stats(ctx)
				if err != nil {
					return err
				}
				return c.emit(stats, func(w io.Writer) {
					fmt.Fprint(w, tui.RenderStats(stats))
				})
			})
		},
	}
}

func (c *cli) keybindsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keybinds",
		Short: "Show the active keybind table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				specs, err := cl.Keybinds(ctx)
				if err != nil {
					return err
				}
				return c.emit(specs, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					keyColor.Fprintln(tw, "CHORD\tACTION\tARG")
					for _, s := range specs {
						arg := ""
						if s.Arg != 0 {
							arg = strconv.Itoa(int(s.Arg))
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Key, s.Action, arg)
					}
					tw.Flush()
				})
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set FILE",
		Short: "Replace the keybind table with the YAML list in FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := readKeybindFile(args[0])
			if err != nil {
				return err
			}
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				n, err := cl.SetKeybinds(ctx, specs)
				if err != nil {
					return err
				}
				c.ok(fmt.Sprintf("installed %d keybind(s)", n))
				return nil
			})
		},
	})
	return cmd
}

// readKeybindFile accepts either a bare list of keybinds or a config file
// with a keybinds section.
func readKeybindFile(path string) ([]keybind.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keybinds: %w", err)
	}
	var specs []keybind.Spec
	if err := yaml.Unmarshal(data, &specs); err == nil && len(specs) > 0 {
		return specs, nil
	}
	var doc struct {
		Keybinds []keybind.Spec `yaml:"keybinds"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode keybinds: %w", err)
	}
	if len(doc.Keybinds) == 0 {
		return nil, errors.New("no keybinds found")
	}
	return doc.Keybinds, nil
}

func (c *cli) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send NAME [ARG...]",
		Short: "Send a raw control command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdArgs := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				if n, err := strconv.Atoi(a); err == nil {
					cmdArgs = append(cmdArgs, n)
					continue
				}
				cmdArgs = append(cmdArgs, a)
			}
			return c.call(cmd, func(ctx context.Context, cl *client.Client) error {
				var data json.RawMessage
				if err := cl.Do(ctx, args[0], cmdArgs, &data); err != nil {
					return err
				}
				var v any
				if len(data) > 0 {
					if err := json.Unmarshal(data, &v); err != nil {
						return fmt.Errorf("decode data: %w", err)
					}
				}
				if c.format == "text" {
					if v == nil {
						c.ok(args[0])
						return nil
					}
					enc := json.NewEncoder(c.out)
					enc.SetIndent("", "  ")
					return enc.Encode(v)
				}
				return c.emit(v, nil)
			})
		},
	}
}

func (c *cli) checkCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.DefaultPath()
			}
			return runCheck(configPath, c.out, c.errOut)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (default ~/.config/bobrwm/config.yaml)")
	return cmd
}

func runCheck(path string, stdout, stderr io.Writer) error {
	lintErrs, err := config.LintFile(path)
	if err != nil {
		return err
	}
	if len(lintErrs) == 0 {
		successColor.Fprintln(stdout, "Configuration OK")
		return nil
	}
	errorColor.Fprintf(stderr, "Configuration has %d issue(s):\n", len(lintErrs))
	for _, lintErr := range lintErrs {
		fmt.Fprintf(stderr, "- %s\n", lintErr.Error())
	}
	return fmt.Errorf("configuration validation failed")
}

func (c *cli) watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of displays, workspaces and windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			renderer := tui.New(cl, c.out)
			renderer.Refresh = interval
			if err := renderer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "refresh interval")
	return cmd
}

func windowState(w client.Window) string {
	var parts []string
	switch {
	case !w.Managed:
		parts = append(parts, "unmanaged")
	case w.Floating:
		parts = append(parts, "floating")
	default:
		parts = append(parts, "tiled")
	}
	if w.Hidden {
		parts = append(parts, "minimized")
	}
	if !w.OnScreen {
		parts = append(parts, "offscreen")
	}
	return strings.Join(parts, ",")
}

func formatFrame(w client.Window) string {
	f := w.Frame
	return fmt.Sprintf("%.0fx%.0f+%.0f+%.0f", f.Width, f.Height, f.X, f.Y)
}
