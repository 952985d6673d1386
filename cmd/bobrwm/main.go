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

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"

	"github.com/bobrwm/bobrwm/internal/config"
	"github.com/bobrwm/bobrwm/internal/control"
	"github.com/bobrwm/bobrwm/internal/engine"
	"github.com/bobrwm/bobrwm/internal/keybind"
	"github.com/bobrwm/bobrwm/internal/layout"
	"github.com/bobrwm/bobrwm/internal/platform"
	"github.com/bobrwm/bobrwm/internal/util"
)

const bootstrapTimeout = 5 * time.Second

type daemonOptions struct {
	configPath string
	socketPath string
	logLevel   string
	headless   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitErr(err)
	}
}

func newRootCmd() *cobra.Command {
	opts := daemonOptions{}
	cmd := &cobra.Command{
		Use:           "bobrwm",
		Short:         "Tiling window manager daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultPath(), "path to YAML config")
	cmd.Flags().StringVar(&opts.socketPath, "socket", "", "control socket path (default $BOBRWM_SOCKET or the runtime dir)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (trace|debug|info|warn|error); overrides the config")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run against an in-memory window server")
	return cmd
}

func run(opts daemonOptions) error {
	logger := util.NewLogger(util.LevelInfo)

	if opts.socketPath == "" {
		path, err := control.DefaultSocketPath()
		if err != nil {
			return fmt.Errorf("resolve control socket: %w", err)
		}
		opts.socketPath = path
	}

	cfgPath, err := filepath.Abs(opts.configPath)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	cfgPath = filepath.Clean(cfgPath)
	cfg, raw, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if raw == nil {
		logger.Infof("no config at %s, using defaults", cfgPath)
	}
	logger.SetLevel(cfg.Level())
	if opts.logLevel != "" {
		logger.SetLevel(util.ParseLogLevel(opts.logLevel))
	}

	engOpts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("compile config: %w", err)
	}

	var (
		backend platform.Platform
		bridge  *platform.Bridge
	)
	if opts.headless {
		backend = platform.NewHeadless(layout.Rect{Width: 1440, Height: 900})
		logger.Infof("using headless window server")
	} else {
		cmdPath, eventPath, err := platform.DefaultBridgePaths()
		if err != nil {
			return fmt.Errorf("resolve shim sockets: %w", err)
		}
		bridge = platform.NewBridge(cmdPath, eventPath)
		backend = bridge
		logger.Infof("using shim at %s", cmdPath)
	}

	eng := engine.New(backend, logger, engOpts)
	if bridge != nil {
		bridge.SetKeyHandler(func(code uint16, mods uint8) bool {
			return eng.Keys().HandleKey(code, keybind.Modifier(mods))
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bootCtx, bootCancel := context.WithTimeout(ctx, bootstrapTimeout)
	err = eng.Bootstrap(bootCtx)
	bootCancel()
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	reloader := newConfigReloader(cfgPath, logger, eng, cfg)
	reloader.pinLevel = opts.logLevel != ""

	services := []suture.Service{
		engineService{engine: eng},
		controlService{path: opts.socketPath, engine: eng, logger: logger, reload: reloader.Reload},
	}
	if bridge != nil {
		services = append(services, bridgeEventsService{source: bridge, engine: eng, logger: logger})
	}
	if _, err := os.Stat(filepath.Dir(cfgPath)); err == nil {
		services = append(services, configWatchService{path: cfgPath, reload: reloader.Reload, logger: logger})
	} else {
		logger.Debugf("config directory missing, hot reload disabled")
	}

	sup := newSupervisor(logger, services...)
	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	logger.Infof("bobrwm stopped")
	return nil
}

// loadConfig reads path, returning defaults and nil bytes when the file
// does not exist.
func loadConfig(path string) (*config.Config, []byte, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return cfg, raw, nil
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
