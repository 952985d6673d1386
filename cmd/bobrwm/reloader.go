package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bobrwm/bobrwm/internal/config"
	"github.com/bobrwm/bobrwm/internal/engine"
	"github.com/bobrwm/bobrwm/internal/util"
)

// configReloader re-reads the config file and pushes the compiled result
// into the engine. A rejected file leaves the previous settings in place.
type configReloader struct {
	mu         sync.Mutex
	path       string
	logger     *util.Logger
	engine     *engine.Engine
	lastConfig *config.Config
	// pinLevel keeps a log level given on the command line.
	pinLevel bool
}

func newConfigReloader(path string, logger *util.Logger, eng *engine.Engine, cfg *config.Config) *configReloader {
	return &configReloader{
		path:       path,
		logger:     logger,
		engine:     eng,
		lastConfig: cfg,
	}
}

func (r *configReloader) Reload(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Infof("%s, reloading config", reason)
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Decode(raw)
	if err != nil {
		r.logger.Warnf("config change rejected: %v", err)
		return err
	}
	if lintErrs := cfg.Lint(); len(lintErrs) > 0 {
		r.logLintErrors(lintErrs)
		r.logDiff(cfg)
		return lintErrs[0]
	}
	if r.lastConfig != nil && cfg.Workspaces != r.lastConfig.Workspaces {
		r.logger.Warnf("workspaces changed from %d to %d; restart to apply", r.lastConfig.Workspaces, cfg.Workspaces)
	}
	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		r.logDiff(cfg)
		return fmt.Errorf("compile config: %w", err)
	}

	if !r.pinLevel {
		r.logger.SetLevel(cfg.Level())
	}
	r.engine.Reconfigure(opts)

	if changed := config.ChangedSections(r.lastConfig, cfg); len(changed) > 0 {
		r.logger.Debugf("config sections changed: %s", strings.Join(changed, ", "))
	}
	r.lastConfig = cfg
	r.logger.Infof("config reloaded: %d rule(s), %d keybind(s)", len(cfg.Rules), len(opts.Keybinds))
	return nil
}

// Current returns the last configuration that was accepted.
func (r *configReloader) Current() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastConfig
}

func (r *configReloader) logDiff(rejected *config.Config) {
	diff := config.Diff(r.lastConfig, rejected)
	if diff == "" {
		r.logger.Warnf("config change rejected; no setting differs from the last valid config")
		return
	}
	r.logger.Warnf("config change rejected; changed %s vs last valid config:\n%s",
		strings.Join(config.ChangedSections(r.lastConfig, rejected), ", "), diff)
}

func (r *configReloader) logLintErrors(errs []config.LintError) {
	r.logger.Warnf("config validation failed with %d issue(s):", len(errs))
	for _, lintErr := range errs {
		if lintErr.Path != "" {
			r.logger.Warnf(" - %s: %s", lintErr.Path, lintErr.Message)
			continue
		}
		r.logger.Warnf(" - %s", lintErr.Message)
	}
}
