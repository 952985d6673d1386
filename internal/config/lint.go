package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/bobrwm/bobrwm/internal/event"
	"github.com/bobrwm/bobrwm/internal/layout"
)

// LintError describes one configuration problem at a YAML path.
type LintError struct {
	Path    string
	Message string
}

func (e LintError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

var knownLogLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "error": {},
}

// Lint reports every problem in the configuration rather than stopping at
// the first one.
func (c *Config) Lint() []LintError {
	var errs []LintError
	add := func(path, format string, args ...interface{}) {
		errs = append(errs, LintError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if c.Workspaces < 1 || c.Workspaces > 32 {
		add("workspaces", "must be between 1 and 32, got %d", c.Workspaces)
	}
	if _, ok := layout.ParseOrientation(strings.ToLower(c.DefaultSplit)); !ok {
		add("defaultSplit", "must be vertical or horizontal, got %q", c.DefaultSplit)
	}
	if c.SplitRatio < layout.MinRatio || c.SplitRatio > layout.MaxRatio {
		add("splitRatio", "must be between %.1f and %.1f, got %v", layout.MinRatio, layout.MaxRatio, c.SplitRatio)
	}
	if c.Gaps.Inner < 0 {
		add("gaps.inner", "cannot be negative")
	}
	if c.Gaps.Outer < 0 {
		add("gaps.outer", "cannot be negative")
	}
	if c.QueueCapacity < 16 {
		add("queueCapacity", "must be at least 16, got %d", c.QueueCapacity)
	}
	if _, ok := knownLogLevels[strings.ToLower(strings.TrimSpace(c.LogLevel))]; !ok {
		add("logLevel", "unknown level %q", c.LogLevel)
	}

	for i, r := range c.Rules {
		path := fmt.Sprintf("rules[%d]", i)
		if r.BundleID == "" && len(r.AnyBundleID) == 0 && r.BundleIDRegex == "" {
			add(path, "must define bundleId, anyBundleId, or bundleIdRegex")
		}
		if r.BundleIDRegex != "" {
			if _, err := regexp.Compile(r.BundleIDRegex); err != nil {
				add(path+".bundleIdRegex", "invalid regex: %v", err)
			}
		}
		if r.Workspace < 0 || r.Workspace > c.Workspaces {
			add(path+".workspace", "must reference a workspace between 1 and %d, got %d", c.Workspaces, r.Workspace)
		}
		if !r.Float && r.Workspace == 0 {
			add(path, "must set float or workspace")
		}
	}

	seen := make(map[string]int, len(c.Keybinds))
	for i, spec := range c.Keybinds {
		path := fmt.Sprintf("keybinds[%d]", i)
		b, err := spec.Compile()
		if err != nil {
			add(path, "%v", err)
			continue
		}
		if (b.Action == event.HotkeyFocusWorkspace || b.Action == event.HotkeyMoveToWorkspace) && int(b.Arg) > c.Workspaces {
			add(path+".arg", "workspace %d exceeds configured workspaces (%d)", b.Arg, c.Workspaces)
		}
		chord := b.Chord()
		if first, dup := seen[chord]; dup {
			add(path+".key", "duplicate chord %q shadowed by keybinds[%d]", chord, first)
			continue
		}
		seen[chord] = i
	}
	return errs
}

// LintFile decodes a configuration file and lints it. Read and decode
// failures are returned as an error; semantic problems as lint errors.
func LintFile(path string) ([]LintError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return cfg.Lint(), nil
}
