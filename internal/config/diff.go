package config

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var diffOptions = []cmp.Option{cmpopts.EquateEmpty()}

// Diff compares two decoded configurations. Both carry their defaults, so
// omitting a key and spelling out its default compare equal. It returns ""
// when nothing changed.
func Diff(previous, current *Config) string {
	if previous == nil {
		previous = Default()
	}
	if current == nil {
		current = Default()
	}
	return cmp.Diff(previous, current, diffOptions...)
}

// ChangedSections lists the top-level keys whose values differ, in
// document order.
func ChangedSections(previous, current *Config) []string {
	if previous == nil {
		previous = Default()
	}
	if current == nil {
		current = Default()
	}
	sections := []struct {
		name string
		a, b any
	}{
		{"workspaces", previous.Workspaces, current.Workspaces},
		{"defaultSplit", previous.DefaultSplit, current.DefaultSplit},
		{"splitRatio", previous.SplitRatio, current.SplitRatio},
		{"gaps", previous.Gaps, current.Gaps},
		{"queueCapacity", previous.QueueCapacity, current.QueueCapacity},
		{"logLevel", previous.LogLevel, current.LogLevel},
		{"metrics", previous.MetricsEnabled(), current.MetricsEnabled()},
		{"rules", previous.Rules, current.Rules},
		{"keybinds", previous.Keybinds, current.Keybinds},
	}
	var changed []string
	for _, s := range sections {
		if !cmp.Equal(s.a, s.b, diffOptions...) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
