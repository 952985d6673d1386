// Package rules decides per-application placement when a window appears:
// whether it floats and which workspace it opens on.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bobrwm/bobrwm/internal/config"
)

// Matcher reports whether a bundle identifier is selected.
type Matcher func(bundleID string) bool

// Rule is a compiled window rule.
type Rule struct {
	Name      string
	Match     Matcher
	Float     bool
	Workspace int
}

// Decision is the outcome of evaluating rules for one window.
type Decision struct {
	Float     bool
	Workspace int
	// Rules names every rule that contributed, in evaluation order.
	Rules []string
}

// Matched reports whether any rule applied.
func (d Decision) Matched() bool { return len(d.Rules) > 0 }

// Set is an ordered list of compiled rules.
type Set []Rule

// Build compiles configuration into rules, preserving order.
func Build(cfgs []config.RuleConfig) (Set, error) {
	set := make(Set, 0, len(cfgs))
	for i, rc := range cfgs {
		name := rc.Name
		if name == "" {
			name = fmt.Sprintf("rules[%d]", i)
		}
		match, err := buildMatcher(rc)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		set = append(set, Rule{
			Name:      name,
			Match:     match,
			Float:     rc.Float,
			Workspace: rc.Workspace,
		})
	}
	return set, nil
}

func buildMatcher(rc config.RuleConfig) (Matcher, error) {
	ids := make(map[string]struct{}, len(rc.AnyBundleID)+1)
	if rc.BundleID != "" {
		ids[strings.ToLower(rc.BundleID)] = struct{}{}
	}
	for _, id := range rc.AnyBundleID {
		ids[strings.ToLower(id)] = struct{}{}
	}
	var re *regexp.Regexp
	if rc.BundleIDRegex != "" {
		compiled, err := regexp.Compile(rc.BundleIDRegex)
		if err != nil {
			return nil, fmt.Errorf("compile bundleIdRegex: %w", err)
		}
		re = compiled
	}
	if len(ids) == 0 && re == nil {
		return nil, fmt.Errorf("no bundle identifier criteria")
	}
	return func(bundleID string) bool {
		if bundleID == "" {
			return false
		}
		if _, ok := ids[strings.ToLower(bundleID)]; ok {
			return true
		}
		return re != nil && re.MatchString(bundleID)
	}, nil
}

// Evaluate applies every matching rule in order. Float is set when any
// matching rule floats; the workspace comes from the first matching rule
// that names one.
func (s Set) Evaluate(bundleID string) Decision {
	var d Decision
	for _, r := range s {
		if r.Match == nil || !r.Match(bundleID) {
			continue
		}
		d.Rules = append(d.Rules, r.Name)
		if r.Float {
			d.Float = true
		}
		if d.Workspace == 0 && r.Workspace > 0 {
			d.Workspace = r.Workspace
		}
	}
	return d
}
