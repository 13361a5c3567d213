package plan

import (
	"github.com/am-lens/bundlectl/internal/pattern"
)

// Rule selects files for a transformation. A file matching Exclude is never
// selected by the rule.
type Rule struct {
	Test    pattern.Pattern `json:"match_pattern" yaml:"match_pattern"`
	Exclude pattern.Pattern `json:"exclude_pattern,omitzero" yaml:"exclude_pattern,omitempty"`
	Action  string          `json:"action_id" yaml:"action_id"`
}

// NewRule compiles the rule patterns. An empty exclude means no exclusion.
func NewRule(test, exclude, action string) (Rule, error) {
	t, err := pattern.Compile(test)
	if err != nil {
		return Rule{}, err
	}
	var x pattern.Pattern
	if exclude != "" {
		if x, err = pattern.Compile(exclude); err != nil {
			return Rule{}, err
		}
	}
	return Rule{Test: t, Exclude: x, Action: action}, nil
}

func (r Rule) applies(path string) bool {
	return r.Test.Match(path) && !r.Exclude.Match(path)
}

// RuleSet is an ordered list of rules: the first rule that applies wins.
type RuleSet struct {
	rules []Rule
}

func NewRuleSet(rules ...Rule) RuleSet {
	return RuleSet{rules: append([]Rule(nil), rules...)}
}

// Classify returns the action of the first rule applying to path. Files no
// rule applies to pass through untransformed, and ok is false.
func (rs RuleSet) Classify(path string) (action string, ok bool) {
	for _, r := range rs.rules {
		if r.applies(path) {
			return r.Action, true
		}
	}
	return "", false
}

func (rs RuleSet) Len() int {
	return len(rs.rules)
}

func (rs RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}
