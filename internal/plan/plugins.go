package plan

import (
	"github.com/am-lens/bundlectl/internal/config"
	"github.com/am-lens/bundlectl/internal/pattern"
)

// Edge is an import in the module graph: the request as written by the
// importing module, and the directory of that module.
type Edge struct {
	Target  string
	Context string
}

type Decision int

const (
	Keep Decision = iota
	Drop
)

func (d Decision) String() string {
	if d == Drop {
		return "drop"
	}
	return "keep"
}

// Plugin ignores imports whose request matches Target when made from a
// directory matching Context. A zero Context matches any directory.
type Plugin struct {
	Kind    string          `json:"kind"`
	Target  pattern.Pattern `json:"target_pattern" yaml:"target_pattern"`
	Context pattern.Pattern `json:"context_pattern,omitzero" yaml:"context_pattern,omitempty"`
}

func NewIgnoreModule(target, context string) (Plugin, error) {
	t, err := pattern.Compile(target)
	if err != nil {
		return Plugin{}, err
	}
	var c pattern.Pattern
	if context != "" {
		if c, err = pattern.Compile(context); err != nil {
			return Plugin{}, err
		}
	}
	return Plugin{Kind: config.PluginKindIgnoreModule, Target: t, Context: c}, nil
}

func (p Plugin) Matches(e Edge) bool {
	if !p.Target.Match(e.Target) {
		return false
	}
	return p.Context.IsZero() || p.Context.Match(e.Context)
}

// Chain applies plugins to dependency edges.
type Chain struct {
	plugins []Plugin
}

func NewChain(plugins ...Plugin) Chain {
	return Chain{plugins: append([]Plugin(nil), plugins...)}
}

// Apply drops the edge if any plugin matches it.
func (c Chain) Apply(e Edge) Decision {
	for _, p := range c.plugins {
		if p.Matches(e) {
			return Drop
		}
	}
	return Keep
}

func (c Chain) Len() int {
	return len(c.plugins)
}

func (c Chain) Plugins() []Plugin {
	return append([]Plugin(nil), c.plugins...)
}
