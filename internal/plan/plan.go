package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/am-lens/bundlectl/internal/config"
)

// Parts are the validated components of a plan.
type Parts struct {
	Entries    []Entry
	Output     Output
	Rules      RuleSet
	Plugins    Chain
	Budget     Budget
	SourceMaps config.SourceMapPolicy
	Colors     bool
}

// Plan is the immutable result of assembling a build configuration.
// Accessors return copies; a Plan can be shared freely.
type Plan struct {
	entries    []Entry
	output     Output
	rules      RuleSet
	plugins    Chain
	budget     Budget
	sourceMaps config.SourceMapPolicy
	colors     bool
}

func New(p Parts) *Plan {
	sm := p.SourceMaps
	if sm == "" {
		sm = config.SourceMapNone
	}
	return &Plan{
		entries:    append([]Entry(nil), p.Entries...),
		output:     p.Output,
		rules:      NewRuleSet(p.Rules.rules...),
		plugins:    NewChain(p.Plugins.plugins...),
		budget:     p.Budget,
		sourceMaps: sm,
		colors:     p.Colors,
	}
}

func (p *Plan) Entries() []Entry {
	return append([]Entry(nil), p.entries...)
}

func (p *Plan) Output() Output {
	return p.output
}

func (p *Plan) Rules() RuleSet {
	return p.rules
}

func (p *Plan) Plugins() Chain {
	return p.plugins
}

func (p *Plan) Budget() Budget {
	return p.budget
}

func (p *Plan) SourceMaps() config.SourceMapPolicy {
	return p.sourceMaps
}

func (p *Plan) Colors() bool {
	return p.colors
}

// Artifacts maps each entry name to the path of its artifact.
func (p *Plan) Artifacts() (map[string]string, error) {
	m := make(map[string]string, len(p.entries))
	for _, e := range p.entries {
		path, err := p.output.Plan(e)
		if err != nil {
			return nil, err
		}
		m[e.Name] = path
	}
	return m, nil
}

type document struct {
	Entries          []Entry                `json:"entries"`
	OutputRoot       string                 `json:"output_root"`
	FilenameTemplate string                 `json:"filename_template"`
	Rules            []Rule                 `json:"rules"`
	Plugins          []Plugin               `json:"plugins"`
	Budgets          Budget                 `json:"budgets"`
	SourceMaps       config.SourceMapPolicy `json:"source_map_policy"`
	Colors           bool                   `json:"colorized_output"`
}

func (p *Plan) document() document {
	d := document{
		Entries:          p.Entries(),
		OutputRoot:       p.output.Root(),
		FilenameTemplate: p.output.Template(),
		Rules:            p.rules.Rules(),
		Plugins:          p.plugins.Plugins(),
		Budgets:          p.budget,
		SourceMaps:       p.sourceMaps,
		Colors:           p.colors,
	}
	if d.Entries == nil {
		d.Entries = []Entry{}
	}
	if d.Rules == nil {
		d.Rules = []Rule{}
	}
	if d.Plugins == nil {
		d.Plugins = []Plugin{}
	}
	return d
}

func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.document())
}

func (p *Plan) MarshalYAML() (any, error) {
	return p.document(), nil
}

// Digest identifies the plan by the SHA-256 of its JSON form.
func (p *Plan) Digest() string {
	bs, err := p.MarshalJSON()
	if err != nil {
		// All fields are strings, numbers and booleans.
		panic(err)
	}
	sum := sha256.Sum256(bs)
	return hex.EncodeToString(sum[:])
}
