package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"slices"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"

	"github.com/am-lens/bundlectl/internal/jsonpatch"
	"github.com/am-lens/bundlectl/internal/util"
)

// Defaults for options left out of the build configuration. They match what
// webpack assumes when the corresponding key is absent.
const (
	DefaultOutputPath      = "dist"
	DefaultFilename        = "[name].bundle.js"
	DefaultBudgetBytes     = 250000
	DefaultEnvironment     = "development"
	DefaultEntryName       = "main"
	EnvironmentVariable    = "NODE_ENV"
	PluginKindIgnoreModule = "ignore_module"
)

// Root is the top-level configuration structure used by bundlectl.
type Root struct {
	Build     *Build               `json:"build,omitempty"`
	Databases map[string]*Database `json:"databases,omitempty"`
	Overlays  map[string]Overlay   `json:"overlays,omitempty"`
}

// UnmarshalYAML implements the yaml.BytesUnmarshaler interface for the Root
// struct. Databases are keyed by environment name in the configuration, the
// name is copied into each value so internal callers don't need the key.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (*Root) unmarshal(raw *Root) error {
	for name := range raw.Databases {
		if raw.Databases[name] == nil {
			raw.Databases[name] = &Database{}
		}
		raw.Databases[name].Name = name
	}
	return nil
}

// SortedDatabases iterates over the database configurations ordered by
// environment name.
func (r *Root) SortedDatabases() iter.Seq2[int, *Database] {
	return iterator(r.Databases, func(d *Database) string { return d.Name })
}

// Environments returns every environment name mentioned by the configuration,
// either through a database or through a build overlay.
func (r *Root) Environments() []string {
	var envs StringSet
	for name := range r.Databases {
		envs = envs.Add(name)
	}
	for name := range r.Overlays {
		envs = envs.Add(name)
	}
	return envs
}

// BuildFor returns the build configuration for the given environment: the
// base build section with the environment's overlay (if any) applied.
func (r *Root) BuildFor(env string) (*Build, error) {
	if r.Build == nil {
		return nil, errors.New("configuration has no build section")
	}

	overlay, ok := r.Overlays[env]
	if !ok || len(overlay) == 0 {
		return r.Build, nil
	}

	doc, err := json.Marshal(r.Build)
	if err != nil {
		return nil, fmt.Errorf("failed to encode build configuration: %w", err)
	}

	patch, err := overlay.patch()
	if err != nil {
		return nil, fmt.Errorf("overlay %q: %w", env, err)
	}

	patched, err := jsonpatch.Apply(patch, doc)
	if err != nil {
		return nil, fmt.Errorf("overlay %q: %w", env, err)
	}

	var b Build
	if err := json.Unmarshal(patched, &b); err != nil {
		return nil, fmt.Errorf("overlay %q: %w", env, err)
	}

	// NB: JSON objects carry no order, so restore the declaration order of the
	// base configuration. Entries added by the overlay keep the order they
	// were decoded in, after the base ones.
	b.Entries = b.Entries.orderedLike(r.Build.Entries)
	return &b, nil
}

func iterator[V any](m map[string]V, name func(V) string) func(func(int, V) bool) {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, name(v))
	}

	sort.Strings(names)

	return func(yield func(int, V) bool) {
		for i, name := range names {
			if !yield(i, m[name]) {
				return
			}
		}
	}
}

// Validate checks the raw configuration against the JSON schema.
func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

// Build is the declarative description of one front-end build.
type Build struct {
	Entries     Entries         `json:"entry"`
	Output      Output          `json:"output,omitzero"`
	Rules       Rules           `json:"rules,omitempty"`
	Plugins     Plugins         `json:"plugins,omitempty"`
	Performance Performance     `json:"performance,omitzero"`
	Devtool     SourceMapPolicy `json:"devtool,omitempty"`
	Stats       Stats           `json:"stats,omitzero"`

	_ struct{} `additionalProperties:"false"`
}

func (b *Build) UnmarshalYAML(bs []byte) error {
	type rawBuild Build // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawBuild

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode build: %w", err)
	}

	*b = Build(raw)
	b.setDefaults()
	return nil
}

func (b *Build) UnmarshalJSON(bs []byte) error {
	type rawBuild Build // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawBuild

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode build: %w", err)
	}

	*b = Build(raw)
	b.setDefaults()
	return nil
}

func (b *Build) setDefaults() {
	if b.Output.Path == "" {
		b.Output.Path = DefaultOutputPath
	}
	if b.Output.Filename == "" {
		b.Output.Filename = DefaultFilename
	}
	if b.Performance.MaxEntrypointSize == 0 {
		b.Performance.MaxEntrypointSize = DefaultBudgetBytes
	}
	if b.Performance.MaxAssetSize == 0 {
		b.Performance.MaxAssetSize = DefaultBudgetBytes
	}
	if b.Devtool == "" {
		b.Devtool = SourceMapNone
	}
	for i := range b.Plugins {
		if b.Plugins[i].Kind == "" {
			b.Plugins[i].Kind = PluginKindIgnoreModule
		}
	}
}

func (b *Build) Equal(other *Build) bool {
	return util.FastEqual(b, other, func(b, other *Build) bool {
		return b.Entries.Equal(other.Entries) &&
			b.Output == other.Output &&
			b.Rules.Equal(other.Rules) &&
			b.Plugins.Equal(other.Plugins) &&
			b.Performance == other.Performance &&
			b.Devtool == other.Devtool &&
			b.Stats == other.Stats
	})
}

// Output defines where artifacts are written and how they are named.
type Output struct {
	Path     string `json:"path,omitempty"`     // Root directory, relative to the configuration directory.
	Filename string `json:"filename,omitempty"` // Template with exactly one "[name]" placeholder.

	_ struct{} `additionalProperties:"false"`
}

// Rule decides whether (and how) a source file is transformed before
// inclusion. Test and Exclude are patterns, see the pattern package.
type Rule struct {
	Test    string `json:"test" required:"true" minLength:"1"`
	Exclude string `json:"exclude,omitempty"`
	Loader  string `json:"loader" required:"true" minLength:"1"`

	_ struct{} `additionalProperties:"false"`
}

// Rules are ordered: the first matching rule wins.
type Rules []Rule

func (a Rules) Equal(b Rules) bool {
	return slices.Equal(a, b)
}

// Plugin removes dependency edges from the module graph. The only kind is
// "ignore_module": an import whose request matches Resource, made from a
// module whose directory matches Context, is replaced by an empty module.
type Plugin struct {
	Kind     string `json:"kind,omitempty" enum:"ignore_module"`
	Resource string `json:"resource" required:"true" minLength:"1"`
	Context  string `json:"context,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

type Plugins []Plugin

// Equal ignores order, since a plugin can only drop edges.
func (a Plugins) Equal(b Plugins) bool {
	return util.SetEqual(a, b,
		func(p Plugin) string { return p.Kind + "\x00" + p.Resource + "\x00" + p.Context },
		func(a, b Plugin) bool { return a == b })
}

// Performance holds the advisory size budgets.
type Performance struct {
	MaxEntrypointSize int64 `json:"max_entrypoint_size,omitempty"`
	MaxAssetSize      int64 `json:"max_asset_size,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

type Stats struct {
	Colors bool `json:"colors,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// SourceMapPolicy selects if and how source maps are emitted.
type SourceMapPolicy string

const (
	SourceMapNone     SourceMapPolicy = "none"
	SourceMapInline   SourceMapPolicy = "inline"
	SourceMapExternal SourceMapPolicy = "external-file"
)

var sourceMapAliases = map[string]SourceMapPolicy{
	"":                  SourceMapNone,
	"none":              SourceMapNone,
	"false":             SourceMapNone,
	"inline":            SourceMapInline,
	"inline-source-map": SourceMapInline,
	"external-file":     SourceMapExternal,
	"source-map":        SourceMapExternal,
}

// ParseSourceMapPolicy accepts the policy names and the webpack devtool
// values they correspond to.
func ParseSourceMapPolicy(s string) (SourceMapPolicy, error) {
	p, ok := sourceMapAliases[s]
	if !ok {
		return "", fmt.Errorf("unknown source map policy %q", s)
	}
	return p, nil
}

func (p *SourceMapPolicy) UnmarshalJSON(bs []byte) error {
	var s string
	if err := json.Unmarshal(bs, &s); err != nil {
		return err
	}
	v, err := ParseSourceMapPolicy(s)
	*p = v
	return err
}

func (p *SourceMapPolicy) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	v, err := ParseSourceMapPolicy(s)
	*p = v
	return err
}

func (SourceMapPolicy) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.AddType(jsonschema.String)
	schema.Enum = []any{"none", "false", "inline", "inline-source-map", "external-file", "source-map"}
	return nil
}

// Database is the connection configuration of one environment.
type Database struct {
	Name             string     `json:"-"`
	Client           string     `json:"client,omitempty" enum:"sqlite3,sqlite,better-sqlite3,pg,postgres,postgresql,pgx,mysql,mysql2"`
	Connection       Connection `json:"connection"`
	UseNullAsDefault bool       `json:"use_null_as_default,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (d *Database) Equal(other *Database) bool {
	return util.FastEqual(d, other, func(d, other *Database) bool {
		return d.Name == other.Name &&
			d.Client == other.Client &&
			d.Connection == other.Connection &&
			d.UseNullAsDefault == other.UseNullAsDefault
	})
}

// Overlay is a JSON patch applied to the build section for one environment.
type Overlay []PatchOperation

type PatchOperation struct {
	Op    string `json:"op" required:"true" enum:"add,remove,replace"`
	Path  string `json:"path" required:"true"`
	Value any    `json:"value"`

	_ struct{} `additionalProperties:"false"`
}

func (o Overlay) patch() (jsonpatch.Patch, error) {
	bs, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return jsonpatch.Decode(bs)
}

type StringSet []string

func (a StringSet) Equal(b StringSet) bool {
	return util.SetEqual(a, b, func(s string) string { return s }, func(a, b string) bool { return a == b })
}

func (a StringSet) Add(value string) StringSet {
	i := sort.Search(len(a), func(i int) bool { return a[i] >= value })
	if i < len(a) && a[i] == value {
		return a
	}

	return slices.Insert(a, i, value)
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
}

// Parse validates and decodes a configuration document. Duplicate entry names
// are reported before anything else: once decoded into a mapping, the later
// duplicate would silently replace the earlier one.
func Parse(bs []byte) (*Root, error) {
	if err := CheckDuplicateEntries(bs); err != nil {
		return nil, err
	}

	if err := Validate(bs); err != nil {
		return nil, &Error{Kind: Invalid, Err: err}
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}
