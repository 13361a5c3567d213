package bundler

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

// Transformed is the output of a Transformer: module source for esbuild and
// the loader esbuild should parse it with.
type Transformed struct {
	Contents string
	Loader   api.Loader
}

// Transformer rewrites one source file. It is looked up by the action of
// the rule that classified the file.
type Transformer interface {
	Transform(path, contents string) (Transformed, error)
}

type TransformerFunc func(path, contents string) (Transformed, error)

func (f TransformerFunc) Transform(path, contents string) (Transformed, error) {
	return f(path, contents)
}

type Registry struct {
	mu           sync.RWMutex
	transformers map[string]Transformer
}

func NewRegistry() *Registry {
	return &Registry{transformers: map[string]Transformer{}}
}

// DefaultRegistry knows the loaders commonly found in webpack rules.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("babel-loader", TransformerFunc(babel))
	_ = r.Register("ts-loader", TransformerFunc(typescript))
	return r
}

func (r *Registry) Register(id string, t Transformer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.transformers[id]; ok {
		return fmt.Errorf("transformer %q already registered", id)
	}
	r.transformers[id] = t
	return nil
}

func (r *Registry) Lookup(id string) (Transformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transformers[id]
	return t, ok
}

// IDs returns the registered identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.transformers))
	for id := range r.transformers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// babel down-levels modern JavaScript (and JSX) to ES2015.
func babel(path, contents string) (Transformed, error) {
	loader := api.LoaderJS
	if strings.EqualFold(filepath.Ext(path), ".jsx") {
		loader = api.LoaderJSX
	}
	return transform(path, contents, api.TransformOptions{
		Loader:     loader,
		Target:     api.ES2015,
		Sourcefile: path,
		Sourcemap:  api.SourceMapInline,
	})
}

func typescript(path, contents string) (Transformed, error) {
	loader := api.LoaderTS
	if strings.EqualFold(filepath.Ext(path), ".tsx") {
		loader = api.LoaderTSX
	}
	return transform(path, contents, api.TransformOptions{
		Loader:     loader,
		Target:     api.ESNext,
		Sourcefile: path,
		Sourcemap:  api.SourceMapInline,
	})
}

func transform(path, contents string, opts api.TransformOptions) (Transformed, error) {
	result := api.Transform(contents, opts)
	if len(result.Errors) > 0 {
		return Transformed{}, fmt.Errorf("%s: %w", path, messages(result.Errors))
	}
	return Transformed{Contents: string(result.Code), Loader: api.LoaderJS}, nil
}

func messages(msgs []api.Message) error {
	errs := make([]error, len(msgs))
	for i, m := range msgs {
		if m.Location != nil {
			errs[i] = fmt.Errorf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
		} else {
			errs[i] = errors.New(m.Text)
		}
	}
	return errors.Join(errs...)
}
