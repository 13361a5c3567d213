package plan

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/am-lens/bundlectl/internal/config"
)

var placeholders = []string{"[name]", "{name}"}

// Output names the artifact of each entry: Template with its placeholder
// replaced by the entry name, below Root.
type Output struct {
	root     string
	template string
}

// NewOutput validates the output settings. The template must contain exactly
// one placeholder and stay below root once substituted.
func NewOutput(root, template string) (Output, error) {
	if err := checkTemplate(template); err != nil {
		return Output{}, err
	}
	if !filepath.IsAbs(root) {
		return Output{}, config.NewError(config.Invalid, root, errors.New("output root must be an absolute path"))
	}
	return Output{root: filepath.Clean(root), template: template}, nil
}

func checkTemplate(template string) error {
	n := 0
	for _, p := range placeholders {
		n += strings.Count(template, p)
	}
	switch {
	case n == 0:
		return config.NewError(config.InvalidTemplate, template, errors.New("missing [name] placeholder"))
	case n > 1:
		return config.NewError(config.InvalidTemplate, template, fmt.Errorf("expected one [name] placeholder, found %d", n))
	case filepath.IsAbs(template):
		return config.NewError(config.InvalidTemplate, template, errors.New("must be relative to the output root"))
	}
	if rel := filepath.Clean(template); rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return config.NewError(config.InvalidTemplate, template, errors.New("must stay within the output root"))
	}
	return nil
}

// Plan returns the absolute path of the artifact of entry e.
func (o Output) Plan(e Entry) (string, error) {
	if o.template == "" {
		return "", config.NewError(config.InvalidTemplate, "", errors.New("output is not configured"))
	}
	name := o.template
	for _, p := range placeholders {
		name = strings.Replace(name, p, e.Name, 1)
	}
	path := filepath.Join(o.root, name)
	if rel, err := filepath.Rel(o.root, path); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", config.NewError(config.Invalid, e.Name, errors.New("artifact would be written outside the output root"))
	}
	return path, nil
}

func (o Output) Root() string {
	return o.root
}

func (o Output) Template() string {
	return o.template
}
