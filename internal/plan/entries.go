package plan

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/am-lens/bundlectl/internal/config"
)

// Entry is a named starting point of the module graph.
type Entry struct {
	Name   string `json:"name"`
	Source string `json:"source_path" yaml:"source_path"`
}

// ResolveEntries checks the entries and returns them in declaration order.
// Every name declared more than once is reported, together with any empty
// name or source; the returned error aggregates all of them.
func ResolveEntries(entries []Entry) ([]Entry, error) {
	var problems []error

	if len(entries) == 0 {
		problems = append(problems, config.NewError(config.Invalid, "entry", errors.New("at least one entry is required")))
	}

	seen := make(map[string]bool, len(entries))
	reported := map[string]bool{}
	for i, e := range entries {
		if e.Name == "" {
			problems = append(problems, config.NewError(config.Invalid, fmt.Sprintf("entry #%d", i), errors.New("empty name")))
			continue
		}
		if err := checkName(e.Name); err != nil {
			problems = append(problems, config.NewError(config.Invalid, e.Name, err))
		}
		if e.Source == "" {
			problems = append(problems, config.NewError(config.Invalid, e.Name, errors.New("empty module path")))
		}
		if seen[e.Name] && !reported[e.Name] {
			problems = append(problems, config.NewError(config.DuplicateEntryName, e.Name, nil))
			reported[e.Name] = true
		}
		seen[e.Name] = true
	}

	if err := config.Aggregate(problems); err != nil {
		return nil, err
	}

	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// checkName rejects names that would place the artifact outside the output
// root once substituted into the filename template.
func checkName(name string) error {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return errors.New("name must be relative")
	}
	if clean := filepath.Clean(filepath.FromSlash(name)); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return errors.New("name must stay within the output root")
	}
	return nil
}

// EntriesFromConfig converts configured entries, keeping their order.
func EntriesFromConfig(es config.Entries) []Entry {
	all := es.All()
	out := make([]Entry, len(all))
	for i, e := range all {
		out[i] = Entry{Name: e.Name, Source: e.Source}
	}
	return out
}
