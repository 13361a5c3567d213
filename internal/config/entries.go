package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/goccy/go-yaml"
	yamlv3 "gopkg.in/yaml.v3"
)

// Entry is one named starting point of the module graph.
type Entry struct {
	Name   string
	Source string
}

// Entries is the ordered `entry` mapping of a build. A plain string is
// shorthand for a single entry named "main".
type Entries struct {
	list []Entry
}

func NewEntries(entries ...Entry) Entries {
	return Entries{list: slices.Clone(entries)}
}

func (es Entries) Len() int {
	return len(es.list)
}

// All returns a copy of the entries in declaration order.
func (es Entries) All() []Entry {
	return slices.Clone(es.list)
}

func (es Entries) Get(name string) (string, bool) {
	for _, e := range es.list {
		if e.Name == name {
			return e.Source, true
		}
	}
	return "", false
}

func (es Entries) Equal(other Entries) bool {
	return slices.Equal(es.list, other.list)
}

// orderedLike sorts es by the position of each name in base. Names missing
// from base keep their relative order and go last.
func (es Entries) orderedLike(base Entries) Entries {
	pos := make(map[string]int, len(base.list))
	for i, e := range base.list {
		pos[e.Name] = i
	}
	out := slices.Clone(es.list)
	slices.SortStableFunc(out, func(a, b Entry) int {
		pa, oka := pos[a.Name]
		pb, okb := pos[b.Name]
		switch {
		case oka && okb:
			return pa - pb
		case oka:
			return -1
		case okb:
			return 1
		}
		return 0
	})
	return Entries{list: out}
}

func (es *Entries) UnmarshalYAML(bs []byte) error {
	list, err := decodeEntries(bs)
	if err != nil {
		return err
	}
	es.list = list
	return nil
}

func (es *Entries) UnmarshalJSON(bs []byte) error {
	return es.UnmarshalYAML(bs)
}

func (es Entries) MarshalYAML() (any, error) {
	ms := make(yaml.MapSlice, 0, len(es.list))
	for _, e := range es.list {
		ms = append(ms, yaml.MapItem{Key: e.Name, Value: e.Source})
	}
	return ms, nil
}

func (es Entries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range es.list {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Source)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeEntries walks the node tree instead of decoding into a map, so that
// declaration order survives and duplicate names can be reported.
func decodeEntries(bs []byte) ([]Entry, error) {
	var doc yamlv3.Node
	if err := yamlv3.Unmarshal(bs, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}

	node := &doc
	if node.Kind == yamlv3.DocumentNode {
		if len(node.Content) == 0 {
			return nil, nil
		}
		node = node.Content[0]
	}

	switch {
	case node.Kind == yamlv3.ScalarNode && node.Tag == "!!null":
		return nil, nil
	case node.Kind == yamlv3.ScalarNode:
		return []Entry{{Name: DefaultEntryName, Source: node.Value}}, nil
	case node.Kind != yamlv3.MappingNode:
		return nil, fmt.Errorf("entries must be a mapping from name to module path")
	}

	if dups := duplicateKeys(node); len(dups) > 0 {
		return nil, dups[0]
	}

	list := make([]Entry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yamlv3.ScalarNode {
			return nil, fmt.Errorf("entry %q: expected a module path", k.Value)
		}
		list = append(list, Entry{Name: k.Value, Source: v.Value})
	}
	return list, nil
}

func duplicateKeys(mapping *yamlv3.Node) []error {
	var errs []error
	seen := make(map[string]bool, len(mapping.Content)/2)
	reported := map[string]bool{}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		name := mapping.Content[i].Value
		if seen[name] && !reported[name] {
			errs = append(errs, NewError(DuplicateEntryName, name, fmt.Errorf("declared again on line %d", mapping.Content[i].Line)))
			reported[name] = true
		}
		seen[name] = true
	}
	return errs
}

// CheckDuplicateEntries reports entry names declared more than once in the
// build section of a configuration document.
func CheckDuplicateEntries(bs []byte) error {
	var doc yamlv3.Node
	if err := yamlv3.Unmarshal(bs, &doc); err != nil {
		// Syntax errors are reported by Validate.
		return nil
	}
	if len(doc.Content) == 0 {
		return nil
	}

	entries := lookup(lookup(doc.Content[0], "build"), "entry")
	if entries == nil || entries.Kind != yamlv3.MappingNode {
		return nil
	}

	return Aggregate(duplicateKeys(entries))
}

func lookup(node *yamlv3.Node, key string) *yamlv3.Node {
	if node == nil || node.Kind != yamlv3.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
