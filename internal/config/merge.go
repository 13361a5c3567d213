package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Merge reads the given configuration files (directories are walked) and
// merges them into one document. Mappings are merged recursively, later files
// win for other values unless conflictError is set. Key order is kept, so
// entries declared across files stay in declaration order.
func Merge(configFiles []string, conflictError bool) ([]byte, error) {

	var paths []string
	for _, f := range configFiles {
		if err := filepath.Walk(f, func(path string, fi fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			paths = append(paths, path)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	var merged *yaml.Node
	for _, f := range paths {
		bs, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %v: %v", f, err)
		}

		// Duplicates would be collapsed by the merge below.
		if err := CheckDuplicateEntries(bs); err != nil {
			return nil, fmt.Errorf("configuration file %v: %w", f, err)
		}

		var doc yaml.Node
		if err := yaml.Unmarshal(bs, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration file %v: %v", f, err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("configuration file %v: top level must be a mapping", f)
		}

		if merged == nil {
			merged = root
			continue
		}
		if err := merge(merged, root, "", conflictError); err != nil {
			return nil, err
		}
	}

	if merged == nil {
		merged = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}

	bs, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %v", err)
	}

	return bs, nil
}

// entryPath is the merge path of the named entry mapping. Entry names are
// never overridden by a later file.
const entryPath = "/build/entry"

func merge(dst, src *yaml.Node, path string, conflictError bool) error {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, value := src.Content[i], src.Content[i+1]
		p := path + "/" + key.Value

		j := indexOf(dst, key.Value)
		if j < 0 {
			dst.Content = append(dst.Content, key, value)
			continue
		}
		if path == entryPath {
			return NewError(DuplicateEntryName, key.Value, fmt.Errorf("declared in more than one configuration file"))
		}

		existing := dst.Content[j+1]
		if existing.Kind == yaml.MappingNode && value.Kind == yaml.MappingNode {
			if err := merge(existing, value, p, conflictError); err != nil {
				return err
			}
			continue
		}

		if conflictError && !sameValue(existing, value) {
			return fmt.Errorf("conflict for config path %s", p)
		}
		dst.Content[j+1] = value
	}
	return nil
}

func indexOf(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func sameValue(a, b *yaml.Node) bool {
	var x, y any
	if err := a.Decode(&x); err != nil {
		return false
	}
	if err := b.Decode(&y); err != nil {
		return false
	}
	return reflect.DeepEqual(x, y)
}
