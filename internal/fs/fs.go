// Package fs holds helpers for the generated, in-memory file trees handed to
// golang-migrate.
package fs

import (
	"io/fs"
	"slices"
	"testing/fstest"

	"github.com/gobwas/glob"
)

// MapFS returns a read-only file system holding files, keyed by their slash
// separated names.
func MapFS(files map[string]string) fs.FS {
	m := make(fstest.MapFS, len(files))
	for name, content := range files {
		m[name] = &fstest.MapFile{Data: []byte(content), Mode: 0o444}
	}
	return m
}

// Glob returns the sorted names of the regular files in fsys matching
// pattern. Unlike fs.Glob, "**" matches across directories.
func Glob(fsys fs.FS, pattern string) ([]string, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}

	var names []string
	err = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && g.Match(name) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(names)
	return names, nil
}
