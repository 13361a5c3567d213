// Command gen-config-schema writes the JSON schema of the bundlectl
// configuration file, for editors and CI checks.
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/am-lens/bundlectl/internal/config"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s path/to/bundlectl.schema.json", os.Args[0])
	}

	bs, err := config.ReflectSchema()
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Dir(os.Args[1]), 0o755); err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(os.Args[1], append(bs, '\n'), 0o644); err != nil {
		log.Fatal(err)
	}
}
