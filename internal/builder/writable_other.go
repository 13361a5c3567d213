//go:build !unix

package builder

import (
	"fmt"
	"os"
)

func writable(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if fi.Mode().Perm()&0o200 == 0 {
		return fmt.Errorf("%s: permission denied", dir)
	}
	return nil
}
