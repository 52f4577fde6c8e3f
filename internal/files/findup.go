// Package files has small filesystem lookup helpers.
package files

import (
	"os"
	"path/filepath"
)

// FindUp walks from dir toward the filesystem root looking for an entry with
// one of the given names, returning its full path or "" if no ancestor has
// any. Every name is tried at one level before moving up, so a match near dir
// always beats a match further out; the name order only breaks ties within
// one directory. Unreadable directories are treated as not containing the
// entry.
func FindUp(dir string, names ...string) string {
	curDir := dir
	for {
		for _, name := range names {
			if _, err := os.Stat(filepath.Join(curDir, name)); err == nil {
				return filepath.Join(curDir, name)
			}
		}
		newDir := filepath.Dir(curDir)
		if newDir == curDir {
			return ""
		}
		curDir = newDir
	}
}
