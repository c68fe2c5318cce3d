// Package fsutil provides file system helpers shared by the configuration
// loader and the artifact store.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindFiles collects the files ending in ext under each path. A path may name
// a file or a directory, which is walked recursively. Paths that do not
// exist are skipped. The result is sorted and free of duplicates.
func FindFiles(ext string, paths ...string) ([]string, error) {
	if ext == "" {
		return nil, errors.New("fsutil: extension must not be empty")
	}

	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("fsutil: accessing %s: %w", root, err)
		}
		if !info.IsDir() {
			if strings.HasSuffix(root, ext) {
				add(filepath.Clean(root))
			}
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ext) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fsutil: walking %s: %w", root, err)
		}
	}

	files := make([]string, 0, len(seen))
	for p := range seen {
		files = append(files, p)
	}
	sort.Strings(files)
	return files, nil
}
