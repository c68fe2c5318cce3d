// Package artifact persists computation graphs as HCL text files in one
// explicitly configured directory.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/fsutil"
	"github.com/specialistvlad/wcctgo/internal/hcl"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
)

// ErrNoDir is returned by New when the directory is empty.
var ErrNoDir = errors.New("artifact: directory must be set")

// Store writes and reads graph artifacts under Dir.
type Store struct {
	dir string
}

// New creates a store rooted at dir. The directory is created on the first
// save, not here.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, ErrNoDir
	}
	return &Store{dir: filepath.Clean(dir)}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// PathFor returns where a graph with the given name is stored.
func (s *Store) PathFor(name string) string {
	return filepath.Join(s.dir, name+hcl.GraphExt)
}

// SaveGraph writes g to <dir>/<name>.graph.hcl and returns the path. The file
// is written to a temporary sibling first and renamed into place, so readers
// never observe a partial artifact.
func (s *Store) SaveGraph(ctx context.Context, g *opgraph.Graph) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: creating %s: %w", s.dir, err)
	}
	path := s.PathFor(g.Name())
	if err := writeAtomic(path, hcl.EncodeGraph(g)); err != nil {
		return "", err
	}
	ctxlog.FromContext(ctx).Debug("Graph artifact saved.", "path", path, "nodes", g.NumNodes())
	return path, nil
}

// LoadGraph reads and validates the artifact at path.
func (s *Store) LoadGraph(ctx context.Context, path string) (*opgraph.Graph, error) {
	return ReadGraph(ctx, path)
}

// ReadGraph reads and validates a graph artifact from any path; it needs no
// store.
func ReadGraph(ctx context.Context, path string) (*opgraph.Graph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading %s: %w", path, err)
	}
	g, err := hcl.DecodeGraph(src, path)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Graph artifact loaded.", "path", path, "name", g.Name())
	return g, nil
}

// Load reads the artifact stored for a graph name.
func (s *Store) Load(ctx context.Context, name string) (*opgraph.Graph, error) {
	return s.LoadGraph(ctx, s.PathFor(name))
}

// List returns the paths of every artifact in the store, sorted.
func (s *Store) List() ([]string, error) {
	return fsutil.FindFiles(hcl.GraphExt, s.dir)
}

func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("artifact: creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("artifact: writing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("artifact: syncing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("artifact: closing %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("artifact: chmod %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("artifact: renaming into %s: %w", path, err)
	}
	return nil
}
