// Package storage abstracts local persistence for received pixel-data and
// scratch work directories. The only implementation is a filesystem
// backend; the interface exists so backend drivers and the DIMSE command
// layer depend on a contract rather than os/* directly.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// Backend is the storage contract every caller depends on.
type Backend interface {
	BasePath() string
	EnsureDir(rel string) (string, error)
	TempDir(subdir, prefix string) (*ScopedDir, error)
	WriteFile(ctx context.Context, rel string, data []byte) (string, error)
	ReadFile(ctx context.Context, rel string) ([]byte, error)
	Remove(ctx context.Context, rel string) error
	Exists(rel string) bool
}

// ScopedDir is a unique directory guaranteed removed on Release.
type ScopedDir struct {
	Path string
}

// Release removes the scoped directory and everything under it.
func (d *ScopedDir) Release() error {
	return os.RemoveAll(d.Path)
}

// Filesystem is the filesystem-backed Backend implementation. It does not
// canonicalize basePath (no filepath.EvalSymlinks), preserving symlink
// parents; callers compare by suffix on the resolved tail.
type Filesystem struct {
	basePath string
}

// NewFilesystem constructs a Filesystem rooted at basePath. basePath is not
// required to exist yet; EnsureDir creates it lazily.
func NewFilesystem(basePath string) *Filesystem {
	return &Filesystem{basePath: basePath}
}

// BasePath returns the root all operations are confined to.
func (f *Filesystem) BasePath() string { return f.basePath }

// resolve joins rel onto basePath, rejecting path traversal that would
// escape basePath: path traversal (..) in rel is rejected or normalized
// away.
func (f *Filesystem) resolve(rel string) (string, error) {
	if c := filepath.Clean(rel); c == ".." || strings.HasPrefix(c, ".."+string(filepath.Separator)) {
		return "", errortaxonomy.Newf(errortaxonomy.Storage, "path %q escapes storage root", rel)
	}
	cleanRel := filepath.Clean("/" + rel)[1:] // anchor rel at the root so Join cannot climb above basePath
	joined := filepath.Join(f.basePath, cleanRel)
	if !strings.HasPrefix(joined, filepath.Clean(f.basePath)) {
		return "", errortaxonomy.Newf(errortaxonomy.Storage, "path %q escapes storage root", rel)
	}
	return joined, nil
}

// EnsureDir creates rel (and missing parents) under basePath, idempotently.
func (f *Filesystem) EnsureDir(rel string) (string, error) {
	full, err := f.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", errortaxonomy.Wrap(errortaxonomy.Storage, "mkdir failed", err)
	}
	return full, nil
}

// TempDir creates a unique directory under subdir with the given prefix,
// used for jmix-upload/ ingest scratch space.
func (f *Filesystem) TempDir(subdir, prefix string) (*ScopedDir, error) {
	parent, err := f.EnsureDir(subdir)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return nil, errortaxonomy.Wrap(errortaxonomy.Storage, "mkdtemp failed", err)
	}
	return &ScopedDir{Path: dir}, nil
}

// WriteFile writes data to rel, creating parent directories as needed.
func (f *Filesystem) WriteFile(_ context.Context, rel string, data []byte) (string, error) {
	full, err := f.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errortaxonomy.Wrap(errortaxonomy.Storage, "mkdir failed", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", errortaxonomy.Wrap(errortaxonomy.Storage, "write failed", err)
	}
	return full, nil
}

// ReadFile reads rel's contents.
func (f *Filesystem) ReadFile(_ context.Context, rel string) ([]byte, error) {
	full, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errortaxonomy.Wrap(errortaxonomy.NotFound, fmt.Sprintf("file %q not found", rel), err)
		}
		return nil, errortaxonomy.Wrap(errortaxonomy.Storage, "read failed", err)
	}
	return data, nil
}

// Remove deletes rel.
func (f *Filesystem) Remove(_ context.Context, rel string) error {
	full, err := f.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errortaxonomy.Wrap(errortaxonomy.Storage, "remove failed", err)
	}
	return nil
}

// Exists reports whether rel exists under basePath.
func (f *Filesystem) Exists(rel string) bool {
	full, err := f.resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

var _ Backend = (*Filesystem)(nil)
