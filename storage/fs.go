// Package storage opens the stored Part 10 objects the archive indexes, on a
// local filesystem or in an S3 compatible object store.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/interfaces"
)

// Filesystem opens objects below a root directory. Locations are slash
// separated paths relative to the root and cannot escape it.
type Filesystem struct {
	root   *os.Root
	logger *slog.Logger
}

// NewFilesystem opens the directory dir.
func NewFilesystem(dir string, logger *slog.Logger) (*Filesystem, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, errors.NewStorageError("open "+dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Filesystem{root: root, logger: logger}, nil
}

// Open implements interfaces.StorageReader.
func (s *Filesystem) Open(ctx context.Context, location string) (interfaces.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.root.Open(filepath.FromSlash(location))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", errors.ErrObjectNotFound, location)
	}
	if err != nil {
		return nil, errors.NewStorageError("open "+location, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.NewStorageError("stat "+location, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", errors.ErrObjectNotFound, location)
	}
	s.logger.DebugContext(ctx, "Opened stored object",
		"location", location,
		"size", info.Size())
	return &file{File: f, size: info.Size()}, nil
}

// Close releases the root directory.
func (s *Filesystem) Close() error {
	return s.root.Close()
}

type file struct {
	*os.File
	size int64
}

func (f *file) Size() int64 {
	return f.size
}
