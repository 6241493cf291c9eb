package memstore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/errors"
	"github.com/caio-sobreiro/dicomarc/types"
)

// LoadDir indexes every Part 10 file below root, recording locations relative
// to root. Files that are not DICOM are skipped. It returns the number of
// instances indexed.
func (s *Store) LoadDir(ctx context.Context, root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		ok, err := s.loadFile(path, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if ok {
			n++
		}
		return nil
	})
	if err != nil {
		return n, errors.NewStorageError("load "+root, err)
	}
	s.logger.InfoContext(ctx, "Loaded instances into memory index",
		"root", root,
		"instances", n)
	return n, nil
}

func (s *Store) loadFile(path, location string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return false, err
	}

	// binary values are not indexed, so none need to be read
	file, err := dicom.ReadFile(f, info.Size(), dicom.WithBulkDataThreshold(0))
	if err != nil {
		s.logger.Debug("Skipping file that is not a DICOM object",
			"path", path,
			"error", err)
		return false, nil
	}
	ref := types.InstanceRef{
		TransferSyntaxUID: file.TransferSyntaxUID,
		Location:          location,
	}
	if err := s.Put(file.Dataset, ref); err != nil {
		s.logger.Warn("Skipping DICOM object without identifiers",
			"path", path,
			"error", err)
		return false, nil
	}
	return true, nil
}
