package repository

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"LineGuard/internal/domain/errs"
	domrepo "LineGuard/internal/domain/repository"
	"LineGuard/internal/services/ml"
)

// FileBundleStore keeps the model bundle as a gob file. Writes go to a
// temporary sibling that is fsynced and renamed over the target.
type FileBundleStore struct {
	path string
}

var _ domrepo.BundleStore = (*FileBundleStore)(nil)

func NewFileBundleStore(path string) *FileBundleStore {
	return &FileBundleStore{path: path}
}

func (s *FileBundleStore) Location() string { return s.path }

func (s *FileBundleStore) Exists(context.Context) bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *FileBundleStore) Save(ctx context.Context, b *ml.Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("refusing to save bundle: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp bundle: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := gob.NewEncoder(w).Encode(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush bundle: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bundle: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("install bundle: %w", err)
	}
	committed = true
	return nil
}

// Load decodes and validates the bundle. A missing file is an internal
// error: nothing has been trained yet.
func (s *FileBundleStore) Load(ctx context.Context) (*ml.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Internal(err, "no trained model at "+s.path)
		}
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	var b ml.Bundle
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&b); err != nil {
		return nil, errs.Internal(err, "decode bundle at "+s.path)
	}
	// A stored bundle that fails validation is a corrupt artifact, whatever
	// kind the validation itself reports.
	if err := b.Validate(); err != nil {
		return nil, errs.Internal(err, "invalid bundle at "+s.path)
	}
	return &b, nil
}
