package maintenance

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
)

// LockPath returns the lock file guarding the store at path.
func LockPath(path string) string {
	return path + ".lock"
}

// lock creates the lock file exclusively. The returned func removes it.
func (w *Writer) lock() (func(), error) {
	fs, path := w.store.Fs(), LockPath(w.store.Path())
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s exists", internalerr.ErrLocked, path)
		}
		return nil, fmt.Errorf("%w: lock: %v", internalerr.ErrStoreUnavailable, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() {
		if err := fs.Remove(path); err != nil {
			w.log.Warn("remove lock", "path", path, "error", err)
		}
	}, nil
}

// backup writes data to path and reads it back.
func (w *Writer) backup(path string, data []byte) error {
	fs := w.store.Fs()
	if err := writeSynced(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrBackupFailed, err)
	}
	got, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("%w: verify: %v", internalerr.ErrBackupFailed, err)
	}
	if !bytes.Equal(got, data) {
		return fmt.Errorf("%w: %s does not match the store (%d of %d bytes)",
			internalerr.ErrBackupFailed, path, len(got), len(data))
	}
	return nil
}

// replace writes data to a temp file beside the store and renames it over
// the store.
func (w *Writer) replace(data []byte) error {
	fs, path := w.store.Fs(), w.store.Path()
	mode := os.FileMode(0o644)
	if info, err := fs.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(fs, filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: temp file: %v", internalerr.ErrStoreUnavailable, err)
	}
	name := tmp.Name()
	cleanup := func() {
		if err := fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.log.Warn("remove temp file", "path", name, "error", err)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write %s: %v", internalerr.ErrStoreUnavailable, name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync %s: %v", internalerr.ErrStoreUnavailable, name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close %s: %v", internalerr.ErrStoreUnavailable, name, err)
	}
	if err := fs.Chmod(name, mode); err != nil {
		w.log.Debug("chmod temp file", "path", name, "error", err)
	}
	if err := fs.Rename(name, path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename: %v", internalerr.ErrStoreUnavailable, err)
	}
	return nil
}

func writeSynced(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
