// Package store reads and updates the persisted keyword corpus, a JS
// module declaring one object per category with primaryKeywords,
// secondaryKeywords and phrases lists.
//
// Parsing is tolerant: a malformed tier only empties that tier of that
// category. Saving splices new terms into the original bytes, leaving
// comments, formatting and every other key untouched.
package store

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/cognicore/kwcorpus/pkg/kwcorpus/internalerr"
)

// Store is the corpus file on a filesystem.
type Store struct {
	fs   afero.Fs
	path string
}

// New returns a store for the file at path. A nil fs means the OS
// filesystem.
func New(fs afero.Fs, path string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, path: path}
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// Fs returns the filesystem the store lives on.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Read returns the raw file contents.
func (s *Store) Read() ([]byte, error) {
	info, err := s.fs.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", internalerr.ErrStoreUnavailable, s.path)
	}
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	return data, nil
}

// Load reads and parses the file. It fails only when the file cannot be
// read; parse problems are reported through Document.Warnings.
func (s *Store) Load() (*Document, error) {
	data, err := s.Read()
	if err != nil {
		return nil, err
	}
	return Parse(data), nil
}
