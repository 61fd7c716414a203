package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// FileStore keeps one JSON document per key in a directory.
type FileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore creates dir if needed. Failing to create it is fatal for
// the caller since no progress could ever be persisted.
func NewFileStore(fsys afero.Fs, dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	exists, err := afero.DirExists(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("could not stat state dir %s: %w", dir, err)
	}
	if !exists {
		logrus.WithField("dir", dir).Info("State dir does not exist, creating it")
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create state dir %s: %w", dir, err)
		}
	}
	return &FileStore{fs: fsys, dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load returns ErrNotFound when no file exists for key. Unreadable or
// corrupt files are reported as errors.
func (s *FileStore) Load(key string) (TailState, error) {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TailState{}, ErrNotFound
		}
		return TailState{}, fmt.Errorf("could not read state %s: %w", s.path(key), err)
	}

	var st TailState
	if err := json.Unmarshal(data, &st); err != nil {
		return TailState{}, fmt.Errorf("corrupt state %s: %w", s.path(key), err)
	}
	return st, nil
}

// Save replaces the state of key atomically.
func (s *FileStore) Save(key string, st TailState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	tmp := s.path(key) + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("could not write state %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path(key)); err != nil {
		if rmErr := s.fs.Remove(tmp); rmErr != nil {
			logrus.WithError(rmErr).WithField("file", tmp).Debug("Could not remove temporary state file")
		}
		return fmt.Errorf("could not replace state %s: %w", s.path(key), err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
