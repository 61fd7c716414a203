// Package state persists, per watched file, the last delivered offset and
// sequence token so a restarted agent resumes without loss or duplicates.
package state

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"path/filepath"
)

// DefaultDir is where state files are kept when no directory is configured.
const DefaultDir = "/usr/share/awatchlog/states"

// ErrNotFound is returned by Load when nothing was saved for a key yet.
var ErrNotFound = errors.New("state not found")

// TailState is the resume point of one watched file. Offset counts bytes
// acknowledged by the sink from the start of the file.
type TailState struct {
	Token  string `json:"token"`
	Offset uint64 `json:"offset"`
}

// Store loads and saves TailState by file key.
type Store interface {
	Load(key string) (TailState, error)
	Save(key string, st TailState) error
	Close() error
}

// FileKey derives the state key of a watched file from its absolute path.
func FileKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}
