// Package reader reads bounded windows of whole lines from growing files and
// sizes the next window from what the previous read returned.
package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

const (
	// MaxBatchEvents is the sink's per-request event cap.
	MaxBatchEvents = 10000
	// EventOverhead is the per-event byte cost the sink adds to a request.
	EventOverhead = 26
	// MaxRequestBytes is the sink's per-request byte ceiling.
	MaxRequestBytes = 1048576
	// MaxWindow leaves room for the per-event overhead of a full batch.
	MaxWindow = MaxRequestBytes - MaxBatchEvents*EventOverhead

	MinWindow     = 8192
	InitialWindow = 16384
	DefaultDelta  = 256
)

// Window is the result of one read. Content only holds whole lines
// (newline included) unless Forced is set.
type Window struct {
	Requested  uint64
	BytesRead  uint64
	Content    string
	NextOffset uint64
	// Forced is set when a maximum sized window held no newline and was
	// returned as is so a single huge line cannot stall the file.
	Forced bool
}

// Lines counts the lines in Content.
func (w Window) Lines() int {
	n := strings.Count(w.Content, "\n")
	if w.Forced && !strings.HasSuffix(w.Content, "\n") {
		n++
	}
	return n
}

// Starved reports a full read that did not contain a single line end.
func (w Window) Starved() bool {
	return w.Content == "" && w.BytesRead > 0 && w.BytesRead == w.Requested
}

// Reader reads windows through an afero filesystem.
type Reader struct {
	fs afero.Fs
}

func New(fsys afero.Fs) *Reader {
	return &Reader{fs: fsys}
}

// Read reads up to size bytes of path starting at the absolute offset. The
// trailing partial line is dropped and NextOffset only covers Content.
func (r *Reader) Read(path string, offset, size uint64) (Window, error) {
	w := Window{Requested: size, NextOffset: offset}
	if size == 0 {
		return w, nil
	}

	file, err := r.fs.Open(path)
	if err != nil {
		return w, fmt.Errorf("cannot open logfile %s: %w", path, err)
	}
	defer file.Close()

	buf := make([]byte, size)
	n, err := file.ReadAt(buf, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return w, fmt.Errorf("couldn't read %s at %d: %w", path, offset, err)
	}
	w.BytesRead = uint64(n)
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n') + 1
	if end == 0 && n > 0 && size >= MaxWindow {
		end = n
		w.Forced = true
	}
	w.Content = string(buf[:end])
	w.NextOffset = offset + uint64(end)
	return w, nil
}
