package timestamp

import (
	"fmt"
	"time"
)

var fallbacks = func() []*Format {
	compiled := make([]*Format, 0, len(fallbackFormats))
	for _, f := range fallbackFormats {
		compiled = append(compiled, MustCompile(f))
	}
	return compiled
}()

// Extractor derives event timestamps from log lines.
type Extractor struct {
	format *Format
	offset *time.Location
	now    func() time.Time
}

// NewExtractor builds an extractor for format, which may be empty to only
// use the built-in shapes. defaultOffset applies to zone-less timestamps
// and defaults to DefaultOffset.
func NewExtractor(format, defaultOffset string) (*Extractor, error) {
	if defaultOffset == "" {
		defaultOffset = DefaultOffset
	}
	loc, err := ParseOffset(defaultOffset)
	if err != nil {
		return nil, fmt.Errorf("default offset: %w", err)
	}

	e := &Extractor{offset: loc, now: time.Now}
	if format != "" {
		if e.format, err = Compile(format); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Extract returns the timestamp found in line in epoch milliseconds. ok is
// false when nothing matched or the match did not parse; callers fall back
// to the current time.
func (e *Extractor) Extract(line string) (ms int64, ok bool) {
	value, format := e.find(line)
	if format == nil {
		return 0, false
	}
	t, err := format.Parse(value, e.now(), e.offset)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

func (e *Extractor) find(line string) (string, *Format) {
	if e.format != nil {
		if value, ok := e.format.Find(line); ok {
			return value, e.format
		}
	}
	for _, f := range fallbacks {
		if value, ok := f.Find(line); ok {
			return value, f
		}
	}
	return "", nil
}
