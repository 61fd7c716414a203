// Package batch turns raw file content into timestamped events that fit in
// a single sink request.
package batch

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/reader"
	"github.com/MuchTitan/awatchlog/internal/timestamp"
)

// MaxEventBytes is the largest message the sink accepts for one event.
const MaxEventBytes = 262144 - reader.EventOverhead

// Batch is an ordered list of events and the token to send them with.
// Consumed is the number of raw bytes the events cover; the file offset
// advances by exactly that much once the batch is delivered.
type Batch struct {
	Events   []internal.LogEvent
	Token    string
	Consumed uint64
}

// Empty batches are never sent.
func (b Batch) Empty() bool {
	return len(b.Events) == 0
}

// Size is the request size the sink accounts for the batch.
func (b Batch) Size() int {
	size := 0
	for _, e := range b.Events {
		size += len(e.Message) + reader.EventOverhead
	}
	return size
}

// Builder builds batches for one watched file.
type Builder struct {
	extractor *timestamp.Extractor
	now       func() time.Time
}

// NewBuilder compiles the file's datetime format. defaultOffset applies to
// timestamps without zone.
func NewBuilder(file internal.WatchedFile, defaultOffset string) (*Builder, error) {
	extractor, err := timestamp.NewExtractor(file.DatetimeFormat, defaultOffset)
	if err != nil {
		return nil, err
	}
	return &Builder{extractor: extractor, now: time.Now}, nil
}

// Build splits raw into lines, skipping empty ones. A line longer than
// MaxEventBytes becomes several consecutive events. Lines whose events would
// push the batch over the sink's count or byte ceilings are left out and not
// counted in Consumed.
func (b *Builder) Build(raw string, token string) Batch {
	batch := Batch{Token: token}
	size := 0

	for pos := 0; pos < len(raw); {
		end := strings.IndexByte(raw[pos:], '\n')
		next := len(raw)
		if end >= 0 {
			next = pos + end + 1
		}
		line := strings.TrimSuffix(strings.TrimSuffix(raw[pos:next], "\n"), "\r")

		if line != "" {
			parts := split(strings.ToValidUTF8(line, "\uFFFD"), MaxEventBytes)
			cost := 0
			for _, part := range parts {
				cost += len(part) + reader.EventOverhead
			}
			full := len(batch.Events)+len(parts) > reader.MaxBatchEvents || size+cost > reader.MaxRequestBytes
			if full && !batch.Empty() {
				break
			}
			size += cost

			ms, ok := b.extractor.Extract(line)
			if !ok {
				ms = b.now().UnixMilli()
			}
			for _, part := range parts {
				batch.Events = append(batch.Events, internal.LogEvent{Message: part, TimestampMs: ms})
			}
		}

		pos = next
		batch.Consumed = uint64(pos)
	}

	return batch
}

// split cuts s into pieces of at most n bytes without splitting a rune.
func split(s string, n int) []string {
	var parts []string
	for len(s) > n {
		cut := n
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	return append(parts, s)
}
