// Package sink defines what the shipper needs from a log-ingestion backend.
package sink

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MuchTitan/awatchlog/internal"
)

// ConflictMarker precedes the expected token in a stale-token error text.
const ConflictMarker = "expected sequenceToken is: "

// ErrAlreadyExists is returned by the Ensure calls when the container is
// already there. Callers treat it as success.
var ErrAlreadyExists = errors.New("already exists")

// Status is the non-fatal result of a Send.
type Status int

const (
	// Delivered means the batch was accepted; Token is the next token.
	Delivered Status = iota
	// Conflict means the token was stale; Token is the corrected one.
	Conflict
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Outcome is the result of a successful Send round trip.
type Outcome struct {
	Status Status
	Token  string
}

// Sink creates log containers and accepts batches. A Send error is fatal
// for the calling shipper; stale tokens are reported as a Conflict outcome.
type Sink interface {
	internal.Plugin
	EnsureLogGroup(ctx context.Context, group string) error
	EnsureLogStream(ctx context.Context, group, stream string) error
	Send(ctx context.Context, group, stream string, events []internal.LogEvent, token string) (Outcome, error)
}

// ParseConflict extracts the expected token from a stale-token message.
// A literal "null" means the stream expects no token.
func ParseConflict(message string) (string, bool) {
	i := strings.Index(message, ConflictMarker)
	if i < 0 {
		return "", false
	}
	token := strings.TrimSpace(message[i+len(ConflictMarker):])
	if token == "null" {
		return "", true
	}
	if token == "" {
		return "", false
	}
	return token, true
}

// NextLocalToken derives the next token for backends without a token
// protocol of their own.
func NextLocalToken(token string) string {
	n, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		n = 0
	}
	return strconv.FormatUint(n+1, 10)
}
