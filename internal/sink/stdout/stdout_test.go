package stdout

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/sink"
)

func newTestStdout(t *testing.T, config map[string]any) (*Stdout, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	s := &Stdout{out: buf}
	require.NoError(t, s.Init(config))
	return s, buf
}

var events = []internal.LogEvent{
	{Message: "hello", TimestampMs: 1700000000000},
}

func TestStdout_Init(t *testing.T) {
	s := &Stdout{}
	assert.Error(t, s.Init(map[string]any{"Format": "xml"}))

	s = &Stdout{}
	assert.Error(t, s.Init(map[string]any{"Format": "template"}))

	s = &Stdout{}
	assert.Error(t, s.Init(map[string]any{"JsonIndent": "yes"}))

	s = &Stdout{}
	require.NoError(t, s.Init(map[string]any{}))
	assert.Equal(t, "stdout", s.Name())
	assert.Equal(t, "json", s.format)
}

func TestStdout_SendJSON(t *testing.T) {
	s, buf := newTestStdout(t, map[string]any{"Format": "json"})

	out, err := s.Send(context.Background(), "app", "web01", events, "")
	require.NoError(t, err)
	assert.Equal(t, sink.Outcome{Status: sink.Delivered, Token: "1"}, out)

	assert.Contains(t, buf.String(), `"message":"hello"`)
	assert.Contains(t, buf.String(), `"group":"app"`)
	assert.Contains(t, buf.String(), `"timestamp":"2023-11-14T22:13:20Z"`)
}

func TestStdout_SendPlain(t *testing.T) {
	s, buf := newTestStdout(t, map[string]any{"Format": "plain"})

	_, err := s.Send(context.Background(), "app", "web01", events, "1")
	require.NoError(t, err)
	assert.Equal(t, "2023-11-14T22:13:20Z [app/web01] hello\n", buf.String())
}

func TestStdout_SendTemplate(t *testing.T) {
	s, buf := newTestStdout(t, map[string]any{"Template": "{{.Stream}}: {{.Message}}"})

	out, err := s.Send(context.Background(), "app", "web01", append(events, internal.LogEvent{Message: "again"}), "9")
	require.NoError(t, err)
	assert.Equal(t, "10", out.Token)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"web01: hello", "web01: again"}, lines)
}
