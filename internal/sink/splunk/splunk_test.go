package splunk

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/sink"
)

func newTestSplunk(t *testing.T, srv *httptest.Server, extra map[string]any) *Splunk {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	config := map[string]any{
		"Token":     "secret",
		"Scheme":    "http",
		"Host":      u.Hostname(),
		"Port":      port,
		"EventHost": "web01",
	}
	for k, v := range extra {
		config[k] = v
	}

	s := &Splunk{}
	require.NoError(t, s.Init(config))
	return s
}

func decodeEvents(t *testing.T, r io.Reader) []hecEvent {
	t.Helper()
	var out []hecEvent
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var e hecEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestSplunk_Init(t *testing.T) {
	s := &Splunk{}
	assert.Error(t, s.Init(map[string]any{}))

	assert.Error(t, s.Init(map[string]any{"Token": "t", "Scheme": "ftp"}))
	assert.Error(t, s.Init(map[string]any{"Token": "t", "Port": "8088"}))

	require.NoError(t, s.Init(map[string]any{"Token": "t"}))
	assert.Equal(t, "splunk", s.Name())
	assert.Equal(t, "https://localhost:8088/services/collector/event", s.url())
	assert.True(t, s.verifyTLS)
}

func TestSplunk_Send(t *testing.T) {
	var got []hecEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/collector/event", r.URL.Path)
		assert.Equal(t, "Splunk secret", r.Header.Get("Authorization"))
		got = decodeEvents(t, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSplunk(t, srv, map[string]any{"EventIndex": "main"})
	events := []internal.LogEvent{
		{Message: "first", TimestampMs: 1500},
		{Message: "second", TimestampMs: 2000},
	}

	out, err := s.Send(context.Background(), "app", "web01-syslog", events, "")
	require.NoError(t, err)
	assert.Equal(t, sink.Outcome{Status: sink.Delivered, Token: "1"}, out)

	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Event)
	assert.Equal(t, 1.5, got[0].Time)
	assert.Equal(t, "web01-syslog", got[0].Source)
	assert.Equal(t, "main", got[0].Index)
	assert.Equal(t, "app", got[1].Fields["log_group"])
}

func TestSplunk_SendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"text":"Invalid token","code":4}`, http.StatusForbidden)
	}))
	defer srv.Close()

	s := newTestSplunk(t, srv, nil)
	_, err := s.Send(context.Background(), "app", "web01", []internal.LogEvent{{Message: "x"}}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "Invalid token")
}
