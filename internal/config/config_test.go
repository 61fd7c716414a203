package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuchTitan/awatchlog/internal/reader"
	"github.com/MuchTitan/awatchlog/internal/sink/counter"
	"github.com/MuchTitan/awatchlog/internal/state"
	"github.com/MuchTitan/awatchlog/internal/timestamp"
)

const sample = `
System:
  logLevel: debug
  stateDir: ${AWATCHLOG_STATE_DIR}
Sink:
  Type: stdout
  Format: plain
Shipper:
  idleDelay: 2s
  paceDelay: 100ms
  maxConflictRetries: 0
Files:
  - file: /var/log/syslog
    logGroupName: system
    logStreamName: ${AWATCHLOG_HOST}-syslog
    datetimeFormat: "%b %d %H:%M:%S"
  - file: /var/log/nginx/error.log
    logGroupName: nginx
    logStreamName: error
    truncationDelta: 512
`

func TestParse(t *testing.T) {
	t.Setenv("AWATCHLOG_STATE_DIR", "/tmp/states")
	t.Setenv("AWATCHLOG_HOST", "web01")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/states", cfg.System.StateDir)
	assert.Equal(t, "file", cfg.System.StateBackend)
	assert.Equal(t, logrus.DebugLevel, cfg.System.GetLogLevel())
	assert.Equal(t, "stdout", cfg.Sink["Type"])

	require.Len(t, cfg.Files, 2)
	assert.Equal(t, "web01-syslog", cfg.Files[0].LogStreamName)
	assert.Equal(t, "%b %d %H:%M:%S", cfg.Files[0].DatetimeFormat)
	assert.Equal(t, uint64(512), cfg.Files[1].TruncationDelta)

	opts := cfg.Shipper.Options()
	assert.Equal(t, 2*time.Second, opts.IdleDelay)
	assert.Equal(t, 100*time.Millisecond, opts.PaceDelay)
	assert.Equal(t, 0, opts.MaxConflictRetries)
	assert.Equal(t, uint64(reader.InitialWindow), opts.InitialWindow)
	assert.Equal(t, timestamp.DefaultOffset, opts.DefaultOffset)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
Files:
  - file: /var/log/app.log
    logGroupName: app
    logStreamName: app
`))
	require.NoError(t, err)

	assert.Equal(t, state.DefaultDir, cfg.System.StateDir)
	assert.Equal(t, "cloudwatch", cfg.Sink["Type"])
	assert.Equal(t, logrus.InfoLevel, cfg.System.GetLogLevel())

	opts := cfg.Shipper.Options()
	assert.Equal(t, 5*time.Second, opts.IdleDelay)
	assert.Equal(t, 400*time.Millisecond, opts.PaceDelay)
	assert.Equal(t, 10, opts.MaxConflictRetries)
	assert.Equal(t, uint64(reader.DefaultDelta), opts.Delta)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no files",
			yaml: "Sink:\n  Type: stdout\n",
			want: "no files configured",
		},
		{
			name: "unknown sink",
			yaml: "Sink:\n  Type: kafka\nFiles:\n  - {file: /a, logGroupName: g, logStreamName: s}\n",
			want: "unknown sink type",
		},
		{
			name: "unknown backend",
			yaml: "System:\n  stateBackend: redis\nFiles:\n  - {file: /a, logGroupName: g, logStreamName: s}\n",
			want: "unknown state backend",
		},
		{
			name: "bad datetime format",
			yaml: "Files:\n  - {file: /a, logGroupName: g, logStreamName: s, datetimeFormat: '%Q'}\n",
			want: "unsupported directive",
		},
		{
			name: "missing stream",
			yaml: "Files:\n  - {file: /a, logGroupName: g}\n",
			want: "logGroupName and logStreamName are required",
		},
		{
			name: "duplicate file",
			yaml: "Files:\n  - {file: /a, logGroupName: g, logStreamName: s}\n  - {file: /a, logGroupName: h, logStreamName: t}\n",
			want: "configured twice",
		},
		{
			name: "window too small",
			yaml: "Shipper:\n  initialWindow: 100\nFiles:\n  - {file: /a, logGroupName: g, logStreamName: s}\n",
			want: "initialWindow",
		},
		{
			name: "bad offset",
			yaml: "Shipper:\n  defaultOffset: CET\nFiles:\n  - {file: /a, logGroupName: g, logStreamName: s}\n",
			want: "invalid zone offset",
		},
		{
			name: "broken yaml",
			yaml: "Files: [",
			want: "failed to parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Files:\n  - {file: /a, logGroupName: g, logStreamName: s}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Files, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestGetLogLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"trace":   logrus.TraceLevel,
		"DEBUG":   logrus.DebugLevel,
		"warning": logrus.WarnLevel,
		"warn":    logrus.WarnLevel,
		"Error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for value, want := range tests {
		sys := SystemConfig{LogLevel: value}
		assert.Equal(t, want, sys.GetLogLevel(), value)
	}
}

func TestSetupLogging_WritesJSONToFile(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetLevel(logrus.InfoLevel)

	path := filepath.Join(t.TempDir(), "awatchlog.log")
	closeLog := SetupLogging(SystemConfig{LogLevel: "debug", LogFile: path, LogMaxSizeMB: 1})

	logrus.WithField("file", "/var/log/app.log").Debug("hello")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.True(t, strings.HasPrefix(line, "{"), line)
	assert.Contains(t, line, `"msg":"hello"`)
	assert.Contains(t, line, `"file":"/var/log/app.log"`)
}

func TestNewStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewStore(SystemConfig{StateBackend: "file", StateDir: "/states"}, fs)
	require.NoError(t, err)
	assert.IsType(t, &state.FileStore{}, store)

	store, err = NewStore(SystemConfig{StateBackend: "sqlite", DBFile: filepath.Join(t.TempDir(), "state.db")}, fs)
	require.NoError(t, err)
	assert.IsType(t, &state.SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = NewStore(SystemConfig{StateBackend: "etcd"}, fs)
	assert.Error(t, err)
}

func TestAgent_StartStop(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/log/app.log", nil, 0o644))

	cfg, err := Parse([]byte(`
System:
  stateDir: /states
Sink:
  Type: stdout
Shipper:
  idleDelay: 1h
Files:
  - {file: /var/log/app.log, logGroupName: app, logStreamName: web01}
`))
	require.NoError(t, err)

	agent, err := NewAgent(cfg, fs)
	require.NoError(t, err)
	require.Len(t, agent.shippers, 1)
	assert.Equal(t, "stdout", agent.sink.Name())

	hook := test.NewGlobal()
	defer hook.Reset()

	require.NoError(t, agent.Start())
	require.NoError(t, agent.Stop())
	assert.Empty(t, agent.Failed())

	var watching *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "Watching file" {
			watching = e
		}
	}
	require.NotNil(t, watching)
	assert.Equal(t, "/var/log/app.log", watching.Data["file"])
	assert.Equal(t, "web01", watching.Data["stream"])
	assert.Equal(t, "stdout", watching.Data["sink"])
}

func TestNewAgent_SinkInitError(t *testing.T) {
	cfg := &Config{
		System: SystemConfig{StateBackend: "file", StateDir: "/states"},
		Sink:   map[string]any{"Type": "stdout", "Format": "xml"},
	}
	_, err := NewAgent(cfg, afero.NewMemMapFs())
	assert.ErrorContains(t, err, "failed to initialize sink")
}

func TestAgent_ShipsAndPersists(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/log/app.log", []byte("2024-01-02 03:04:05 one\n2024-01-02 03:04:06 two\n"), 0o644))

	cfg, err := Parse([]byte(`
System:
  stateDir: /states
Sink:
  Type: counter
Shipper:
  idleDelay: 5ms
  paceDelay: 5ms
Files:
  - file: /var/log/app.log
    logGroupName: app
    logStreamName: web01
    datetimeFormat: "%Y-%m-%d %H:%M:%S"
`))
	require.NoError(t, err)

	agent, err := NewAgent(cfg, fs)
	require.NoError(t, err)
	c, ok := agent.sink.(*counter.Counter)
	require.True(t, ok)

	require.NoError(t, agent.Start())
	require.Eventually(t, func() bool { return c.Count("app", "web01") == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, agent.Stop())

	store, err := state.NewFileStore(fs, "/states")
	require.NoError(t, err)
	st, err := store.Load(state.FileKey("/var/log/app.log"))
	require.NoError(t, err)
	assert.Equal(t, uint64(48), st.Offset)
	assert.Equal(t, "1", st.Token)
}
