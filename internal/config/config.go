package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/reader"
	"github.com/MuchTitan/awatchlog/internal/shipper"
	"github.com/MuchTitan/awatchlog/internal/state"
	"github.com/MuchTitan/awatchlog/internal/timestamp"
)

// DefaultPath is read when no config file is given on the command line.
const DefaultPath = "/usr/share/awatchlog/config.yaml"

var (
	ValidSinks         = []string{"cloudwatch", "gelf", "splunk", "stdout", "counter"}
	ValidStateBackends = []string{"file", "sqlite"}
)

// Config represents the complete configuration
type Config struct {
	System  SystemConfig           `yaml:"System"`
	Sink    map[string]any         `yaml:"Sink"`
	Shipper ShipperConfig          `yaml:"Shipper"`
	Files   []internal.WatchedFile `yaml:"Files"`
}

// SystemConfig holds system-wide configuration
type SystemConfig struct {
	LogLevel      string `yaml:"logLevel"`
	LogFile       string `yaml:"logFile"`
	LogMaxSizeMB  int    `yaml:"logMaxSizeMB"`
	LogMaxBackups int    `yaml:"logMaxBackups"`
	LogMaxAgeDays int    `yaml:"logMaxAgeDays"`
	StateBackend  string `yaml:"stateBackend"`
	StateDir      string `yaml:"stateDir"`
	DBFile        string `yaml:"dbFile"`
	MetricsAddr   string `yaml:"metricsAddr"`
}

// ShipperConfig tunes every shipper. Zero values keep the built-in defaults.
type ShipperConfig struct {
	IdleDelay          time.Duration `yaml:"idleDelay"`
	PaceDelay          time.Duration `yaml:"paceDelay"`
	InitialWindow      uint64        `yaml:"initialWindow"`
	TruncationDelta    uint64        `yaml:"truncationDelta"`
	MaxConflictRetries *int          `yaml:"maxConflictRetries"`
	DefaultOffset      string        `yaml:"defaultOffset"`
}

func (c *SystemConfig) GetLogLevel() logrus.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "TRACE":
		return logrus.TraceLevel
	case "DEBUG":
		return logrus.DebugLevel
	case "WARNING", "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		// Default LogLevel Info
		return logrus.InfoLevel
	}
}

// Options converts the section to shipper options.
func (c ShipperConfig) Options() shipper.Options {
	opts := shipper.DefaultOptions()
	if c.IdleDelay > 0 {
		opts.IdleDelay = c.IdleDelay
	}
	if c.PaceDelay > 0 {
		opts.PaceDelay = c.PaceDelay
	}
	if c.InitialWindow > 0 {
		opts.InitialWindow = c.InitialWindow
	}
	if c.TruncationDelta > 0 {
		opts.Delta = c.TruncationDelta
	}
	if c.MaxConflictRetries != nil {
		opts.MaxConflictRetries = *c.MaxConflictRetries
	}
	opts.DefaultOffset = c.DefaultOffset
	return opts
}

// Load reads, expands and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file access.
func Parse(data []byte) (*Config, error) {
	// Replace environment variables
	expandedData := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.System.StateBackend == "" {
		c.System.StateBackend = "file"
	}
	if c.System.StateDir == "" {
		c.System.StateDir = state.DefaultDir
	}
	if c.System.DBFile == "" {
		c.System.DBFile = filepath.Join(filepath.Dir(state.DefaultDir), "state.db")
	}
	if c.System.LogMaxSizeMB == 0 {
		c.System.LogMaxSizeMB = 100
	}
	if c.System.LogMaxBackups == 0 {
		c.System.LogMaxBackups = 3
	}
	if c.System.LogMaxAgeDays == 0 {
		c.System.LogMaxAgeDays = 28
	}
	if c.Sink == nil {
		c.Sink = map[string]any{"Type": "cloudwatch"}
	}
	if c.Shipper.DefaultOffset == "" {
		c.Shipper.DefaultOffset = timestamp.DefaultOffset
	}
}

// Validate checks everything that can be checked before a sink is
// contacted, including every datetime format.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(ValidStateBackends, c.System.StateBackend) {
		errs = append(errs, fmt.Errorf("unknown state backend: %s", c.System.StateBackend))
	}

	sinkType, _ := c.Sink["Type"].(string)
	if !slices.Contains(ValidSinks, strings.ToLower(sinkType)) {
		errs = append(errs, fmt.Errorf("unknown sink type: %v", c.Sink["Type"]))
	}

	if c.Shipper.IdleDelay < 0 || c.Shipper.PaceDelay < 0 {
		errs = append(errs, errors.New("shipper delays must not be negative"))
	}
	if w := c.Shipper.InitialWindow; w != 0 && (w < reader.MinWindow || w > reader.MaxWindow) {
		errs = append(errs, fmt.Errorf("initialWindow must be between %d and %d", reader.MinWindow, reader.MaxWindow))
	}
	if r := c.Shipper.MaxConflictRetries; r != nil && *r < 0 {
		errs = append(errs, errors.New("maxConflictRetries must not be negative"))
	}
	if _, err := timestamp.ParseOffset(c.Shipper.DefaultOffset); err != nil {
		errs = append(errs, err)
	}

	if len(c.Files) == 0 {
		errs = append(errs, errors.New("no files configured"))
	}
	seen := make(map[string]bool, len(c.Files))
	for i, f := range c.Files {
		if f.Path == "" {
			errs = append(errs, fmt.Errorf("file #%d: missing file", i+1))
			continue
		}
		if f.LogGroupName == "" || f.LogStreamName == "" {
			errs = append(errs, fmt.Errorf("file %s: logGroupName and logStreamName are required", f.Path))
		}
		if f.DatetimeFormat != "" {
			if _, err := timestamp.Compile(f.DatetimeFormat); err != nil {
				errs = append(errs, fmt.Errorf("file %s: %w", f.Path, err))
			}
		}
		// two shippers on one file would share a state key
		key := state.FileKey(f.Path)
		if seen[key] {
			errs = append(errs, fmt.Errorf("file %s is configured twice", f.Path))
		}
		seen[key] = true
	}

	return errors.Join(errs...)
}
