package internal

// WatchedFile describes one log file and where its lines are shipped.
// It is read-only once a shipper has been started for it.
type WatchedFile struct {
	Path            string `yaml:"file"`
	LogGroupName    string `yaml:"logGroupName"`
	LogStreamName   string `yaml:"logStreamName"`
	DatetimeFormat  string `yaml:"datetimeFormat"`
	TruncationDelta uint64 `yaml:"truncationDelta"`
}

// LogEvent is a single line with its original timestamp in epoch milliseconds.
type LogEvent struct {
	Message     string
	TimestampMs int64
}

// Plugin interface that all sink plugins must implement
type Plugin interface {
	Name() string
	Init(config map[string]any) error
	Exit() error
}
