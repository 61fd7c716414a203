package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/MuchTitan/awatchlog/internal/engine"
	"github.com/MuchTitan/awatchlog/internal/metrics"
	"github.com/MuchTitan/awatchlog/internal/shipper"
	"github.com/MuchTitan/awatchlog/internal/sink"
	"github.com/MuchTitan/awatchlog/internal/sink/cloudwatch"
	"github.com/MuchTitan/awatchlog/internal/sink/counter"
	"github.com/MuchTitan/awatchlog/internal/sink/gelf"
	"github.com/MuchTitan/awatchlog/internal/sink/splunk"
	"github.com/MuchTitan/awatchlog/internal/sink/stdout"
	"github.com/MuchTitan/awatchlog/internal/state"
)

// Agent is the engine wired from a configuration
type Agent struct {
	*engine.Engine
	config   *Config
	sink     sink.Sink
	shippers []*shipper.Shipper
	registry *prometheus.Registry
	server   *http.Server
}

// NewAgent builds the sink, the state store and one shipper per file.
func NewAgent(cfg *Config, fsys afero.Fs) (*Agent, error) {
	a := &Agent{
		Engine:   engine.NewEngine(),
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(a.registry)

	store, err := NewStore(cfg.System, fsys)
	if err != nil {
		return nil, err
	}
	a.SetStore(store)

	a.sink, err = newSink(cfg.Sink)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize sink: %w", err)
	}
	a.RegisterSink(a.sink)

	opts := cfg.Shipper.Options()
	for _, file := range cfg.Files {
		s, err := shipper.New(file, a.sink, store, fsys, collector, opts)
		if err != nil {
			a.sink.Exit()
			store.Close()
			return nil, err
		}
		a.shippers = append(a.shippers, s)
		a.RegisterRunner(s)
	}

	return a, nil
}

// NewStore opens the configured state backend.
func NewStore(sys SystemConfig, fsys afero.Fs) (state.Store, error) {
	switch sys.StateBackend {
	case "sqlite":
		return state.NewSQLiteStore(sys.DBFile)
	case "file", "":
		return state.NewFileStore(fsys, sys.StateDir)
	default:
		return nil, fmt.Errorf("unknown state backend: %s", sys.StateBackend)
	}
}

func newSink(config map[string]any) (sink.Sink, error) {
	var sinkObject sink.Sink

	sinkType, _ := config["Type"].(string)
	switch strings.ToLower(sinkType) {
	case "cloudwatch":
		sinkObject = &cloudwatch.CloudWatch{}
	case "gelf":
		sinkObject = &gelf.GELF{}
	case "splunk":
		sinkObject = &splunk.Splunk{}
	case "stdout":
		sinkObject = &stdout.Stdout{}
	case "counter":
		sinkObject = &counter.Counter{}
	default:
		return nil, fmt.Errorf("unknown sink type: %v", config["Type"])
	}

	if err := sinkObject.Init(config); err != nil {
		return nil, err
	}
	return sinkObject, nil
}

// Start serves metrics, if configured, and starts the shippers.
func (a *Agent) Start() error {
	if addr := a.config.System.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.registry))
		a.server = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logrus.WithField("addr", addr).Info("Serving metrics")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithError(err).Error("Metrics server stopped")
			}
		}()
	}
	for _, s := range a.shippers {
		file := s.File()
		logrus.WithFields(logrus.Fields{
			"file":   file.Path,
			"group":  file.LogGroupName,
			"stream": file.LogStreamName,
			"sink":   a.sink.Name(),
		}).Info("Watching file")
	}
	return a.Engine.Start()
}

// Stop drains the shippers and releases the sink and store.
func (a *Agent) Stop() error {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("Metrics server did not shut down cleanly")
		}
	}
	return a.Engine.Stop()
}
