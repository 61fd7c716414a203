// Package gelf ships batches to Graylog as GELF messages.
package gelf

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/Graylog2/go-gelf.v2/gelf"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/sink"
	"github.com/MuchTitan/awatchlog/internal/util"
)

type GELF struct {
	name    string
	host    string
	hostKey string
	port    int
	mode    string
	writer  gelf.Writer
}

func (g *GELF) Name() string {
	return g.name
}

func (g *GELF) Init(config map[string]any) error {
	g.name = util.MustString(config["Name"])
	if g.name == "" {
		g.name = "gelf"
	}

	g.host = util.MustString(config["Host"])
	if g.host == "" {
		g.host = "127.0.0.1"
	}

	g.hostKey = util.MustString(config["HostKey"])
	if g.hostKey == "" {
		return errors.New("please provide a valid HostKey for the gelf sink")
	}

	g.mode = util.MustString(config["Mode"])
	if g.mode == "" {
		g.mode = "udp"
	}
	if g.mode != "udp" && g.mode != "tcp" {
		return fmt.Errorf("mode: '%v' is not supported", g.mode)
	}

	var err error
	if g.port, err = util.IntOr(config["Port"], 12201); err != nil {
		return fmt.Errorf("gelf port: %w", err)
	}

	return g.setupWriter()
}

func (g *GELF) setupWriter() error {
	addr := fmt.Sprintf("%s:%d", g.host, g.port)
	var w gelf.Writer
	var err error

	switch g.mode {
	case "udp":
		w, err = gelf.NewUDPWriter(addr)
	case "tcp":
		w, err = gelf.NewTCPWriter(addr)
	default:
		return fmt.Errorf("unsupported mode: %s", g.mode)
	}

	if err != nil {
		return fmt.Errorf("failed to create %s writer: %w", g.mode, err)
	}

	g.writer = w
	return nil
}

// Graylog has no log containers, both calls succeed without I/O.
func (g *GELF) EnsureLogGroup(ctx context.Context, group string) error {
	return nil
}

func (g *GELF) EnsureLogStream(ctx context.Context, group, stream string) error {
	return nil
}

func (g *GELF) Send(ctx context.Context, group, stream string, events []internal.LogEvent, token string) (sink.Outcome, error) {
	for _, event := range events {
		msg := &gelf.Message{
			Version:  "1.1",
			Host:     g.hostKey,
			Short:    event.Message,
			TimeUnix: float64(event.TimestampMs) / 1000,
			Level:    gelf.LOG_INFO,
			Extra: map[string]any{
				"_log_group":  group,
				"_log_stream": stream,
			},
		}
		if err := g.writer.WriteMessage(msg); err != nil {
			return sink.Outcome{}, fmt.Errorf("could not write gelf message: %w", err)
		}
	}
	return sink.Outcome{Status: sink.Delivered, Token: sink.NextLocalToken(token)}, nil
}

func (g *GELF) Exit() error {
	if g.writer != nil {
		if closer, ok := g.writer.(io.Closer); ok {
			return closer.Close()
		}
	}
	return nil
}
