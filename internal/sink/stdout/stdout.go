// Package stdout prints batches instead of shipping them, for dry runs.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/sink"
	"github.com/MuchTitan/awatchlog/internal/util"
)

var ValidFormats = []string{"json", "plain", "template"}

type Stdout struct {
	name       string
	format     string             // Output format (json, template, plain)
	template   *template.Template // Custom output template
	jsonIndent bool
	mutex      sync.Mutex // shippers share the sink, keep lines whole
	out        io.Writer
}

func (s *Stdout) Name() string {
	return s.name
}

func (s *Stdout) Init(config map[string]any) error {
	s.name = util.MustString(config["Name"])
	if s.name == "" {
		s.name = "stdout"
	}

	s.format = util.MustString(config["Format"])
	if s.format == "" {
		s.format = "json"
	}

	if !slices.Contains(ValidFormats, s.format) {
		return fmt.Errorf("not a valid format for stdout provided: %s", s.format)
	}

	var err error
	if s.jsonIndent, err = util.BoolOr(config["JsonIndent"], false); err != nil {
		return fmt.Errorf("json indent: %w", err)
	}

	if templateStr := util.MustString(config["Template"]); templateStr != "" {
		tmpl, err := template.New("output").Parse(templateStr)
		if err != nil {
			return fmt.Errorf("failed to parse template: %v", err)
		}
		s.template = tmpl
		s.format = "template"
	}
	if s.format == "template" && s.template == nil {
		return fmt.Errorf("template format needs a Template")
	}

	if s.out == nil {
		s.out = os.Stdout
	}
	return nil
}

func (s *Stdout) EnsureLogGroup(ctx context.Context, group string) error {
	return nil
}

func (s *Stdout) EnsureLogStream(ctx context.Context, group, stream string) error {
	return nil
}

type record struct {
	Timestamp time.Time
	Group     string
	Stream    string
	Message   string
}

func (s *Stdout) Send(ctx context.Context, group, stream string, events []internal.LogEvent, token string) (sink.Outcome, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, event := range events {
		rec := record{
			Timestamp: time.UnixMilli(event.TimestampMs).UTC(),
			Group:     group,
			Stream:    stream,
			Message:   event.Message,
		}

		var output string
		var err error
		switch s.format {
		case "json":
			output, err = s.formatJSON(rec)
		case "template":
			output, err = s.formatTemplate(rec)
		case "plain":
			output = s.formatPlain(rec)
		default:
			err = fmt.Errorf("unknown format: %s", s.format)
		}
		if err != nil {
			return sink.Outcome{}, fmt.Errorf("failed to format record: %w", err)
		}

		if _, err := fmt.Fprintln(s.out, output); err != nil {
			return sink.Outcome{}, err
		}
	}

	return sink.Outcome{Status: sink.Delivered, Token: sink.NextLocalToken(token)}, nil
}

func (s *Stdout) formatJSON(rec record) (string, error) {
	formatted := map[string]any{
		"timestamp": rec.Timestamp.Format(time.RFC3339Nano),
		"group":     rec.Group,
		"stream":    rec.Stream,
		"message":   rec.Message,
	}

	var bytes []byte
	var err error
	if s.jsonIndent {
		bytes, err = json.MarshalIndent(formatted, "", "  ")
	} else {
		bytes, err = json.Marshal(formatted)
	}
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (s *Stdout) formatTemplate(rec record) (string, error) {
	builder := &strings.Builder{}
	if err := s.template.Execute(builder, rec); err != nil {
		return "", err
	}
	return builder.String(), nil
}

func (s *Stdout) formatPlain(rec record) string {
	return fmt.Sprintf("%s [%s/%s] %s", rec.Timestamp.Format(time.RFC3339), rec.Group, rec.Stream, rec.Message)
}

func (s *Stdout) Exit() error {
	return nil
}
