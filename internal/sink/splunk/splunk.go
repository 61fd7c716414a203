// Package splunk ships batches to a Splunk HTTP Event Collector.
package splunk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/sink"
	"github.com/MuchTitan/awatchlog/internal/util"
)

type Splunk struct {
	name       string
	token      string
	scheme     string
	host       string
	port       int
	eventHost  string
	sourceType string
	index      string
	verifyTLS  bool
	httpClient *http.Client
}

type hecEvent struct {
	Event      string            `json:"event"`
	Time       float64           `json:"time"`
	Host       string            `json:"host"`
	Source     string            `json:"source"`
	Sourcetype string            `json:"sourcetype"`
	Index      string            `json:"index,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (s *Splunk) Name() string {
	return s.name
}

func (s *Splunk) Init(config map[string]any) error {
	// Required fields
	s.token = util.MustString(config["Token"])
	if s.token == "" {
		return errors.New("splunk token is required")
	}

	// Optional fields with defaults
	s.name = util.MustString(config["Name"])
	if s.name == "" {
		s.name = "splunk"
	}

	s.index = util.MustString(config["EventIndex"])

	s.scheme = util.MustString(config["Scheme"])
	if s.scheme == "" {
		s.scheme = "https"
	}
	if s.scheme != "http" && s.scheme != "https" {
		return fmt.Errorf("scheme: '%v' is not supported", s.scheme)
	}

	s.host = util.MustString(config["Host"])
	if s.host == "" {
		s.host = "localhost"
	}

	s.eventHost = util.MustString(config["EventHost"])
	if s.eventHost == "" {
		hostname, _ := os.Hostname()
		s.eventHost = hostname
	}

	s.sourceType = util.MustString(config["EventSourcetype"])
	if s.sourceType == "" {
		s.sourceType = "awatchlog"
	}

	var err error
	if s.port, err = util.IntOr(config["Port"], 8088); err != nil {
		return fmt.Errorf("splunk port: %w", err)
	}
	if s.verifyTLS, err = util.BoolOr(config["VerifyTLS"], true); err != nil {
		return fmt.Errorf("splunk verify tls: %w", err)
	}

	// Setup TLS
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !s.verifyTLS,
		},
	}

	s.httpClient = &http.Client{
		Transport: tr,
		Timeout:   time.Second * 30,
	}
	return nil
}

// The collector has no containers to create.
func (s *Splunk) EnsureLogGroup(ctx context.Context, group string) error {
	return nil
}

func (s *Splunk) EnsureLogStream(ctx context.Context, group, stream string) error {
	return nil
}

func (s *Splunk) url() string {
	return fmt.Sprintf("%s://%s:%d/services/collector/event", s.scheme, s.host, s.port)
}

func (s *Splunk) Send(ctx context.Context, group, stream string, events []internal.LogEvent, token string) (sink.Outcome, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, event := range events {
		err := enc.Encode(hecEvent{
			Event:      event.Message,
			Time:       float64(event.TimestampMs) / 1000,
			Host:       s.eventHost,
			Source:     stream,
			Sourcetype: s.sourceType,
			Index:      s.index,
			Fields:     map[string]string{"log_group": group},
		})
		if err != nil {
			return sink.Outcome{}, fmt.Errorf("failed to marshal events: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url(), &body)
	if err != nil {
		return sink.Outcome{}, err
	}
	req.Header.Set("Authorization", "Splunk "+s.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return sink.Outcome{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		logrus.WithFields(logrus.Fields{
			"url":    req.URL.String(),
			"status": res.Status,
			"events": len(events),
		}).Debug("Splunk request rejected")
		return sink.Outcome{}, fmt.Errorf("splunk returned status %s: %s", res.Status, bytes.TrimSpace(msg))
	}

	return sink.Outcome{Status: sink.Delivered, Token: sink.NextLocalToken(token)}, nil
}

func (s *Splunk) Exit() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
