// Package counter accepts every batch and only counts it, for dry runs and
// throughput tests.
package counter

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/sink"
	"github.com/MuchTitan/awatchlog/internal/util"
)

type Counter struct {
	name   string
	print  bool
	mu     sync.Mutex
	counts map[string]uint64
	out    io.Writer
}

type countLine struct {
	Group  string `json:"group"`
	Stream string `json:"stream"`
	Count  uint64 `json:"count"`
}

func (c *Counter) Name() string {
	return c.name
}

func (c *Counter) Init(config map[string]any) error {
	c.name = util.MustString(config["Name"])
	if c.name == "" {
		c.name = "counter"
	}

	var err error
	if c.print, err = util.BoolOr(config["Print"], false); err != nil {
		return err
	}

	c.counts = make(map[string]uint64)
	if c.out == nil {
		c.out = os.Stdout
	}
	return nil
}

func (c *Counter) EnsureLogGroup(ctx context.Context, group string) error {
	return nil
}

func (c *Counter) EnsureLogStream(ctx context.Context, group, stream string) error {
	return nil
}

func (c *Counter) Send(ctx context.Context, group, stream string, events []internal.LogEvent, token string) (sink.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := group + "/" + stream
	c.counts[key] += uint64(len(events))

	if c.print {
		data, _ := json.Marshal(countLine{Group: group, Stream: stream, Count: c.counts[key]})
		if _, err := c.out.Write(append(data, '\n')); err != nil {
			return sink.Outcome{}, err
		}
	}
	return sink.Outcome{Status: sink.Delivered, Token: sink.NextLocalToken(token)}, nil
}

// Count returns the number of events accepted for a stream so far.
func (c *Counter) Count(group, stream string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[group+"/"+stream]
}

func (c *Counter) Exit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, count := range c.counts {
		logrus.WithFields(logrus.Fields{"stream": key, "count": count}).Info("Events counted")
	}
	return nil
}
