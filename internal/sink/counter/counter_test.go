package counter

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/sink"
)

func TestCounter_Init(t *testing.T) {
	c := &Counter{}
	err := c.Init(map[string]any{"Name": "test_counter", "Print": true})
	assert.NoError(t, err)
	assert.Equal(t, "test_counter", c.Name())
	assert.True(t, c.print)
}

func TestCounter_DefaultInit(t *testing.T) {
	c := &Counter{}
	assert.NoError(t, c.Init(map[string]any{}))
	assert.Equal(t, "counter", c.Name())
	assert.False(t, c.print)

	assert.Error(t, c.Init(map[string]any{"Print": "yes"}))
}

func TestCounter_Send(t *testing.T) {
	var buf bytes.Buffer
	c := &Counter{out: &buf}
	require.NoError(t, c.Init(map[string]any{"Print": true}))

	events := []internal.LogEvent{{Message: "a"}, {Message: "b"}}
	out, err := c.Send(context.Background(), "app", "web01", events, "")
	require.NoError(t, err)
	assert.Equal(t, sink.Outcome{Status: sink.Delivered, Token: "1"}, out)

	out, err = c.Send(context.Background(), "app", "web01", events[:1], out.Token)
	require.NoError(t, err)
	assert.Equal(t, "2", out.Token)

	assert.Equal(t, uint64(3), c.Count("app", "web01"))
	assert.Zero(t, c.Count("app", "other"))
	assert.Equal(t, "{\"group\":\"app\",\"stream\":\"web01\",\"count\":2}\n{\"group\":\"app\",\"stream\":\"web01\",\"count\":3}\n", buf.String())
	assert.NoError(t, c.Exit())
}

func TestCounter_ConcurrentSend(t *testing.T) {
	c := &Counter{}
	require.NoError(t, c.Init(map[string]any{}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Send(context.Background(), "app", "web01", []internal.LogEvent{{Message: "x"}}, "")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), c.Count("app", "web01"))
}
