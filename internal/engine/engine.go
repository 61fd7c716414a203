package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/state"
)

// Runner is one independent shipping loop.
type Runner interface {
	File() internal.WatchedFile
	Run(ctx context.Context) error
}

type Engine struct {
	runners []Runner
	sinks   []internal.Plugin
	store   state.Store
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	failed []error
}

func NewEngine() *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// RegisterRunner adds a shipper to the engine
func (e *Engine) RegisterRunner(r Runner) {
	e.runners = append(e.runners, r)
}

// RegisterSink adds a sink that is shut down on Stop
func (e *Engine) RegisterSink(s internal.Plugin) {
	e.sinks = append(e.sinks, s)
}

// SetStore hands the state store to the engine, it is closed on Stop
func (e *Engine) SetStore(s state.Store) {
	e.store = s
}

// Start launches every runner in its own goroutine. A runner that fails
// is logged and left stopped; the others keep going.
func (e *Engine) Start() error {
	if len(e.runners) == 0 {
		return errors.New("no files to watch")
	}

	for _, r := range e.runners {
		e.wg.Add(1)
		go func(r Runner) {
			defer e.wg.Done()
			log := logrus.WithField("file", r.File().Path)
			if err := r.Run(e.ctx); err != nil {
				log.WithError(err).WithField("fatal", true).Error("[Engine] Shipper stopped")
				e.mu.Lock()
				e.failed = append(e.failed, err)
				e.mu.Unlock()
			}
		}(r)
	}

	go func() {
		e.wg.Wait()
		close(e.done)
	}()

	return nil
}

// Done is closed once every runner has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Failed returns the fatal errors of the runners that stopped on their own.
func (e *Engine) Failed() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.failed...)
}

// Stop gracefully shuts down the engine
func (e *Engine) Stop() error {
	e.cancel()
	e.wg.Wait()

	var errs []error
	for _, s := range e.sinks {
		if err := s.Exit(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
