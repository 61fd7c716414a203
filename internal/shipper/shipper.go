// Package shipper drives one watched file: it reads new lines, sends them
// to the sink in order and records how far the sink has acknowledged.
package shipper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/batch"
	"github.com/MuchTitan/awatchlog/internal/metrics"
	"github.com/MuchTitan/awatchlog/internal/reader"
	"github.com/MuchTitan/awatchlog/internal/sink"
	"github.com/MuchTitan/awatchlog/internal/state"
)

// Phase names a state of the shipping loop.
type Phase string

const (
	PhaseInitializing      Phase = "initializing"
	PhaseEnsureDestination Phase = "ensure_destination"
	PhaseIdle              Phase = "idle"
	PhaseReading           Phase = "reading"
	PhaseSending           Phase = "sending"
	PhasePersisting        Phase = "persisting"
	PhaseBackoff           Phase = "backoff"
)

// ErrConflictLoop stops a shipper whose sink keeps rejecting its token.
var ErrConflictLoop = errors.New("too many consecutive sequence token conflicts")

// FatalError ends one shipper. Other shippers are not affected.
type FatalError struct {
	File  string
	Phase Phase
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("shipper for %s failed while %s: %v", e.File, e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Options tune the loop. Zero values are replaced by DefaultOptions.
type Options struct {
	IdleDelay          time.Duration
	PaceDelay          time.Duration
	InitialWindow      uint64
	Delta              uint64
	MaxConflictRetries int
	DefaultOffset      string
}

func DefaultOptions() Options {
	return Options{
		IdleDelay:          5 * time.Second,
		PaceDelay:          400 * time.Millisecond,
		InitialWindow:      reader.InitialWindow,
		Delta:              reader.DefaultDelta,
		MaxConflictRetries: 10,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.IdleDelay == 0 {
		o.IdleDelay = def.IdleDelay
	}
	if o.PaceDelay == 0 {
		o.PaceDelay = def.PaceDelay
	}
	if o.InitialWindow == 0 {
		o.InitialWindow = def.InitialWindow
	}
	if o.Delta == 0 {
		o.Delta = def.Delta
	}
	return o
}

// Shipper owns the offset, token and window of a single file. It is not
// safe for concurrent use; Run is its only driver.
type Shipper struct {
	file    internal.WatchedFile
	key     string
	sink    sink.Sink
	store   state.Store
	reader  *reader.Reader
	builder *batch.Builder
	metrics *metrics.Collector
	opts    Options
	delta   uint64
	log     *logrus.Entry

	phase     Phase
	offset    uint64
	token     string
	window    uint64
	conflicts int
}

// New prepares a shipper. collector may be nil.
func New(file internal.WatchedFile, snk sink.Sink, store state.Store, fsys afero.Fs, collector *metrics.Collector, opts Options) (*Shipper, error) {
	opts = opts.withDefaults()

	builder, err := batch.NewBuilder(file, opts.DefaultOffset)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", file.Path, err)
	}

	delta := opts.Delta
	if file.TruncationDelta > 0 {
		delta = file.TruncationDelta
	}

	return &Shipper{
		file:    file,
		key:     state.FileKey(file.Path),
		sink:    snk,
		store:   store,
		reader:  reader.New(fsys),
		builder: builder,
		metrics: collector,
		opts:    opts,
		delta:   delta,
		window:  opts.InitialWindow,
		log: logrus.WithFields(logrus.Fields{
			"file":   file.Path,
			"group":  file.LogGroupName,
			"stream": file.LogStreamName,
		}),
	}, nil
}

// File returns the watched file the shipper serves.
func (s *Shipper) File() internal.WatchedFile {
	return s.file
}

// Run ships the file until ctx is cancelled or a fatal error occurs. A
// cancelled context lets the current iteration finish and persist first.
func (s *Shipper) Run(ctx context.Context) error {
	s.enter(PhaseInitializing)
	if err := s.initialize(); err != nil {
		return s.fatal(err)
	}

	s.enter(PhaseEnsureDestination)
	s.ensureDestination(ctx)

	s.log.WithFields(logrus.Fields{
		"offset": s.offset,
		"format": s.file.DatetimeFormat,
	}).Info("Starting shipper")

	for {
		if ctx.Err() != nil {
			s.log.WithField("offset", s.offset).Info("Stopping shipper")
			return nil
		}

		delay, err := s.step(ctx)
		if err != nil {
			return err
		}
		if delay > 0 && !s.wait(ctx, delay) {
			s.log.WithField("offset", s.offset).Info("Stopping shipper")
			return nil
		}
	}
}

func (s *Shipper) initialize() error {
	st, err := s.store.Load(s.key)
	switch {
	case errors.Is(err, state.ErrNotFound):
		s.log.Info("No saved state, shipping from the start of the file")
		return nil
	case err != nil:
		return fmt.Errorf("unsafe to resume: %w", err)
	}
	s.offset = st.Offset
	s.token = st.Token
	return nil
}

// ensureDestination never fails; a missing destination surfaces on Send.
func (s *Shipper) ensureDestination(ctx context.Context) {
	err := s.sink.EnsureLogGroup(ctx, s.file.LogGroupName)
	switch {
	case err == nil:
		s.log.Info("Log group created")
	case errors.Is(err, sink.ErrAlreadyExists):
		s.log.Debug("Log group already exists")
	default:
		s.log.WithError(err).Warn("The creation of the log group failed")
	}

	err = s.sink.EnsureLogStream(ctx, s.file.LogGroupName, s.file.LogStreamName)
	switch {
	case err == nil:
		s.log.Info("Log stream created")
	case errors.Is(err, sink.ErrAlreadyExists):
		s.log.Debug("Log stream already exists")
	default:
		s.log.WithError(err).Warn("The creation of the log stream failed")
	}
}

// step runs one read and, if there is content, one send. It returns how
// long to wait before the next step.
func (s *Shipper) step(ctx context.Context) (time.Duration, error) {
	s.enter(PhaseReading)
	w, err := s.reader.Read(s.file.Path, s.offset, s.window)
	if err != nil {
		return 0, s.fatal(err)
	}

	if w.Content == "" {
		if w.Starved() {
			s.window = reader.Grow(s.window)
			s.metrics.WindowSize(s.file.Path, s.window)
			s.log.WithField("window", s.window).Debug("No complete line in window, growing it")
			return 0, nil
		}
		s.enter(PhaseBackoff)
		return s.opts.IdleDelay, nil
	}

	current := s.window
	next, retry := reader.NextSize(current, uint64(len(w.Content)), w.Lines(), s.delta)
	s.window = next
	s.metrics.WindowSize(s.file.Path, next)
	if retry {
		s.log.WithFields(logrus.Fields{
			"lines":  w.Lines(),
			"window": next,
		}).Debug("Too many lines for one request, shrinking window")
		return 0, nil
	}
	s.log.WithFields(logrus.Fields{
		"window":     current,
		"nextWindow": next,
		"bytes":      len(w.Content),
	}).Trace("Read window")

	return s.send(ctx, s.builder.Build(w.Content, s.token))
}

func (s *Shipper) send(ctx context.Context, b batch.Batch) (time.Duration, error) {
	if b.Empty() {
		s.offset += b.Consumed
		s.metrics.Advanced(s.file.Path, s.offset)
		s.persist()
		return s.opts.PaceDelay, nil
	}

	s.enter(PhaseSending)
	// an in-flight request is completed even during shutdown
	out, err := s.sink.Send(context.WithoutCancel(ctx), s.file.LogGroupName, s.file.LogStreamName, b.Events, b.Token)
	if err != nil {
		return 0, s.fatal(err)
	}

	switch out.Status {
	case sink.Delivered:
		s.conflicts = 0
		s.offset += b.Consumed
		s.token = out.Token
		s.metrics.Delivered(s.file.Path, len(b.Events), b.Consumed, s.offset)
		s.log.WithFields(logrus.Fields{
			"events": len(b.Events),
			"offset": s.offset,
		}).Debug("Batch delivered")
		s.persist()
		s.enter(PhaseIdle)
		return s.opts.PaceDelay, nil

	case sink.Conflict:
		s.conflicts++
		s.metrics.Conflict(s.file.Path)
		s.log.WithFields(logrus.Fields{
			"offset":    s.offset,
			"conflicts": s.conflicts,
		}).Warn("Sequence token rejected, resending with the expected token")
		if s.opts.MaxConflictRetries > 0 && s.conflicts > s.opts.MaxConflictRetries {
			return 0, s.fatal(ErrConflictLoop)
		}
		s.token = out.Token
		return 0, nil
	}

	return 0, s.fatal(fmt.Errorf("unexpected delivery status %v", out.Status))
}

// persist is best effort: the in-memory state stays authoritative and a
// lost write only means re-delivery after a crash.
func (s *Shipper) persist() {
	s.enter(PhasePersisting)
	err := s.store.Save(s.key, state.TailState{Token: s.token, Offset: s.offset})
	if err != nil {
		s.log.WithError(err).Warn("Could not persist tail state")
	}
}

func (s *Shipper) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Shipper) enter(p Phase) {
	s.phase = p
	s.log.WithField("phase", p).Trace("Phase transition")
}

func (s *Shipper) fatal(err error) error {
	s.metrics.Failed(s.file.Path)
	return &FatalError{File: s.file.Path, Phase: s.phase, Err: err}
}
