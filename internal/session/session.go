// Package session runs one negotiation at a time: it opens the backend
// stream, feeds every inbound frame through the progress reducer in arrival
// order, and publishes immutable snapshots for rendering.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dennishermann/evaepic-sub000/internal/catalog"
	"github.com/dennishermann/evaepic-sub000/internal/logbook"
	"github.com/dennishermann/evaepic-sub000/internal/progress"
	"github.com/dennishermann/evaepic-sub000/internal/stream"
)

// Terminal error texts surfaced when the backend did not supply one.
const (
	ErrTextStart          = "Failed to start negotiation"
	ErrTextConnection     = "Connection error occurred"
	ErrTextClosedEarly    = "Connection closed before negotiation finished"
	ErrTextBackendUnknown = "Negotiation failed"
)

const defaultQueueSize = 64

// Logger records session diagnostics. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// RunInfo describes a run when it starts.
type RunInfo struct {
	ID    string
	Input string
	Order map[string]any
	// Attribution names the fan-out attribution strategy of the run, empty
	// for a custom strategy. Replays rebuild the reducer from it.
	Attribution string
	StartedAt   time.Time
}

// Recorder persists the raw frames of each run.
type Recorder interface {
	BeginRun(ctx context.Context, run RunInfo) error
	RecordFrame(ctx context.Context, runID string, seq int, frame []byte) error
	FinishRun(ctx context.Context, runID string, status Status, errText string) error
}

// Session owns the progress model and vendor tracker of one run.
type Session struct {
	dialer    stream.Dialer
	reducer   *progress.Reducer
	logger    Logger
	book      *logbook.Logbook
	recorder  Recorder
	queueSize int
	maxRounds int
	clock     func() time.Time
	newRunID  func() string
	pub       *publisher

	// lifecycle serializes Start and Reset.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	stream    stream.Stream
	done      chan struct{}

	mu   sync.RWMutex
	snap Snapshot
}

// Option customizes a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	logger             Logger
	book               *logbook.Logbook
	recorder           Recorder
	reducer            *progress.Reducer
	queueSize          int
	subscriberCapacity int
	maxRounds          int
	clock              func() time.Time
	newRunID           func() string
}

// WithLogger routes diagnostics such as dropped frames to logger.
func WithLogger(logger Logger) Option {
	return func(o *sessionOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogbook records run milestones in the journey log.
func WithLogbook(book *logbook.Logbook) Option {
	return func(o *sessionOptions) {
		o.book = book
	}
}

// WithRecorder persists every inbound frame.
func WithRecorder(rec Recorder) Option {
	return func(o *sessionOptions) {
		o.recorder = rec
	}
}

// WithReducer replaces the default progress reducer.
func WithReducer(r *progress.Reducer) Option {
	return func(o *sessionOptions) {
		if r != nil {
			o.reducer = r
		}
	}
}

// WithQueueSize bounds the frame queue between the reader and the reducer.
func WithQueueSize(n int) Option {
	return func(o *sessionOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithSubscriberCapacity sizes each subscriber's snapshot buffer.
func WithSubscriberCapacity(n int) Option {
	return func(o *sessionOptions) {
		if n > 0 {
			o.subscriberCapacity = n
		}
	}
}

// WithMaxRounds asks the backend to cap negotiation rounds.
func WithMaxRounds(n int) Option {
	return func(o *sessionOptions) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *sessionOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRunIDs overrides run id generation (primarily for tests).
func WithRunIDs(next func() string) Option {
	return func(o *sessionOptions) {
		if next != nil {
			o.newRunID = next
		}
	}
}

// New returns an idle session holding the seeded model.
func New(dialer stream.Dialer, opts ...Option) *Session {
	o := sessionOptions{
		logger:    nopLogger{},
		queueSize: defaultQueueSize,
		clock:     time.Now,
		newRunID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.reducer == nil {
		o.reducer = progress.NewReducer()
	}
	s := &Session{
		dialer:    dialer,
		reducer:   o.reducer,
		logger:    o.logger,
		book:      o.book,
		recorder:  o.recorder,
		queueSize: o.queueSize,
		maxRounds: o.maxRounds,
		clock:     o.clock,
		newRunID:  o.newRunID,
		pub:       newPublisher(o.subscriberCapacity, o.logger),
	}
	s.snap = Snapshot{Status: StatusIdle, Model: s.reducer.Reset()}
	s.snap.Headline = s.snap.Model.Headline()
	s.snap.UpdatedAt = s.clock()
	return s
}

// Snapshot returns a copy of the latest published state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Subscribe registers for snapshots. The current snapshot is delivered first.
func (s *Session) Subscribe() Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pub.subscribe(s.snap.Clone())
}

// Start resets any previous run, opens the stream and sends the initiation
// message. Dial or send failures end the run with ErrTextStart and are
// returned.
func (s *Session) Start(ctx context.Context, input string, order map[string]any) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.resetLocked()

	runID := s.newRunID()
	book := s.book.ForRun(runID)
	done := make(chan struct{})
	s.done = done
	s.update(func(snap *Snapshot) {
		snap.RunID = runID
		snap.Status = StatusRunning
		snap.Running = true
	})
	book.Info("run started: %s", strings.TrimSpace(input))

	conn, err := s.dialer.Dial(ctx)
	if err == nil {
		err = conn.Send(ctx, stream.StartNegotiation(input, order, s.maxRounds))
		if err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		s.logger.Printf("session: start %s: %v", runID, err)
		book.Error("%s: %v", ErrTextStart, err)
		s.update(func(snap *Snapshot) {
			snap.Status = StatusFailed
			snap.Running = false
			snap.Err = ErrTextStart
		})
		close(done)
		return fmt.Errorf("session: start negotiation: %w", err)
	}

	if s.recorder != nil {
		info := RunInfo{
			ID:          runID,
			Input:       input,
			Order:       order,
			Attribution: progress.AttributionName(s.reducer.Attribution()),
			StartedAt:   s.clock(),
		}
		if err := s.recorder.BeginRun(ctx, info); err != nil {
			s.logger.Printf("session: journal begin %s: %v", runID, err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stream = conn

	r := &run{
		session: s,
		id:      runID,
		book:    book,
		conn:    conn,
		cancel:  cancel,
		frames:  make(chan frame, s.queueSize),
		fold:    newFold(s.reducer, s.Snapshot().Model),
	}
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return r.read(gctx) })
	g.Go(func() error { return r.consume(gctx) })
	go func() {
		if err := g.Wait(); err != nil {
			s.logger.Printf("session: run %s: %v", runID, err)
		}
		close(done)
	}()
	return nil
}

// Reset tears down any live run and restores the seeded all-Pending model
// with an empty vendor tracker. It is safe to call when idle.
func (s *Session) Reset() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stream != nil {
		_ = s.stream.Close()
	}
	if s.done != nil {
		<-s.done
	}
	prev := s.Snapshot()
	if prev.Running {
		s.book.ForRun(prev.RunID).Warn("run cancelled")
		if s.recorder != nil {
			if err := s.recorder.FinishRun(context.Background(), prev.RunID, StatusCancelled, ""); err != nil {
				s.logger.Printf("session: journal finish %s: %v", prev.RunID, err)
			}
		}
	}
	s.cancel = nil
	s.stream = nil
	s.done = nil
	model := s.reducer.Reset()
	s.update(func(snap *Snapshot) {
		*snap = Snapshot{Status: StatusIdle, Model: model, Seq: snap.Seq}
	})
}

// Wait blocks until the current run ends or ctx is done and returns the
// latest snapshot.
func (s *Session) Wait(ctx context.Context) Snapshot {
	s.lifecycle.Lock()
	done := s.done
	s.lifecycle.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return s.Snapshot()
}

// Close resets the session and closes every subscription.
func (s *Session) Close() {
	s.Reset()
	s.pub.closeAll()
}

// update mutates the published snapshot and fans a copy out to subscribers.
func (s *Session) update(mutate func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.snap)
	s.snap.Seq++
	s.snap.Headline = s.snap.Model.Headline()
	s.snap.UpdatedAt = s.clock()
	s.pub.publish(s.snap)
}

type frame struct {
	data []byte
	err  error
}

// run is the state of one live negotiation, owned by its consumer goroutine.
type run struct {
	session *Session
	id      string
	book    logbook.Run
	conn    stream.Stream
	cancel  context.CancelFunc
	frames  chan frame
	fold    *fold
	seq     int
}

// read pushes raw frames into the queue in arrival order. It blocks when the
// queue is full rather than dropping.
func (r *run) read(ctx context.Context) error {
	for {
		data, err := r.conn.Receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		select {
		case r.frames <- frame{data: data, err: err}:
		case <-ctx.Done():
			return nil
		}
		if err != nil {
			return nil
		}
	}
}

// consume reduces frames one at a time until the run ends.
func (r *run) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-r.frames:
			if f.err != nil {
				r.transportFailure(f.err)
				return nil
			}
			if r.handle(ctx, f.data) {
				return nil
			}
		}
	}
}

// handle processes one frame and reports whether the run is over.
func (r *run) handle(ctx context.Context, data []byte) bool {
	s := r.session
	r.seq++
	if s.recorder != nil {
		if err := s.recorder.RecordFrame(ctx, r.id, r.seq, data); err != nil {
			s.logger.Printf("session: journal frame %s#%d: %v", r.id, r.seq, err)
		}
	}
	ev, err := stream.Decode(data)
	if err != nil {
		s.logger.Printf("session: dropped frame %d of %s: %v", r.seq, r.id, err)
		r.book.Warn("dropped malformed frame %d", r.seq)
		return false
	}
	ended := r.fold.apply(ev)
	s.update(r.fold.fill)
	switch {
	case !ended:
		if stage, ok := catalog.Resolve(ev.StageKey); ok {
			r.book.Info("%s: %s", stage.Key, ev.Message)
		}
		return false
	case r.fold.status == StatusCompleted:
		r.book.Info("run completed")
	default:
		r.book.Error("backend error: %s", r.fold.err)
	}
	r.finish(r.fold.status, r.fold.err)
	return true
}

func (r *run) transportFailure(err error) {
	s := r.session
	text := ErrTextConnection
	if errors.Is(err, stream.ErrClosed) {
		text = ErrTextClosedEarly
	}
	s.logger.Printf("session: run %s transport: %v", r.id, err)
	r.fold.status = StatusFailed
	r.fold.err = text
	s.update(r.fold.fill)
	r.book.Error("%s: %v", text, err)
	r.finish(StatusFailed, text)
}

// finish closes the stream, stops the reader and records the outcome.
func (r *run) finish(status Status, errText string) {
	_ = r.conn.Close()
	r.cancel()
	s := r.session
	if s.recorder != nil {
		if err := s.recorder.FinishRun(context.Background(), r.id, status, errText); err != nil {
			s.logger.Printf("session: journal finish %s: %v", r.id, err)
		}
	}
}
