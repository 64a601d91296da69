package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-kiosk/internal/attendu"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
)

// Target is the class a capture run marks attendance for.
type Target int64

// TickResult says what a single tick did.
type TickResult string

// TickResult constants.
const (
	TickSubmitted       TickResult = "submitted"
	TickSkippedInFlight TickResult = "skipped_in_flight"
	TickSkippedNoFrame  TickResult = "skipped_no_frame"
	TickSkippedStopped  TickResult = "skipped_stopped"
	// TickSkippedCameraLost means the camera stream ended during the run.
	TickSkippedCameraLost TickResult = "skipped_camera_lost"
)

// ErrStartAborted is returned by Start when Stop was called while the camera
// was still opening.
var ErrStartAborted = errors.New("capture start aborted")

// Submitter sends a frame to the recognition endpoint of a class.
// *attendu.Client implements it.
type Submitter interface {
	MarkAttendanceFromFrame(ctx context.Context, classID int64, frame []byte) (*attendu.MarkResult, error)
}

// Notifier gives the audible or visual cue for a new match.
type Notifier interface {
	Cue(o Outcome)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(o Outcome)

// Cue calls f(o).
func (f NotifierFunc) Cue(o Outcome) { f(o) }

// LogNotifier cues by writing a log line. Used when there is no terminal.
type LogNotifier struct {
	Logger *slog.Logger
}

// Cue logs the match.
func (n LogNotifier) Cue(o Outcome) {
	n.Logger.Info("student recognized", "student_id", o.SubjectID, "student", o.SubjectName, "distance", o.Distance)
}

// OutcomeFunc receives every applied outcome with the debouncer's decision.
type OutcomeFunc func(o Outcome, d Decision)

// Options configures a Scheduler. Zero values fall back to the defaults.
type Options struct {
	Interval    time.Duration
	Cooldown    time.Duration
	RecentLimit int
	Notifier    Notifier
	Logger      *slog.Logger
	Now         func() time.Time
}

// Scheduler drives capture runs: one camera, one run at a time.
type Scheduler struct {
	source  *capture.Source
	sampler *capture.Sampler
	client  Submitter
	machine *StateMachine
	opts    Options

	// startMu serializes Start and Stop so that at most one run owns the
	// camera.
	startMu sync.Mutex

	mu          sync.Mutex
	run         *Run
	message     string
	cancelStart context.CancelFunc
}

// NewScheduler creates a scheduler. The machine is shared with whatever
// renders the scan state.
func NewScheduler(source *capture.Source, sampler *capture.Sampler, client Submitter, machine *StateMachine, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = constants.DefaultCaptureInterval
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = constants.DefaultDebounceCooldown
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = constants.DefaultRecentLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		source:  source,
		sampler: sampler,
		client:  client,
		machine: machine,
		opts:    opts,
	}
}

// Machine returns the state machine the scheduler drives.
func (s *Scheduler) Machine() *StateMachine {
	return s.machine
}

// Current returns the active run, or nil.
func (s *Scheduler) Current() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Message returns the camera acquisition message of the last Start, empty
// when the camera was acquired.
func (s *Scheduler) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Start acquires the camera and starts ticking for target. An active run is
// stopped first. On acquisition failure the state becomes error, the reason
// is kept in Message and the *capture.AcquisitionError is returned. A Stop
// while the camera is still opening aborts the start with ErrStartAborted.
// Cancelling ctx stops the run.
func (s *Scheduler) Start(ctx context.Context, target Target, onOutcome OutcomeFunc) (*Run, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.stopActive()

	id := uuid.NewString()
	logger := s.opts.Logger.With("run_id", id, "class_id", int64(target))

	acquireCtx, cancelAcquire := context.WithCancel(ctx)
	defer cancelAcquire()

	s.mu.Lock()
	s.message = ""
	s.cancelStart = cancelAcquire
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelStart = nil
		s.mu.Unlock()
	}()

	handle, err := s.source.Acquire(acquireCtx)
	aborted := acquireCtx.Err() != nil && ctx.Err() == nil
	if aborted {
		s.source.Release()
		s.idle()
		logger.Info("capture start aborted")
		return nil, ErrStartAborted
	}
	if err != nil {
		s.setMessage(acquisitionMessage(err))
		s.machine.Fail()
		logger.Error("camera acquisition failed", "error", err)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		ID:        id,
		Target:    target,
		StartedAt: s.opts.Now(),
		s:         s,
		handle:    handle,
		debouncer: NewDebouncer(s.opts.Cooldown, s.opts.RecentLimit),
		onOutcome: onOutcome,
		logger:    logger,
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.run = r
	s.mu.Unlock()

	s.machine.Begin()
	stopAfter := context.AfterFunc(runCtx, r.Stop)
	r.mu.Lock()
	r.stopAfter = stopAfter
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(s.opts.Interval)

	logger.Info("capture run started", "interval", s.opts.Interval)
	return r, nil
}

// Stop stops the active run and aborts a Start that is still opening the
// camera. With no active run it only makes sure the camera is released and
// the state is idle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancelStart != nil {
		s.cancelStart()
	}
	s.mu.Unlock()

	s.startMu.Lock()
	defer s.startMu.Unlock()
	s.stopActive()
}

func (s *Scheduler) stopActive() {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()

	if r != nil {
		r.Stop()
		return
	}
	s.source.Release()
	s.idle()
}

func (s *Scheduler) idle() {
	if s.machine.State().Kind != StateIdle {
		s.machine.Stop()
	}
}

func (s *Scheduler) setMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = msg
}

func (s *Scheduler) detach(r *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == r {
		s.run = nil
	}
}

// acquisitionMessage is the one-line camera message shown next to the scan
// state.
func acquisitionMessage(err error) string {
	var acqErr *capture.AcquisitionError
	if !errors.As(err, &acqErr) {
		return "Camera access failed: " + err.Error()
	}
	switch acqErr.Kind {
	case capture.AcquisitionPermissionDenied:
		return "Camera permission denied"
	case capture.AcquisitionNotFound:
		return "No camera found"
	case capture.AcquisitionBusy:
		return "Camera is in use by another application"
	default:
		return "Camera access failed: " + acqErr.Err.Error()
	}
}

// Run is one capture run. It owns the ticker, the camera handle and the
// per-run debounce state, and Stop is the only way to end it.
type Run struct {
	ID        string
	Target    Target
	StartedAt time.Time

	s         *Scheduler
	handle    *capture.Handle
	debouncer *Debouncer
	onOutcome OutcomeFunc
	logger    *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	stopAfter func() bool
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu       sync.Mutex
	stopped  bool
	inFlight bool
	lost     bool
	ticks    uint64
}

func (r *Run) loop(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if res := r.Tick(); res != TickSubmitted {
				r.logger.Debug("tick skipped", "reason", res)
			}
		}
	}
}

// Tick runs one capture cycle: sample a frame and, if nothing is in flight,
// submit it in the background. It never blocks on the network.
func (r *Run) Tick() TickResult {
	r.mu.Lock()
	switch {
	case r.stopped:
		r.mu.Unlock()
		return TickSkippedStopped
	case r.inFlight:
		r.mu.Unlock()
		return TickSkippedInFlight
	}
	r.inFlight = true
	r.mu.Unlock()

	blob, err := r.s.sampler.Sample(r.handle)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.inFlight = false
		switch {
		case errors.Is(err, capture.ErrStreamEnded):
			if !r.stopped && !r.lost {
				r.lost = true
				r.logger.Error("camera stream ended", "error", err)
				r.s.setMessage("Camera disconnected")
				r.s.machine.Fail()
			}
			return TickSkippedCameraLost
		case !errors.Is(err, capture.ErrNoFrame):
			r.logger.Warn("could not sample frame", "error", err)
		}
		return TickSkippedNoFrame
	}
	if r.stopped {
		r.inFlight = false
		return TickSkippedStopped
	}

	r.ticks++
	r.s.machine.Begin()
	r.wg.Add(1)
	go r.submit(r.ticks, blob.Data)
	return TickSubmitted
}

func (r *Run) submit(tick uint64, frame []byte) {
	defer r.wg.Done()

	res, err := r.s.client.MarkAttendanceFromFrame(r.ctx, int64(r.Target), frame)
	outcome := FromResult(res, err)

	r.mu.Lock()
	r.inFlight = false
	if r.stopped {
		r.mu.Unlock()
		r.logger.Debug("discarding result of stopped run", "tick", tick, "kind", outcome.Kind)
		return
	}
	now := r.s.opts.Now()
	decision := r.debouncer.Accept(outcome, now)
	r.debouncer.Prune(now, r.s.opts.Cooldown*constants.DebouncePruneFactor)
	r.s.machine.Apply(outcome)
	r.mu.Unlock()

	switch outcome.Kind {
	case KindMatched:
		r.logger.Info("match", "tick", tick, "student_id", outcome.SubjectID,
			"already_marked", outcome.AlreadyMarked, "distance", outcome.Distance, "cue", decision.Notify)
	case KindTransportError:
		r.logger.Warn("recognition request failed", "tick", tick, "error", outcome.Message)
	default:
		r.logger.Debug("tick outcome", "tick", tick, "kind", outcome.Kind)
	}

	if decision.Notify && r.s.opts.Notifier != nil {
		r.s.opts.Notifier.Cue(outcome)
	}
	if r.onOutcome != nil {
		r.onOutcome(outcome, decision)
	}
}

// Stop cancels the ticker and any in-flight submission, discards late
// results, releases the camera and moves the state to idle. Safe to call
// more than once.
func (r *Run) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		stopAfter := r.stopAfter
		r.s.machine.Stop()
		r.mu.Unlock()

		if stopAfter != nil {
			stopAfter()
		}

		r.cancel()
		r.s.source.Release()
		r.s.detach(r)
		close(r.done)
		r.logger.Info("capture run stopped", "ticks", r.Ticks())
	})
}

// Done is closed once the run is stopped.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the ticker and any submission goroutines have returned.
// Call it after Stop.
func (r *Run) Wait() {
	r.wg.Wait()
}

// Recent returns the recent matches of the run, most recent first.
func (r *Run) Recent() []RecentMark {
	return r.debouncer.Recent()
}

// InFlight reports whether a submission is outstanding.
func (r *Run) InFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// Ticks returns how many frames the run has submitted.
func (r *Run) Ticks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

// Message returns the acquisition message of the scheduler that owns the run.
func (r *Run) Message() string {
	return r.s.Message()
}
