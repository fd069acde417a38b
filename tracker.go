package funcdeck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults for the tracker's polling cadence and liveness guards.
const (
	DefaultPollInterval = time.Second
	DefaultRunTimeout   = 60 * time.Second
	DefaultMaxAttempts  = 60
	DefaultMaxRepeats   = 30
)

// Sentinel errors for submit preconditions. These are detected before any
// network call is made; the tracker's state is unchanged when they occur.
var (
	ErrNoSelection      = errors.New("no function selected")
	ErrDraftNotRunnable = errors.New("function is an unsaved draft; save it before running")
	ErrInvalidPayload   = errors.New("input payload is not valid JSON")
)

// TrackerConfig configures a Tracker instance.
type TrackerConfig struct {
	// Service performs the submit and status calls. Required.
	Service InvocationService

	// PollInterval is the pause between the settlement of one poll and the
	// start of the next. Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// RunTimeout bounds the whole run; when it fires before a terminal
	// state is reached the run fails. Defaults to DefaultRunTimeout.
	RunTimeout time.Duration

	// MaxAttempts bounds the number of poll ticks. Defaults to
	// DefaultMaxAttempts.
	MaxAttempts int

	// MaxRepeats bounds consecutive polls observing the same non-terminal
	// status. Defaults to DefaultMaxRepeats.
	MaxRepeats int

	// PollRetries is the number of times a failed status call is retried
	// within one tick before the run fails. Zero (the default) preserves
	// the fail-on-first-error behavior.
	PollRetries int

	// Handler receives tracker events. Optional.
	Handler EventHandler

	// Logger receives debug logging. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Tracker owns the per-invocation state machine: submit, poll, detect
// terminal, stuck, and timeout conditions, cancel. At most one poll
// session is active per tracker; submitting a new run tears down any
// session that is still open.
type Tracker struct {
	service      InvocationService
	pollInterval time.Duration
	runTimeout   time.Duration
	maxAttempts  int
	maxRepeats   int
	pollRetries  int
	handler      EventHandler
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	session *pollSession
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Service == nil {
		return nil, errors.New("tracker: invocation service is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxRepeats <= 0 {
		cfg.MaxRepeats = DefaultMaxRepeats
	}
	if cfg.PollRetries < 0 {
		cfg.PollRetries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{
		service:      cfg.Service,
		pollInterval: cfg.PollInterval,
		runTimeout:   cfg.RunTimeout,
		maxAttempts:  cfg.MaxAttempts,
		maxRepeats:   cfg.MaxRepeats,
		pollRetries:  cfg.PollRetries,
		handler:      cfg.Handler,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}, nil
}

// RunState is a point-in-time snapshot of a tracked run.
type RunState struct {
	RunID        string          `json:"run_id"`
	FunctionID   FunctionID      `json:"function_id"`
	InvocationID int64           `json:"invocation_id,omitempty"`
	Status       Status          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	Attempts     int             `json:"attempts,omitempty"`
}

// pollSession is the ephemeral tracking state for one in-flight invocation.
// It is destroyed the moment the run reaches a terminal state, is cancelled,
// or trips a liveness guard.
type pollSession struct {
	id           string
	functionID   FunctionID
	input        json.RawMessage
	invocationID int64
	startedAt    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    RunState
	attempts int
	last     Status
	repeats  int
	loggedAt time.Time
}

func (s *pollSession) snapshot() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// apply folds a poll or submit response into the session state. It returns
// whether the canonical status changed and whether a new server-side log
// timestamp was observed.
func (s *pollSession) apply(res InvocationResult, status Status) (changed, newLog bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.state.Status != status
	s.state.Status = status
	if nonEmptyJSON(res.Result) {
		s.state.Result = append(json.RawMessage(nil), res.Result...)
	}
	if res.ErrorMessage != "" {
		s.state.ErrorMessage = res.ErrorMessage
	}
	if res.DurationMs > 0 {
		s.state.DurationMs = res.DurationMs
	}
	if res.LoggedAt != nil && res.LoggedAt.After(s.loggedAt) {
		s.loggedAt = *res.LoggedAt
		newLog = true
	}
	return changed, newLog
}

// RunHandle is the consumer-facing view of a tracked run. Done is closed
// when the run reaches a terminal state or is torn down; Snapshot is safe
// to call at any time.
type RunHandle struct {
	s *pollSession
}

// Done returns a channel closed when tracking ends.
func (h *RunHandle) Done() <-chan struct{} {
	return h.s.done
}

// Snapshot returns the current run state.
func (h *RunHandle) Snapshot() RunState {
	return h.s.snapshot()
}

// Submit validates preconditions, tears down any prior session, opens a
// fresh poll session, and starts tracking. On a precondition failure no
// network call is made and the sentinel error identifies the unmet
// precondition.
func (t *Tracker) Submit(ctx context.Context, fn FunctionDefinition, payload json.RawMessage) (*RunHandle, error) {
	if fn.ID == 0 {
		return nil, ErrNoSelection
	}
	if fn.ID.IsDraft() {
		return nil, ErrDraftNotRunnable
	}
	if !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}

	t.Reset()

	sctx, cancel := context.WithTimeout(ctx, t.runTimeout)
	now := t.now()
	s := &pollSession{
		id:         uuid.NewString(),
		functionID: fn.ID,
		input:      append(json.RawMessage(nil), payload...),
		startedAt:  now,
		ctx:        sctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.state = RunState{
		RunID:      s.id,
		FunctionID: fn.ID,
		Status:     StatusQueued,
		StartedAt:  now,
	}

	t.mu.Lock()
	t.session = s
	t.mu.Unlock()

	t.emit(Event{
		Kind:       EventRunQueued,
		RunID:      s.id,
		FunctionID: fn.ID,
		Status:     StatusQueued,
		Message:    fmt.Sprintf("run queued for function %s", fn.ID),
		Time:       now,
	})

	go t.track(s)
	return &RunHandle{s: s}, nil
}

// Reset cancels any open poll session and returns the tracker to idle.
// It may be called in any state. A network call already in flight is
// allowed to settle but its result is discarded.
func (t *Tracker) Reset() {
	t.mu.Lock()
	s := t.session
	t.session = nil
	t.mu.Unlock()
	if s == nil {
		return
	}

	s.cancel()
	<-s.done

	s.mu.Lock()
	terminal := s.state.Status.Terminal()
	if !terminal {
		s.state.Status = StatusIdle
	}
	state := s.state
	s.mu.Unlock()

	if !terminal {
		t.emit(Event{
			Kind:         EventRunReset,
			RunID:        s.id,
			FunctionID:   s.functionID,
			InvocationID: state.InvocationID,
			Status:       StatusIdle,
			Message:      "run cancelled",
		})
	}
}

// Active returns the handle of the in-flight run, if any.
func (t *Tracker) Active() (*RunHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil, false
	}
	return &RunHandle{s: t.session}, true
}

// track drives one session from submit to teardown. It runs in its own
// goroutine; ticks are sequential, so a new status call never starts while
// the previous one is unsettled.
func (t *Tracker) track(s *pollSession) {
	defer close(s.done)
	defer s.cancel()

	res, err := t.service.Invoke(s.ctx, s.functionID, s.input)
	if err != nil {
		if s.ctx.Err() != nil {
			t.expire(s, 0)
			return
		}
		t.fail(s, 0, fmt.Sprintf("invoke failed: %v", err))
		return
	}
	if res.InvocationID == 0 {
		// Fatal protocol violation: without an id there is nothing to poll.
		t.fail(s, 0, "invoke response missing invocation id")
		return
	}

	s.invocationID = res.InvocationID
	status := ReconcileStatus(NormalizeStatus(res.Status), res.Result, res.ErrorMessage)
	s.mu.Lock()
	s.state.InvocationID = res.InvocationID
	s.last = status
	s.mu.Unlock()
	s.apply(res, status)

	t.emit(Event{
		Kind:         EventRunAccepted,
		RunID:        s.id,
		FunctionID:   s.functionID,
		InvocationID: res.InvocationID,
		Status:       status,
		Message:      fmt.Sprintf("invocation %d accepted with status %s", res.InvocationID, status),
	})
	t.logger.Debug("invocation accepted",
		"run_id", s.id, "invocation_id", res.InvocationID, "status", status.String())

	if status.Terminal() {
		t.complete(s, 0, status, InvocationResult{})
		return
	}

	timer := time.NewTimer(t.pollInterval)
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			t.expire(s, s.attemptCount())
			return
		case <-timer.C:
		}

		s.mu.Lock()
		s.attempts++
		attempt := s.attempts
		s.state.Attempts = attempt
		s.mu.Unlock()

		if attempt >= t.maxAttempts {
			t.fail(s, attempt, fmt.Sprintf("polling timed out after %d attempts", attempt))
			return
		}

		res, err := t.poll(s)
		if err != nil {
			if s.ctx.Err() != nil {
				t.expire(s, attempt)
				return
			}
			t.fail(s, attempt, fmt.Sprintf("poll failed: %v", err))
			return
		}

		status := ReconcileStatus(NormalizeStatus(res.Status), res.Result, res.ErrorMessage)

		s.mu.Lock()
		if status == s.last {
			s.repeats++
		} else {
			s.repeats = 0
			s.last = status
		}
		repeats := s.repeats
		s.mu.Unlock()

		changed, newLog := s.apply(res, status)
		if newLog {
			t.emit(Event{
				Kind:         EventRunLog,
				RunID:        s.id,
				FunctionID:   s.functionID,
				InvocationID: s.invocationID,
				Status:       status,
				Message:      fmt.Sprintf("invocation %d produced log output", s.invocationID),
				Attempt:      attempt,
			})
		}

		if status.Terminal() {
			t.complete(s, attempt, status, InvocationResult{})
			return
		}

		if changed {
			t.emit(Event{
				Kind:         EventRunStatus,
				RunID:        s.id,
				FunctionID:   s.functionID,
				InvocationID: s.invocationID,
				Status:       status,
				Attempt:      attempt,
			})
		}

		if repeats >= t.maxRepeats {
			t.fail(s, attempt, fmt.Sprintf("no status change within %d polls", t.maxRepeats))
			return
		}

		timer.Reset(t.pollInterval)
	}
}

// poll performs one status call, retrying within the tick when PollRetries
// is configured. The default of zero retries preserves the protocol's
// fail-on-first-error behavior.
func (t *Tracker) poll(s *pollSession) (InvocationResult, error) {
	var lastErr error
	for try := 0; try <= t.pollRetries; try++ {
		if err := s.ctx.Err(); err != nil {
			return InvocationResult{}, err
		}
		res, err := t.service.GetStatus(s.ctx, s.functionID, s.invocationID)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return InvocationResult{}, lastErr
}

func (s *pollSession) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// expire handles session context termination: a deadline means the global
// run timeout fired; a plain cancellation means a reset tore the session
// down and nothing more is recorded.
func (t *Tracker) expire(s *pollSession, attempt int) {
	if errors.Is(s.ctx.Err(), context.DeadlineExceeded) {
		t.fail(s, attempt, fmt.Sprintf("run timed out after %s", t.runTimeout))
	}
}

func (t *Tracker) fail(s *pollSession, attempt int, message string) {
	t.complete(s, attempt, StatusFail, InvocationResult{ErrorMessage: message})
}

// complete records the terminal state and tears the session down. A session
// that has been superseded by a reset or a newer run discards its result:
// only the active session may mutate observable state.
func (t *Tracker) complete(s *pollSession, attempt int, status Status, res InvocationResult) {
	t.mu.Lock()
	active := t.session == s
	if active {
		t.session = nil
	}
	t.mu.Unlock()
	if !active {
		return
	}

	now := t.now()
	s.mu.Lock()
	s.state.Status = status
	if res.ErrorMessage != "" {
		s.state.ErrorMessage = res.ErrorMessage
	}
	if res.DurationMs > 0 {
		s.state.DurationMs = res.DurationMs
	}
	if s.state.DurationMs == 0 {
		// The backend never reported a duration; fall back to local elapsed.
		s.state.DurationMs = now.Sub(s.startedAt).Milliseconds()
	}
	state := s.state
	s.mu.Unlock()

	t.logger.Debug("run finished",
		"run_id", s.id, "invocation_id", state.InvocationID,
		"status", status.String(), "duration_ms", state.DurationMs)

	t.emit(Event{
		Kind:         EventRunFinished,
		RunID:        s.id,
		FunctionID:   s.functionID,
		InvocationID: state.InvocationID,
		Status:       status,
		Message:      state.ErrorMessage,
		Time:         now,
		Attempt:      attempt,
	})
}

func (t *Tracker) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = t.now()
	}
	if t.handler != nil {
		t.handler(e)
	}
}
