// Package attempt implements the client side of a timed exam attempt: loading
// the paper, the countdown, answer recording, and a submission that happens
// exactly once whether the student or the clock triggers it.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/model"
	"golang.org/x/sync/errgroup"
)

// State is the attempt lifecycle state.
type State int

const (
	StateNotStarted State = iota
	StateLoading
	StateReady
	StateInProgress
	StateSubmitting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateLoading:
		return "Loading"
	case StateReady:
		return "Ready"
	case StateInProgress:
		return "InProgress"
	case StateSubmitting:
		return "Submitting"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FailureReason qualifies StateFailed.
type FailureReason string

const (
	ReasonLoadError   FailureReason = "load-error"
	ReasonSubmitError FailureReason = "submit-error"
)

// Trigger identifies what started a submission.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

// Backend is the collaborator serving exams and accepting attempts.
type Backend interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	GetExamQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	StartAttempt(ctx context.Context, examID uuid.UUID) error
	SubmitAttempt(ctx context.Context, examID uuid.UUID, answers model.AnswerMap) (*model.Result, error)
}

// Status is what a presentation layer renders.
type Status struct {
	State     State
	Reason    FailureReason
	Err       error
	Remaining int
	Answered  int
	Total     int
	Result    *model.Result
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) MachineOption {
	return func(m *Machine) { m.log = log }
}

// WithTicker replaces the wall-clock tick source of every countdown.
func WithTicker(f TickerFactory) MachineOption {
	return func(m *Machine) {
		if f != nil {
			m.newTicker = f
		}
	}
}

// WithHandoff sets where the result of a completed attempt goes.
func WithHandoff(h ResultHandoff) MachineOption {
	return func(m *Machine) {
		if h != nil {
			m.handoff = h
		}
	}
}

// WithObserver registers fn to receive every status change, in order.
// fn must not call Machine commands.
func WithObserver(fn func(Status)) MachineOption {
	return func(m *Machine) { m.observer = fn }
}

// WithClock sets the wall clock used to charge the time spent in a failed
// submission.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSubmitTimeout bounds the timeout-triggered submit call.
func WithSubmitTimeout(d time.Duration) MachineOption {
	return func(m *Machine) { m.submitTimeout = d }
}

// Machine drives one attempt. It owns the ledger and countdown and is the
// only caller of the submission coordinator.
type Machine struct {
	examID        uuid.UUID
	backend       Backend
	handoff       ResultHandoff
	observer      func(Status)
	newTicker     TickerFactory
	now           func() time.Time
	submitTimeout time.Duration
	log           zerolog.Logger
	coordinator   *Coordinator

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once

	notifyMu sync.Mutex

	mu          sync.Mutex
	state       State
	reason      FailureReason
	lastErr     error
	exam        *model.Exam
	questions   []model.Question
	questionIDs map[uuid.UUID]struct{}
	ledger      *Ledger
	countdown   *Countdown
	clockGen    int
	remaining   int
	starting    bool
	closed      bool
	submittedAt time.Time
	result      *model.Result
}

// NewMachine returns a machine in NotStarted for examID.
func NewMachine(examID uuid.UUID, backend Backend, opts ...MachineOption) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		examID:        examID,
		backend:       backend,
		handoff:       NewResultSlot(),
		newTicker:     SystemTicker,
		now:           time.Now,
		submitTimeout: 30 * time.Second,
		log:           zerolog.Nop(),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		ledger:        NewLedger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With().
		Str("component", "attempt").
		Str("exam_id", examID.String()).
		Logger()
	m.coordinator = NewCoordinator(func(ctx context.Context, answers model.AnswerMap) (*model.Result, error) {
		return m.backend.SubmitAttempt(ctx, m.examID, answers)
	})
	return m
}

// Load fetches the exam and its questions concurrently.
func (m *Machine) Load(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateNotStarted {
		m.mu.Unlock()
		return fmt.Errorf("load in state %s: %w", m.state, ErrNotStarted)
	}
	m.transitionLocked(StateLoading)
	m.emitUnlock()

	var (
		exam      *model.Exam
		questions []model.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := m.backend.GetExam(gctx, m.examID)
		if err != nil {
			return fmt.Errorf("get exam: %w", err)
		}
		exam = e
		return nil
	})
	g.Go(func() error {
		qs, err := m.backend.GetExamQuestions(gctx, m.examID)
		if err != nil {
			return fmt.Errorf("get questions: %w", err)
		}
		questions = qs
		return nil
	})
	err := g.Wait()
	if err == nil && (exam == nil || exam.DurationMinutes <= 0) {
		err = fmt.Errorf("exam duration: %w", ErrInvalidDuration)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		loadErr := &LoadError{Err: err}
		m.failLocked(ReasonLoadError, loadErr)
		m.emitUnlock()
		m.finish()
		m.log.Error().Err(err).Msg("Attempt load failed")
		return loadErr
	}

	m.exam = exam
	m.questions = questions
	m.questionIDs = make(map[uuid.UUID]struct{}, len(questions))
	for _, q := range questions {
		m.questionIDs[q.ID] = struct{}{}
	}
	m.remaining = exam.DurationSeconds()
	m.transitionLocked(StateReady)
	m.emitUnlock()

	m.log.Info().
		Int("questions", len(questions)).
		Int("duration_seconds", exam.DurationSeconds()).
		Msg("Attempt ready")
	return nil
}

// Start issues the start-attempt call and, on success, starts the countdown.
// On failure the machine stays Ready and Start may be retried.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state != StateReady:
		m.mu.Unlock()
		return ErrNotReady
	case m.starting:
		m.mu.Unlock()
		return ErrStartInFlight
	}
	m.starting = true
	m.mu.Unlock()

	err := m.backend.StartAttempt(ctx, m.examID)

	m.mu.Lock()
	m.starting = false
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		startErr := &StartError{Err: err}
		m.lastErr = startErr
		m.emitUnlock()
		m.log.Warn().Err(err).Msg("Attempt start rejected")
		return startErr
	}

	m.ledger = NewLedger()
	m.lastErr = nil
	m.transitionLocked(StateInProgress)
	if err := m.armLocked(m.remaining); err != nil {
		m.mu.Unlock()
		return err
	}
	remaining := m.remaining
	m.emitUnlock()

	m.log.Info().Int("remaining", remaining).Msg("Attempt started")
	return nil
}

// Select records option o for question q. It is only valid while InProgress.
func (m *Machine) Select(q uuid.UUID, o model.Option) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state == StateSubmitting || m.state == StateCompleted || m.ledger.Frozen():
		m.mu.Unlock()
		return ErrLedgerFrozen
	case m.state != StateInProgress:
		m.mu.Unlock()
		return ErrNotInProgress
	}
	if _, ok := m.questionIDs[q]; !ok {
		m.mu.Unlock()
		return ErrUnknownQuestion
	}
	if err := m.ledger.Set(q, o); err != nil {
		m.mu.Unlock()
		return err
	}
	m.emitUnlock()
	return nil
}

// Submit is the student's confirmed submission.
func (m *Machine) Submit(ctx context.Context) error {
	return m.submit(ctx, TriggerManual, 0)
}

// Close abandons the attempt: the countdown stops and no further network
// effect is started.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelClockLocked()
	m.mu.Unlock()

	m.cancel()
	m.finish()
	m.log.Debug().Msg("Attempt closed")
}

// Status returns a snapshot for rendering.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Exam returns the loaded exam, or nil before Ready.
func (m *Machine) Exam() *model.Exam {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exam == nil {
		return nil
	}
	e := *m.exam
	return &e
}

// Questions returns the loaded questions in display order.
func (m *Machine) Questions() []model.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Question, len(m.questions))
	copy(out, m.questions)
	return out
}

// Answer returns the current selection for q.
func (m *Machine) Answer(q uuid.UUID) (model.Option, bool) {
	m.mu.Lock()
	l := m.ledger
	m.mu.Unlock()
	return l.Get(q)
}

// SubmitCalls returns how many submit calls reached the backend.
func (m *Machine) SubmitCalls() int {
	return m.coordinator.Calls()
}

// Done is closed when the attempt reaches a terminal state or is closed.
func (m *Machine) Done() <-chan struct{} { return m.done }

// submit runs one submission. For timeouts, gen names the countdown that
// expired; an expiry from a replaced countdown is dropped.
func (m *Machine) submit(ctx context.Context, trigger Trigger, gen int) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if trigger == TriggerTimeout && gen != m.clockGen {
		m.mu.Unlock()
		return ErrNotInProgress
	}
	if m.state != StateInProgress {
		state := m.state
		m.mu.Unlock()
		if state == StateSubmitting || state == StateCompleted {
			return ErrAlreadySubmitted
		}
		return ErrNotInProgress
	}
	if !m.coordinator.Acquire() {
		m.mu.Unlock()
		return ErrAlreadySubmitted
	}

	answers := m.ledger.Freeze()
	m.submittedAt = m.now()
	m.lastErr = nil
	m.transitionLocked(StateSubmitting)
	m.emitUnlock()

	m.log.Info().
		Str("trigger", string(trigger)).
		Int("answered", len(answers)).
		Msg("Submitting attempt")

	res, err := m.coordinator.Submit(ctx, answers)
	if err == nil && res == nil {
		err = errors.New("empty result")
	}

	m.mu.Lock()
	if err != nil {
		return m.submitFailedLocked(trigger, err)
	}

	result := *res
	m.result = &result
	m.transitionLocked(StateCompleted)
	m.emitUnlock()
	m.finish()

	m.log.Info().
		Int("score", result.Score).
		Int("total_marks", result.TotalMarks).
		Str("status", string(result.Status)).
		Msg("Attempt completed")

	m.handoff.Deliver(result)
	return nil
}

// submitFailedLocked resolves a failed submission. A manual submit with time
// left goes back to InProgress on a fresh countdown charged for the time the
// call took; anything else is terminal. Called with m.mu held; releases it.
func (m *Machine) submitFailedLocked(trigger Trigger, err error) error {
	spent := int(math.Ceil(m.now().Sub(m.submittedAt).Seconds()))
	left := m.remaining - spent
	recoverable := trigger == TriggerManual && left > 0 && !m.closed

	submitErr := &SubmitError{Trigger: trigger, Recoverable: recoverable, Err: err}

	if recoverable {
		m.coordinator.Reset()
		m.ledger.Thaw()
		m.remaining = left
		m.lastErr = submitErr
		m.transitionLocked(StateInProgress)
		if armErr := m.armLocked(left); armErr != nil {
			m.failLocked(ReasonSubmitError, submitErr)
		}
	} else {
		if trigger == TriggerTimeout || left <= 0 {
			m.remaining = 0
		}
		m.failLocked(ReasonSubmitError, submitErr)
	}
	terminal := m.state.Terminal()
	m.emitUnlock()
	if terminal {
		m.finish()
	}

	m.log.Error().
		Err(err).
		Str("trigger", string(trigger)).
		Bool("recoverable", recoverable).
		Msg("Attempt submission failed")
	return submitErr
}

func (m *Machine) onTick(gen, remaining int) {
	m.mu.Lock()
	if gen != m.clockGen || m.state != StateInProgress {
		m.mu.Unlock()
		return
	}
	m.remaining = remaining
	m.emitUnlock()
}

func (m *Machine) onExpire(gen int) {
	m.mu.Lock()
	stale := gen != m.clockGen
	m.mu.Unlock()
	if stale {
		return
	}

	m.log.Info().Msg("Time is up, submitting")

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if m.submitTimeout > 0 {
		ctx, cancel = context.WithTimeout(m.ctx, m.submitTimeout)
	} else {
		ctx, cancel = context.WithCancel(m.ctx)
	}
	defer cancel()

	// A manual submit that won the latch makes this a no-op.
	if err := m.submit(ctx, TriggerTimeout, gen); errors.Is(err, ErrAlreadySubmitted) || errors.Is(err, ErrNotInProgress) {
		m.log.Debug().Err(err).Msg("Timeout submit skipped")
	}
}

// armLocked starts a fresh countdown for seconds.
func (m *Machine) armLocked(seconds int) error {
	clock, err := NewCountdownClock(seconds, WithTickerFactory(m.newTicker))
	if err != nil {
		return err
	}
	m.clockGen++
	gen := m.clockGen
	cd, err := clock.Start(
		func(remaining int) { m.onTick(gen, remaining) },
		func() { m.onExpire(gen) },
	)
	if err != nil {
		return err
	}
	m.countdown = cd
	return nil
}

func (m *Machine) cancelClockLocked() {
	if m.countdown != nil {
		m.countdown.Cancel()
	}
}

// transitionLocked moves to s. Leaving InProgress always stops the clock.
func (m *Machine) transitionLocked(s State) {
	if s != StateInProgress {
		m.cancelClockLocked()
	}
	m.state = s
	if s != StateFailed {
		m.reason = ""
	}
}

func (m *Machine) failLocked(reason FailureReason, err error) {
	m.transitionLocked(StateFailed)
	m.reason = reason
	m.lastErr = err
}

func (m *Machine) finish() {
	m.doneOnce.Do(func() { close(m.done) })
}

func (m *Machine) statusLocked() Status {
	st := Status{
		State:     m.state,
		Reason:    m.reason,
		Err:       m.lastErr,
		Remaining: m.remaining,
		Answered:  m.ledger.AnsweredCount(),
		Total:     len(m.questions),
	}
	if m.result != nil {
		r := *m.result
		st.Result = &r
	}
	return st
}

// emitUnlock snapshots the status, releases m.mu and notifies the observer.
// notifyMu is taken before m.mu is released so observers see changes in the
// order they happened.
func (m *Machine) emitUnlock() {
	if m.observer == nil {
		m.mu.Unlock()
		return
	}
	st := m.statusLocked()
	m.notifyMu.Lock()
	m.mu.Unlock()
	m.observer(st)
	m.notifyMu.Unlock()
}
