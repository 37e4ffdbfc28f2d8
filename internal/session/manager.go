package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emmett/voxtask/internal/audio"
	"github.com/emmett/voxtask/internal/confidence"
	"github.com/emmett/voxtask/internal/stt"
)

// Monitor is the voice activity monitor a session runs while listening
type Monitor interface {
	Start(ctx context.Context) error
	Stop() error
}

// Config holds session timing
type Config struct {
	// Timeout bounds each listening attempt
	Timeout time.Duration
	// RetryDelay is the pause before listening again after silence
	RetryDelay time.Duration
	// MaxRetries is how many times silence is retried before giving up
	MaxRetries int
	Listen     stt.ListenOptions
}

// DefaultConfig returns the standard session timing
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		RetryDelay: time.Second,
		MaxRetries: 2,
		Listen: stt.ListenOptions{
			Language:        "en-US",
			InterimResults:  true,
			MaxAlternatives: 3,
		},
	}
}

// Options wires a Manager to its collaborators
type Options struct {
	Recognizer stt.Recognizer
	// Monitor is optional
	Monitor    Monitor
	Controller *confidence.Controller
	Clock      Clock
	Config     Config
	Logger     zerolog.Logger

	OnStatus  func(Status)
	OnOutcome func(Outcome)
}

type eventKind int

const (
	evStart eventKind = iota
	evStop
	evRecognizer
	evTimeout
	evRetry
)

type event struct {
	kind    eventKind
	session string
	attempt int
	rec     stt.Event
}

// Manager runs at most one recognition session at a time.
//
// Every input (Start, Stop, recognizer events, timer fires) becomes an
// event on one FIFO queue. Whichever goroutine finds the queue idle drains
// it, so handlers never overlap and observe inputs in arrival order.
type Manager struct {
	recognizer stt.Recognizer
	monitor    Monitor
	controller *confidence.Controller
	clock      Clock
	logger     zerolog.Logger
	onStatus   func(Status)
	onOutcome  func(Outcome)

	qmu      sync.Mutex
	queue    []event
	draining bool

	mu      sync.Mutex
	config  Config
	state   State
	session *Session
	attempt int
	timeout Timer
	retry   Timer
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewManager creates an idle manager
func NewManager(opts Options) *Manager {
	config := opts.Config
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Controller == nil {
		opts.Controller = confidence.NewController(0.5, true)
	}

	return &Manager{
		recognizer: opts.Recognizer,
		monitor:    opts.Monitor,
		controller: opts.Controller,
		clock:      opts.Clock,
		logger:     opts.Logger.With().Str("component", "session").Logger(),
		onStatus:   opts.OnStatus,
		onOutcome:  opts.OnOutcome,
		config:     config,
	}
}

// Start begins a new session and returns its ID. It fails with
// ErrSessionActive unless the manager is idle.
func (m *Manager) Start() (string, error) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return "", ErrSessionActive
	}
	s := &Session{
		ID:        uuid.NewString(),
		State:     StateListening,
		StartedAt: m.clock.Now(),
		Threshold: m.controller.Threshold(),
	}
	// reserve the slot; the queued start event does the work
	m.state = StateListening
	m.session = s
	m.mu.Unlock()

	m.post(event{kind: evStart, session: s.ID})
	return s.ID, nil
}

// Stop cancels the active session without recording an outcome. It is a
// no-op when idle.
func (m *Manager) Stop() {
	m.post(event{kind: evStop})
}

// State returns the current state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the active session, if any
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	s := *m.session
	s.State = m.state
	return s, true
}

// SetListenOptions changes recognizer options for sessions started later
func (m *Manager) SetListenOptions(opts stt.ListenOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Listen = opts
}

// Controller returns the analytics controller sessions report to
func (m *Manager) Controller() *confidence.Controller {
	return m.controller
}

func (m *Manager) post(ev event) {
	m.qmu.Lock()
	m.queue = append(m.queue, ev)
	if m.draining {
		m.qmu.Unlock()
		return
	}
	m.draining = true
	m.qmu.Unlock()

	for {
		m.qmu.Lock()
		if len(m.queue) == 0 {
			m.draining = false
			m.qmu.Unlock()
			return
		}
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.qmu.Unlock()

		for _, notify := range m.handle(next) {
			notify()
		}
	}
}

// handle applies one event and returns the callbacks to run once the
// state lock is released
func (m *Manager) handle(ev event) []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := notifier{onStatus: m.onStatus}
	switch ev.kind {
	case evStart:
		if m.session == nil || m.session.ID != ev.session {
			return nil
		}
		m.ctx, m.cancel = context.WithCancel(context.Background())
		m.enterListening(&n)

	case evStop:
		m.handleStop(&n)

	case evRecognizer:
		if !m.current(ev) || m.state != StateListening {
			m.logger.Debug().Str("event", ev.rec.Type.String()).Int("attempt", ev.attempt).Msg("ignoring stale recognizer event")
			return nil
		}
		m.handleRecognizer(ev.rec, &n)

	case evTimeout:
		if !m.current(ev) || m.state != StateListening {
			return nil
		}
		m.logger.Warn().Str("session", ev.session).Msg("listening timed out")
		m.fail(FailureTimeout, nil, &n)

	case evRetry:
		if !m.current(ev) || m.state != StateAwaitingRetry {
			return nil
		}
		m.retry = nil
		m.enterListening(&n)
	}
	return n.calls
}

func (m *Manager) current(ev event) bool {
	return m.session != nil && m.session.ID == ev.session && m.attempt == ev.attempt
}

func (m *Manager) enterListening(n *notifier) {
	m.attempt++
	attempt := m.attempt
	id := m.session.ID
	m.state = StateListening

	if m.monitor != nil {
		if err := m.monitor.Start(m.ctx); err != nil && !errors.Is(err, audio.ErrMonitorRunning) {
			m.fail(FailureNoMicrophone, fmt.Errorf("failed to start activity monitor: %w", err), n)
			return
		}
	}

	events, err := m.recognizer.Listen(m.ctx, m.config.Listen)
	if err != nil {
		m.fail(kindFromStartError(err), fmt.Errorf("failed to start recognizer: %w", err), n)
		return
	}

	m.timeout = m.clock.AfterFunc(m.config.Timeout, func() {
		m.post(event{kind: evTimeout, session: id, attempt: attempt})
	})
	go m.pump(id, attempt, events)

	m.logger.Debug().Str("session", id).Int("attempt", attempt).Int("retry", m.session.RetryCount).Msg("listening")
	n.status(m.statusLocked("listening", ""))
}

// pump forwards one attempt's recognizer events onto the queue
func (m *Manager) pump(id string, attempt int, events <-chan stt.Event) {
	ended := false
	for ev := range events {
		if ev.Type == stt.EventEnd {
			ended = true
		}
		m.post(event{kind: evRecognizer, session: id, attempt: attempt, rec: ev})
	}
	if !ended {
		m.post(event{kind: evRecognizer, session: id, attempt: attempt, rec: stt.Event{Type: stt.EventEnd}})
	}
}

func (m *Manager) handleRecognizer(ev stt.Event, n *notifier) {
	switch ev.Type {
	case stt.EventStart:
		n.status(m.statusLocked("listening", ""))

	case stt.EventResult:
		if !ev.Result.IsFinal() {
			n.status(m.statusLocked("hearing", ev.Result.Text))
			return
		}
		m.complete(ev.Result, n)

	case stt.EventError:
		if ev.ErrorKind == stt.ErrorNoSpeech {
			m.noSpeech(n)
			return
		}
		m.fail(KindFromError(ev.ErrorKind), ev.Err, n)

	case stt.EventEnd:
		// ended without a final result
		m.noSpeech(n)
	}
}

func (m *Manager) noSpeech(n *notifier) {
	if m.session.RetryCount >= m.config.MaxRetries {
		m.fail(FailureNoSpeechExhausted, nil, n)
		return
	}

	m.session.RetryCount++
	m.state = StateAwaitingRetry
	m.releaseAttempt()

	id, attempt := m.session.ID, m.attempt
	m.retry = m.clock.AfterFunc(m.config.RetryDelay, func() {
		m.post(event{kind: evRetry, session: id, attempt: attempt})
	})

	msg := fmt.Sprintf("retrying (%d/%d)", m.session.RetryCount+1, m.config.MaxRetries+1)
	m.logger.Info().Str("session", id).Int("retry", m.session.RetryCount).Msg("no speech, retrying")
	n.status(m.statusLocked(msg, ""))
}

func (m *Manager) complete(r stt.Result, n *notifier) {
	best := SelectBest(r)
	m.state = StateCompleted
	m.finish(Outcome{
		State:      StateCompleted,
		Transcript: best.Text,
		Confidence: best.Confidence,
		Language:   r.Language,
	}, n)
}

func (m *Manager) fail(kind FailureKind, err error, n *notifier) {
	m.state = StateFailed
	if err != nil {
		m.logger.Error().Err(err).Str("kind", kind.String()).Msg("session failed")
	}
	m.finish(Outcome{State: StateFailed, Failure: kind, Err: err}, n)
}

// finish is the single terminal path: it releases everything, records the
// outcome once and returns to idle
func (m *Manager) finish(o Outcome, n *notifier) {
	m.releaseAttempt()
	m.stopTimer(&m.retry)
	if m.cancel != nil {
		m.cancel()
	}

	s := m.session
	o.SessionID = s.ID
	o.Retries = s.RetryCount
	o.Threshold = s.Threshold
	o.Duration = m.clock.Now().Sub(s.StartedAt)

	rec := confidence.Outcome{Success: o.Succeeded(), Confidence: o.Confidence}
	if !rec.Success {
		rec.ErrorKind = o.Failure.String()
	}
	m.controller.RecordOutcome(rec)

	msg := "completed"
	if o.State == StateFailed {
		msg = o.Failure.Message()
	}
	n.status(m.statusLocked(msg, o.Transcript))

	m.state = StateIdle
	m.session = nil
	m.ctx, m.cancel = nil, nil

	if m.onOutcome != nil {
		cb := m.onOutcome
		n.add(func() { cb(o) })
	}
}

func (m *Manager) handleStop(n *notifier) {
	if m.state != StateListening && m.state != StateAwaitingRetry {
		return
	}
	// a start that has not been handled yet is not cancelled by an older stop
	if m.session == nil || m.ctx == nil {
		return
	}

	id := m.session.ID
	m.releaseAttempt()
	m.stopTimer(&m.retry)
	if m.cancel != nil {
		m.cancel()
	}

	m.state = StateIdle
	n.status(Status{SessionID: id, State: StateIdle, Message: "stopped"})
	m.session = nil
	m.ctx, m.cancel = nil, nil
	m.logger.Info().Str("session", id).Msg("session stopped")
}

// releaseAttempt ends the current listening attempt: timeout cleared,
// recognizer stopped, microphone released
func (m *Manager) releaseAttempt() {
	m.stopTimer(&m.timeout)
	if err := m.recognizer.Stop(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to stop recognizer")
	}
	if m.monitor != nil {
		if err := m.monitor.Stop(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to stop activity monitor")
		}
	}
}

func (m *Manager) stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (m *Manager) statusLocked(msg, partial string) Status {
	s := Status{State: m.state, Message: msg, Partial: partial}
	if m.session != nil {
		s.SessionID = m.session.ID
		s.RetryCount = m.session.RetryCount
	}
	return s
}

type notifier struct {
	onStatus func(Status)
	calls    []func()
}

func (n *notifier) add(f func()) {
	n.calls = append(n.calls, f)
}

func (n *notifier) status(s Status) {
	if n.onStatus != nil {
		cb := n.onStatus
		n.add(func() { cb(s) })
	}
}
