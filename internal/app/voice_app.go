// Package app wires recognition sessions to the command interpreter, the
// task store and spoken feedback.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/emmett/voxtask/internal/audio"
	"github.com/emmett/voxtask/internal/command"
	"github.com/emmett/voxtask/internal/confidence"
	"github.com/emmett/voxtask/internal/config"
	"github.com/emmett/voxtask/internal/metrics"
	"github.com/emmett/voxtask/internal/session"
	"github.com/emmett/voxtask/internal/stt"
	"github.com/emmett/voxtask/internal/tasks"
	"github.com/emmett/voxtask/internal/tts"
)

// historySize bounds the reports kept for History
const historySize = 100

// Spoken when a transcript falls below the session's threshold
const msgLowConfidence = "I didn't catch that clearly, please try again"

// Settings are the user-facing speech preferences that can change while
// running
type Settings struct {
	Language          string  `json:"language"`
	Sensitivity       float64 `json:"sensitivity"`
	ContinuousMode    bool    `json:"continuous_mode"`
	AdaptiveThreshold bool    `json:"adaptive_threshold"`
}

// SettingsFromConfig extracts Settings from a loaded configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Language:          cfg.Speech.Language,
		Sensitivity:       cfg.Speech.Sensitivity,
		ContinuousMode:    cfg.Speech.ContinuousMode,
		AdaptiveThreshold: cfg.Speech.AdaptiveThreshold,
	}
}

// SessionConfigFromConfig builds session timing from a loaded configuration
func SessionConfigFromConfig(cfg *config.Config) session.Config {
	sc := session.DefaultConfig()
	if cfg.Speech.Timeout > 0 {
		sc.Timeout = cfg.Speech.Timeout
	}
	if cfg.Speech.RetryDelay > 0 {
		sc.RetryDelay = cfg.Speech.RetryDelay
	}
	sc.MaxRetries = cfg.Speech.MaxRetries
	if cfg.Speech.MaxAlternatives > 0 {
		sc.Listen.MaxAlternatives = cfg.Speech.MaxAlternatives
	}
	return sc
}

// ActivitySource provides microphone activity readings
type ActivitySource interface {
	Samples() <-chan audio.ActivitySample
}

// Options wires a VoiceApp to its collaborators. Recognizer and Store are
// required.
type Options struct {
	Recognizer stt.Recognizer
	Monitor    session.Monitor
	Activity   ActivitySource
	Store      tasks.Store
	Speaker    tts.Speaker
	SpeechRate float64
	Controller *confidence.Controller
	Clock      session.Clock
	Session    session.Config
	Settings   Settings
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	Sinks      []EventSink
}

// VoiceApp turns recognition sessions into task list changes
type VoiceApp struct {
	sessions   *session.Manager
	executor   *command.Executor
	store      tasks.Store
	speaker    tts.Speaker
	rate       float64
	controller *confidence.Controller
	clock      session.Clock
	activity   ActivitySource
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	retryDelay time.Duration

	mu       sync.Mutex
	settings Settings
	listen   stt.ListenOptions
	sinks    []EventSink
	history  []CommandReport
	armed    bool
	restart  session.Timer
}

// New creates a VoiceApp and its session manager
func New(opts Options) (*VoiceApp, error) {
	if opts.Recognizer == nil {
		return nil, errors.New("recognizer is required")
	}
	if opts.Store == nil {
		return nil, errors.New("task store is required")
	}
	if opts.Speaker == nil {
		opts.Speaker = tts.NewConsoleSpeaker(io.Discard)
	}
	if opts.SpeechRate <= 0 {
		opts.SpeechRate = tts.DefaultRate
	}
	if opts.Clock == nil {
		opts.Clock = session.RealClock()
	}
	if opts.Controller == nil {
		opts.Controller = confidence.NewController(
			confidence.ThresholdFromSensitivity(opts.Settings.Sensitivity),
			opts.Settings.AdaptiveThreshold,
		)
	}

	sc := opts.Session
	if sc == (session.Config{}) {
		sc = session.DefaultConfig()
	}
	if opts.Settings.Language != "" {
		sc.Listen.Language = opts.Settings.Language
	}
	sc.Listen.Continuous = opts.Settings.ContinuousMode

	logger := opts.Logger.With().Str("component", "app").Logger()
	a := &VoiceApp{
		executor:   command.NewExecutor(opts.Store, opts.Speaker, opts.SpeechRate, opts.Logger),
		store:      opts.Store,
		speaker:    opts.Speaker,
		rate:       opts.SpeechRate,
		controller: opts.Controller,
		clock:      opts.Clock,
		activity:   opts.Activity,
		metrics:    opts.Metrics,
		logger:     logger,
		settings:   opts.Settings,
		listen:     sc.Listen,
		sinks:      append([]EventSink(nil), opts.Sinks...),
	}

	a.sessions = session.NewManager(session.Options{
		Recognizer: opts.Recognizer,
		Monitor:    opts.Monitor,
		Controller: opts.Controller,
		Clock:      opts.Clock,
		Config:     sc,
		Logger:     opts.Logger,
		OnStatus:   a.onStatus,
		OnOutcome:  a.onOutcome,
	})
	a.retryDelay = sc.RetryDelay

	if a.metrics != nil {
		a.metrics.ObserveAnalytics(a.controller.Snapshot())
	}
	return a, nil
}

// AddSink registers another event sink
func (a *VoiceApp) AddSink(s EventSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, s)
}

// Listen starts a recognition session. In continuous mode the app keeps
// listening after each outcome until Cancel.
func (a *VoiceApp) Listen() (string, error) {
	a.mu.Lock()
	a.armed = true
	a.stopRestartLocked()
	a.mu.Unlock()

	id, err := a.sessions.Start()
	if err != nil && !errors.Is(err, session.ErrSessionActive) {
		a.mu.Lock()
		a.armed = false
		a.mu.Unlock()
	}
	return id, err
}

// Cancel stops the active session, if any, and disarms continuous
// listening. Nothing is recorded for a cancelled session.
func (a *VoiceApp) Cancel() {
	a.mu.Lock()
	a.armed = false
	a.stopRestartLocked()
	a.mu.Unlock()

	a.sessions.Stop()
}

// Toggle cancels when listening (or waiting to restart) and listens
// otherwise. Push-to-talk triggers call it.
func (a *VoiceApp) Toggle() {
	a.mu.Lock()
	pending := a.restart != nil
	a.mu.Unlock()

	if pending || a.sessions.State() != session.StateIdle {
		a.Cancel()
		return
	}
	if _, err := a.Listen(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to start listening")
	}
}

// State returns the session state
func (a *VoiceApp) State() session.State {
	return a.sessions.State()
}

// Stats returns recognition analytics
func (a *VoiceApp) Stats() confidence.Analytics {
	return a.controller.Snapshot()
}

// Settings returns the current speech settings
func (a *VoiceApp) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Tasks returns the whole task list
func (a *VoiceApp) Tasks(ctx context.Context) ([]tasks.Task, error) {
	list, err := a.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return list, nil
}

// History returns handled transcripts, oldest first
func (a *VoiceApp) History() []CommandReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]CommandReport(nil), a.history...)
}

// HandleTranscript interprets and executes text as if it had been heard
// with the given confidence. Typed input bypasses the threshold.
func (a *VoiceApp) HandleTranscript(ctx context.Context, text string, conf float64) (CommandReport, error) {
	return a.execute(ctx, "", text, conf)
}

// ApplySettings changes speech settings for sessions started from now on.
// The threshold is reset only when sensitivity changes, so an adapted
// threshold survives unrelated edits.
func (a *VoiceApp) ApplySettings(s Settings) {
	a.mu.Lock()
	prev := a.settings
	a.settings = s
	a.listen.Language = s.Language
	a.listen.Continuous = s.ContinuousMode
	listen := a.listen
	if !s.ContinuousMode {
		a.armed = false
		a.stopRestartLocked()
	}
	a.mu.Unlock()

	if s.Sensitivity != prev.Sensitivity {
		a.controller.SetThreshold(confidence.ThresholdFromSensitivity(s.Sensitivity))
	}
	if s.Sensitivity != prev.Sensitivity || s.AdaptiveThreshold != prev.AdaptiveThreshold {
		a.controller.SetAdaptive(s.AdaptiveThreshold)
	}
	a.sessions.SetListenOptions(listen)

	a.logger.Info().
		Str("language", s.Language).
		Float64("sensitivity", s.Sensitivity).
		Bool("continuous", s.ContinuousMode).
		Bool("adaptive", s.AdaptiveThreshold).
		Msg("settings applied")
	a.publish(Event{Type: EventSettings, Settings: &s})
}

// Run forwards activity readings to sinks until ctx is done, then cancels
// any session
func (a *VoiceApp) Run(ctx context.Context) error {
	defer a.Cancel()

	if a.activity == nil {
		<-ctx.Done()
		return nil
	}

	samples := a.activity.Samples()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-samples:
			a.publish(Event{Type: EventActivity, Activity: activityView(s)})
		}
	}
}

func (a *VoiceApp) onStatus(s session.Status) {
	a.publish(Event{Type: EventStatus, Status: statusView(s)})
}

func (a *VoiceApp) onOutcome(o session.Outcome) {
	if a.metrics != nil {
		a.metrics.ObserveSession(o)
	}

	if o.Succeeded() {
		a.handleCompleted(o)
	} else {
		a.handleFailed(o)
	}

	if a.metrics != nil {
		a.metrics.ObserveAnalytics(a.controller.Snapshot())
	}
	a.scheduleRestart(o)
}

func (a *VoiceApp) handleCompleted(o session.Outcome) {
	if o.Confidence < o.Threshold {
		a.logger.Info().
			Str("session", o.SessionID).
			Str("transcript", o.Transcript).
			Float64("confidence", o.Confidence).
			Float64("threshold", o.Threshold).
			Msg("transcript below threshold")
		if a.metrics != nil {
			a.metrics.ObserveRejection()
		}
		a.speaker.Speak(msgLowConfidence, a.rate)
		a.record(CommandReport{
			SessionID:  o.SessionID,
			Transcript: o.Transcript,
			Confidence: o.Confidence,
			Intent:     command.IntentUnknown.String(),
			Outcome:    OutcomeRejected,
			Message:    msgLowConfidence,
			Timestamp:  a.clock.Now(),
		})
		return
	}

	if _, err := a.execute(context.Background(), o.SessionID, o.Transcript, o.Confidence); err != nil {
		a.logger.Error().Err(err).Str("session", o.SessionID).Msg("failed to execute command")
	}
}

func (a *VoiceApp) handleFailed(o session.Outcome) {
	msg := o.Failure.Message()
	a.speaker.Speak(msg, a.rate)
	a.publish(Event{Type: EventFailure, Failure: &FailureView{
		SessionID: o.SessionID,
		Kind:      o.Failure.String(),
		Message:   msg,
		Retries:   o.Retries,
	}})
}

func (a *VoiceApp) execute(ctx context.Context, sessionID, text string, conf float64) (CommandReport, error) {
	cmd := command.Parse(text)
	res, err := a.executor.Execute(ctx, cmd)
	report := newReport(sessionID, text, conf, res, a.clock.Now())
	if err != nil {
		report.Outcome = "error"
	}
	if a.metrics != nil {
		a.metrics.ObserveCommand(report.Intent, report.Outcome)
	}
	a.record(report)
	if err != nil {
		return report, fmt.Errorf("failed to execute %s: %w", cmd.Intent, err)
	}
	return report, nil
}

func (a *VoiceApp) record(r CommandReport) {
	a.mu.Lock()
	a.history = append(a.history, r)
	if len(a.history) > historySize {
		a.history = a.history[len(a.history)-historySize:]
	}
	a.mu.Unlock()

	a.publish(Event{Type: EventCommand, Command: &r})
}

// scheduleRestart listens again after the retry delay when continuous mode
// is on and the failure, if any, is not fatal
func (a *VoiceApp) scheduleRestart(o session.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.armed {
		return
	}
	if !a.settings.ContinuousMode || (!o.Succeeded() && o.Failure.Fatal()) {
		a.armed = false
		return
	}

	a.stopRestartLocked()
	var t session.Timer
	t = a.clock.AfterFunc(a.retryDelay, func() {
		a.mu.Lock()
		if a.restart != t || !a.armed {
			a.mu.Unlock()
			return
		}
		a.restart = nil
		a.mu.Unlock()

		if _, err := a.sessions.Start(); err != nil && !errors.Is(err, session.ErrSessionActive) {
			a.logger.Error().Err(err).Msg("failed to restart listening")
		}
	})
	a.restart = t
}

func (a *VoiceApp) stopRestartLocked() {
	if a.restart != nil {
		a.restart.Stop()
		a.restart = nil
	}
}

func (a *VoiceApp) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = a.clock.Now()
	}
	a.mu.Lock()
	sinks := append([]EventSink(nil), a.sinks...)
	a.mu.Unlock()

	for _, s := range sinks {
		s.Publish(ev)
	}
}
