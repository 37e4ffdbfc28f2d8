package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/voxtask/internal/audio"
	"github.com/emmett/voxtask/internal/confidence"
	"github.com/emmett/voxtask/internal/stt"
)

type fakeRecognizer struct {
	mu        sync.Mutex
	ch        chan stt.Event
	listens   int
	stops     int
	listenErr error
	opts      stt.ListenOptions
}

func (f *fakeRecognizer) Listen(ctx context.Context, opts stt.ListenOptions) (<-chan stt.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	if f.ch != nil {
		return nil, stt.ErrRecognizerBusy
	}
	f.listens++
	f.opts = opts
	f.ch = make(chan stt.Event, 16)
	return f.ch, nil
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.ch != nil {
		close(f.ch)
		f.ch = nil
	}
	return nil
}

func (f *fakeRecognizer) emit(ev stt.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil {
		return false
	}
	f.ch <- ev
	return true
}

func (f *fakeRecognizer) listenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listens
}

func (f *fakeRecognizer) active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch != nil
}

type fakeMonitor struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	startErr error
}

func (m *fakeMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	if m.running {
		return audio.ErrMonitorRunning
	}
	m.running = true
	m.starts++
	return nil
}

func (m *fakeMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.stops++
	return nil
}

func (m *fakeMonitor) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

type harness struct {
	m     *Manager
	rec   *fakeRecognizer
	mon   *fakeMonitor
	clock *FakeClock
	ctrl  *confidence.Controller

	mu       sync.Mutex
	outcomes []Outcome
	statuses []Status
	onOut    func(Outcome)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rec:   &fakeRecognizer{},
		mon:   &fakeMonitor{},
		clock: NewFakeClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		ctrl:  confidence.NewController(0.5, true),
	}
	h.m = NewManager(Options{
		Recognizer: h.rec,
		Monitor:    h.mon,
		Controller: h.ctrl,
		Clock:      h.clock,
		Config:     DefaultConfig(),
		Logger:     zerolog.Nop(),
		OnStatus: func(s Status) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.statuses = append(h.statuses, s)
		},
		OnOutcome: func(o Outcome) {
			h.mu.Lock()
			h.outcomes = append(h.outcomes, o)
			cb := h.onOut
			h.mu.Unlock()
			if cb != nil {
				cb(o)
			}
		},
	})
	return h
}

func (h *harness) outcomeList() []Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Outcome(nil), h.outcomes...)
}

func (h *harness) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, s := range h.statuses {
		out = append(out, s.Message)
	}
	return out
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.m.State() == want }, time.Second, time.Millisecond,
		"want state %s, have %s", want, h.m.State())
}

func (h *harness) waitOutcomes(t *testing.T, n int) []Outcome {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.outcomeList()) >= n }, time.Second, time.Millisecond)
	return h.outcomeList()
}

func finalResult(text string, conf float64, alts ...stt.Alternative) stt.Event {
	return stt.Event{Type: stt.EventResult, Result: stt.Result{Text: text, Confidence: conf, Language: "en-US", Alternatives: alts}}
}

func noSpeech() stt.Event {
	return stt.Event{Type: stt.EventError, ErrorKind: stt.ErrorNoSpeech}
}

func TestManager_CompletesWithBestAlternative(t *testing.T) {
	h := newHarness(t)

	id, err := h.m.Start()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, StateListening, h.m.State())
	assert.Equal(t, 1, h.rec.listenCount())
	assert.True(t, h.mon.isRunning())

	require.True(t, h.rec.emit(stt.Event{Type: stt.EventStart}))
	require.True(t, h.rec.emit(finalResult("at milk", 0.8,
		stt.Alternative{Text: "at milk", Confidence: 0.8},
		stt.Alternative{Text: "add milk", Confidence: 0.75},
	)))

	outs := h.waitOutcomes(t, 1)
	require.Len(t, outs, 1)
	o := outs[0]
	assert.Equal(t, id, o.SessionID)
	assert.Equal(t, StateCompleted, o.State)
	assert.Equal(t, "add milk", o.Transcript)
	assert.Equal(t, 0.75, o.Confidence)
	assert.Equal(t, 0.5, o.Threshold)

	h.waitState(t, StateIdle)
	assert.False(t, h.rec.active())
	assert.False(t, h.mon.isRunning())
	assert.Equal(t, 0, h.clock.Pending())

	a := h.ctrl.Snapshot()
	assert.Equal(t, 1, a.TotalAttempts)
	assert.Equal(t, 1, a.SuccessfulRecognitions)
}

func TestManager_PartialResultUpdatesStatusOnly(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Start()
	require.NoError(t, err)

	require.True(t, h.rec.emit(stt.Event{Type: stt.EventResult, Result: stt.Result{Text: "add mi", Partial: true}}))
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, s := range h.statuses {
			if s.Partial == "add mi" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	assert.Equal(t, StateListening, h.m.State())
	assert.Empty(t, h.outcomeList())
}

func TestManager_RetriesNoSpeechTwiceThenFails(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Start()
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		require.True(t, h.rec.emit(noSpeech()))
		h.waitState(t, StateAwaitingRetry)
		assert.False(t, h.mon.isRunning(), "monitor released while waiting")
		assert.False(t, h.rec.active(), "recognizer stopped while waiting")
		assert.Contains(t, h.messages(), fmt.Sprintf("retrying (%d/3)", attempt+1))

		h.clock.Advance(time.Second)
		h.waitState(t, StateListening)
		assert.Equal(t, attempt+1, h.rec.listenCount())
	}

	require.True(t, h.rec.emit(noSpeech()))
	outs := h.waitOutcomes(t, 1)
	require.Len(t, outs, 1)
	assert.Equal(t, StateFailed, outs[0].State)
	assert.Equal(t, FailureNoSpeechExhausted, outs[0].Failure)
	assert.Equal(t, 2, outs[0].Retries)

	h.waitState(t, StateIdle)
	assert.Equal(t, 3, h.rec.listenCount())
	assert.Equal(t, 1, h.ctrl.Snapshot().TotalAttempts)
	assert.Equal(t, "no_speech", h.ctrl.Snapshot().LastErrorKind)
}

func TestManager_EndWithoutResultCountsAsNoSpeech(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Start()
	require.NoError(t, err)

	require.True(t, h.rec.emit(stt.Event{Type: stt.EventEnd}))
	h.waitState(t, StateAwaitingRetry)
	assert.Empty(t, h.outcomeList())
}

func TestManager_DuplicateTerminalEventsHaveOneEffect(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Start()
	require.NoError(t, err)

	// result, then error and end from the same attempt
	require.True(t, h.rec.emit(finalResult("add milk", 0.9)))
	_ = h.rec.emit(stt.Event{Type: stt.EventError, ErrorKind: stt.ErrorNetwork})
	_ = h.rec.emit(stt.Event{Type: stt.EventEnd})

	h.waitOutcomes(t, 1)
	h.waitState(t, StateIdle)
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, h.outcomeList(), 1)
	assert.Equal(t, 1, h.ctrl.Snapshot().TotalAttempts)
}

func TestManager_Timeout(t *testing.T) {
	h := newHarness(t)
	id, err := h.m.Start()
	require.NoError(t, err)

	h.clock.Advance(9 * time.Second)
	assert.Equal(t, StateListening, h.m.State())

	h.clock.Advance(time.Second)
	outs := h.waitOutcomes(t, 1)
	assert.Equal(t, FailureTimeout, outs[0].Failure)
	h.waitState(t, StateIdle)
	assert.False(t, h.rec.active())

	// a late result from the timed out attempt is ignored
	h.m.post(event{kind: evRecognizer, session: id, attempt: 1, rec: finalResult("add milk", 0.9)})
	assert.Len(t, h.outcomeList(), 1)
	assert.Equal(t, StateIdle, h.m.State())
}

func TestManager_TimeoutIsPerAttempt(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Start()
	require.NoError(t, err)

	h.clock.Advance(8 * time.Second)
	require.True(t, h.rec.emit(noSpeech()))
	h.waitState(t, StateAwaitingRetry)

	h.clock.Advance(time.Second)
	h.waitState(t, StateListening)

	// the first attempt's deadline has passed; the new attempt has its own
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, StateListening, h.m.State())
	assert.Empty(t, h.outcomeList())

	h.clock.Advance(5 * time.Second)
	outs := h.waitOutcomes(t, 1)
	assert.Equal(t, FailureTimeout, outs[0].Failure)
	assert.Equal(t, 1, outs[0].Retries)
}

func TestManager_OtherErrorsFailImmediately(t *testing.T) {
	tests := map[string]FailureKind{
		stt.ErrorNetwork:            FailureNetwork,
		stt.ErrorMicDenied:          FailureNoMicrophone,
		stt.ErrorPermissionDenied:   FailurePermissionDenied,
		stt.ErrorServiceUnavailable: FailureServiceUnavailable,
		"something-new":             FailureUnknown,
	}
	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.m.Start()
			require.NoError(t, err)

			require.True(t, h.rec.emit(stt.Event{Type: stt.EventError, ErrorKind: raw}))
			outs := h.waitOutcomes(t, 1)
			assert.Equal(t, want, outs[0].Failure)
			assert.Equal(t, 0, outs[0].Retries)
			assert.Equal(t, 1, h.rec.listenCount())
		})
	}
}

func TestManager_StartWhileActiveRejected(t *testing.T) {
	h := newHarness(t)
	id, err := h.m.Start()
	require.NoError(t, err)

	_, err = h.m.Start()
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Equal(t, 1, h.rec.listenCount())

	s, ok := h.m.Session()
	require.True(t, ok)
	assert.Equal(t, id, s.ID)
	assert.Equal(t, StateListening, s.State)
}

func TestManager_StopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t)
	h.m.Stop()
	h.m.Stop()

	assert.Equal(t, StateIdle, h.m.State())
	assert.Empty(t, h.messages())
	assert.Empty(t, h.outcomeList())
	assert.Equal(t, 0, h.rec.stops)
	assert.Equal(t, 0, h.ctrl.Snapshot().TotalAttempts)
}

func TestManager_StopWhileListening(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Start()
	require.NoError(t, err)

	h.m.Stop()
	assert.Equal(t, StateIdle, h.m.State())
	assert.False(t, h.rec.active())
	assert.False(t, h.mon.isRunning())
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.outcomeList())
	assert.Equal(t, 0, h.ctrl.Snapshot().TotalAttempts)

	_, err = h.m.Start()
	assert.NoError(t, err)
}

func TestManager_StopWhileAwaitingRetry(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Start()
	require.NoError(t, err)

	require.True(t, h.rec.emit(noSpeech()))
	h.waitState(t, StateAwaitingRetry)

	h.m.Stop()
	assert.Equal(t, StateIdle, h.m.State())

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 1, h.rec.listenCount())
	assert.Equal(t, StateIdle, h.m.State())
	assert.Empty(t, h.outcomeList())
}

func TestManager_ListenFailure(t *testing.T) {
	h := newHarness(t)
	h.rec.listenErr = fmt.Errorf("%w: device busy", audio.ErrAudioUnavailable)

	_, err := h.m.Start()
	require.NoError(t, err)

	outs := h.waitOutcomes(t, 1)
	assert.Equal(t, FailureNoMicrophone, outs[0].Failure)
	assert.ErrorIs(t, outs[0].Err, audio.ErrAudioUnavailable)
	assert.Equal(t, StateIdle, h.m.State())
	assert.False(t, h.mon.isRunning())
	assert.Equal(t, 0, h.clock.Pending())
}

func TestManager_MonitorFailure(t *testing.T) {
	h := newHarness(t)
	h.mon.startErr = audio.ErrAudioUnavailable

	_, err := h.m.Start()
	require.NoError(t, err)

	outs := h.waitOutcomes(t, 1)
	assert.Equal(t, FailureNoMicrophone, outs[0].Failure)
	assert.Equal(t, 0, h.rec.listenCount())
}

func TestManager_ThresholdSnapshotTakenAtStart(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Start()
	require.NoError(t, err)

	h.ctrl.SetThreshold(0.9)
	require.True(t, h.rec.emit(finalResult("add milk", 0.6)))

	outs := h.waitOutcomes(t, 1)
	assert.Equal(t, 0.5, outs[0].Threshold)
}

func TestManager_RestartFromOutcomeCallback(t *testing.T) {
	h := newHarness(t)
	var restarted sync.Once
	h.onOut = func(Outcome) {
		restarted.Do(func() {
			_, err := h.m.Start()
			assert.NoError(t, err)
		})
	}

	_, err := h.m.Start()
	require.NoError(t, err)
	require.True(t, h.rec.emit(finalResult("add milk", 0.9)))

	require.Eventually(t, func() bool { return h.rec.listenCount() == 2 }, time.Second, time.Millisecond)
	h.waitState(t, StateListening)
}

func TestManager_ListenOptions(t *testing.T) {
	h := newHarness(t)
	h.m.SetListenOptions(stt.ListenOptions{Language: "de-DE", MaxAlternatives: 5})

	_, err := h.m.Start()
	require.NoError(t, err)
	assert.Equal(t, "de-DE", h.rec.opts.Language)
	assert.Equal(t, 5, h.rec.opts.MaxAlternatives)
}

func TestKindFromError(t *testing.T) {
	assert.Equal(t, FailureNoMicrophone, KindFromError("not-allowed"))
	assert.Equal(t, FailureNoMicrophone, KindFromError("audio-capture"))
	assert.Equal(t, FailureServiceUnavailable, KindFromError("service-not-allowed"))
	assert.Equal(t, FailureUnknown, KindFromError("aborted"))
	assert.True(t, FailureNoMicrophone.Fatal())
	assert.False(t, FailureTimeout.Fatal())
	assert.NotEmpty(t, FailureTimeout.Message())
}

func TestKindFromStartError(t *testing.T) {
	assert.Equal(t, FailureServiceUnavailable, kindFromStartError(stt.ErrRecognizerBusy))
	assert.Equal(t, FailureServiceUnavailable, kindFromStartError(errors.New("service-unavailable: engine not initialized")))
	assert.Equal(t, FailureUnknown, kindFromStartError(errors.New("boom")))
}
