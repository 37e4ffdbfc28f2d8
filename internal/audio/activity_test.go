package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCapturer is a Capturer fed by the test
type fakeCapturer struct {
	mu       sync.Mutex
	samples  chan AudioSample
	errs     chan error
	running  bool
	stopped  int
	startErr error
	once     sync.Once
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{
		samples: make(chan AudioSample, 16),
		errs:    make(chan error, 1),
	}
}

func (f *fakeCapturer) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeCapturer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.running = false
	f.once.Do(func() {
		close(f.samples)
		close(f.errs)
	})
	return nil
}

func (f *fakeCapturer) Samples() <-chan AudioSample { return f.samples }
func (f *fakeCapturer) Errors() <-chan error        { return f.errs }
func (f *fakeCapturer) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeCapturer) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func sinePCM(freq, amplitude float64, n int, rate float64) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/rate))
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

func newTestMonitor(c *fakeCapturer) *ActivityMonitor {
	cfg := DefaultMonitorConfig()
	cfg.FrameInterval = 5 * time.Millisecond
	return NewActivityMonitor(func() (Capturer, error) { return c, nil }, cfg, zerolog.Nop())
}

func TestSpectrumAnalyzer_SineWave(t *testing.T) {
	a := newSpectrumAnalyzer(DefaultFFTSize, 16000, DefaultSmoothing)
	w := NewSampleWindow(DefaultFFTSize)
	w.WritePCM(sinePCM(440, 0.5, DefaultFFTSize, 16000))

	buf := make([]float64, DefaultFFTSize)
	require.Equal(t, DefaultFFTSize, w.Snapshot(buf))

	s := a.sample(buf, time.Now())
	assert.InDelta(t, 0.5/math.Sqrt2, s.Level, 0.01)
	assert.True(t, s.VoiceDetected)
	binWidth := 16000.0 / DefaultFFTSize
	assert.InDelta(t, 440, s.DominantFrequency, binWidth)
	assert.InDelta(t, 1.0, s.Confidence, 1e-9)
}

func TestSpectrumAnalyzer_Silence(t *testing.T) {
	a := newSpectrumAnalyzer(DefaultFFTSize, 16000, DefaultSmoothing)
	s := a.sample(make([]float64, DefaultFFTSize), time.Now())

	assert.Zero(t, s.Level)
	assert.False(t, s.VoiceDetected)
	assert.Zero(t, s.DominantFrequency)
	assert.Zero(t, s.Confidence)
}

func TestSpectrumAnalyzer_QuietSignalBelowFloor(t *testing.T) {
	a := newSpectrumAnalyzer(DefaultFFTSize, 16000, DefaultSmoothing)
	w := NewSampleWindow(DefaultFFTSize)
	w.WritePCM(sinePCM(300, 0.005, DefaultFFTSize, 16000))
	buf := make([]float64, DefaultFFTSize)
	w.Snapshot(buf)

	s := a.sample(buf, time.Now())
	assert.False(t, s.VoiceDetected)
	assert.Less(t, s.Level, VoiceFloor)
}

func TestActivityMonitor_StartStopReleasesDevice(t *testing.T) {
	c := newFakeCapturer()
	m := newTestMonitor(c)

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())

	c.samples <- AudioSample{Data: sinePCM(440, 0.5, DefaultFFTSize, 16000)}
	require.Eventually(t, func() bool { return m.Latest().VoiceDetected }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.False(t, m.Running())
	assert.Equal(t, 1, c.stopCount())
	assert.Equal(t, ActivitySample{}, m.Latest())

	// Second stop is a no-op
	require.NoError(t, m.Stop())
	assert.Equal(t, 1, c.stopCount())
}

func TestActivityMonitor_RejectsSecondStart(t *testing.T) {
	c := newFakeCapturer()
	m := newTestMonitor(c)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.ErrorIs(t, m.Start(context.Background()), ErrMonitorRunning)
}

func TestActivityMonitor_FactoryFailureIsUnavailable(t *testing.T) {
	m := NewActivityMonitor(func() (Capturer, error) {
		return nil, errors.New("no device")
	}, DefaultMonitorConfig(), zerolog.Nop())

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, ErrAudioUnavailable)
	assert.False(t, m.Running())
}

func TestActivityMonitor_CaptureStartFailureReleases(t *testing.T) {
	c := newFakeCapturer()
	c.startErr = errors.New("permission denied")
	m := newTestMonitor(c)

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, ErrAudioUnavailable)
	assert.Equal(t, 1, c.stopCount())
	assert.False(t, m.Running())
}

func TestActivityMonitor_SubscribeReceivesPCM(t *testing.T) {
	c := newFakeCapturer()
	m := newTestMonitor(c)

	_, _, err := m.Subscribe()
	assert.ErrorIs(t, err, ErrMonitorStopped)

	require.NoError(t, m.Start(context.Background()))
	pcm, cancel, err := m.Subscribe()
	require.NoError(t, err)
	defer cancel()

	chunk := []byte{1, 0, 2, 0}
	c.samples <- AudioSample{Data: chunk}

	select {
	case got := <-pcm:
		assert.Equal(t, chunk, got)
	case <-time.After(time.Second):
		t.Fatal("expected pcm chunk")
	}

	require.NoError(t, m.Stop())
	_, ok := <-pcm
	assert.False(t, ok, "subscriber channel should close on stop")
}

func TestActivityMonitor_CaptureEndReleases(t *testing.T) {
	c := newFakeCapturer()
	m := newTestMonitor(c)
	require.NoError(t, m.Start(context.Background()))

	// Device disappears underneath the monitor
	require.NoError(t, c.Stop())

	require.Eventually(t, func() bool { return !m.Running() }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop())
}
