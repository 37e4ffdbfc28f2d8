package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// VoiceFloor is the normalized RMS level above which voice is reported
	VoiceFloor = 0.01

	// DefaultFFTSize is the analysis window length in samples
	DefaultFFTSize = 2048

	// DefaultSmoothing blends each spectrum bin with its previous value
	DefaultSmoothing = 0.3

	// DefaultFrameInterval approximates display refresh rate
	DefaultFrameInterval = time.Second / 60
)

var (
	// ErrMonitorRunning is returned by Start while a capture is already held
	ErrMonitorRunning = errors.New("activity monitor already running")

	// ErrMonitorStopped is returned by Subscribe when nothing is captured
	ErrMonitorStopped = errors.New("activity monitor not running")
)

// ActivitySample is one reading of microphone activity
type ActivitySample struct {
	Level             float64   // RMS level, 0.0..1.0
	VoiceDetected     bool      // Level above VoiceFloor
	DominantFrequency float64   // Peak spectrum bin in Hz
	Confidence        float64   // Heuristic derived from Level
	Timestamp         time.Time // When the reading was computed
}

// MonitorConfig configures an ActivityMonitor
type MonitorConfig struct {
	SampleRate    uint32
	FFTSize       int
	Smoothing     float64
	FrameInterval time.Duration
}

// DefaultMonitorConfig returns the monitor settings matching DefaultConfig capture
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SampleRate:    16000,
		FFTSize:       DefaultFFTSize,
		Smoothing:     DefaultSmoothing,
		FrameInterval: DefaultFrameInterval,
	}
}

// ActivityMonitor owns the capture device while a session listens. It
// publishes activity readings at frame rate and fans the raw PCM out to
// subscribers so the recognizer shares the same device.
type ActivityMonitor struct {
	factory CapturerFactory
	config  MonitorConfig
	logger  zerolog.Logger

	mu       sync.Mutex
	capturer Capturer
	cancel   context.CancelFunc
	done     chan struct{}
	latest   ActivitySample
	subs     map[int]chan []byte
	nextSub  int

	samples chan ActivitySample
}

// NewActivityMonitor creates a monitor that acquires capturers from factory
func NewActivityMonitor(factory CapturerFactory, config MonitorConfig, logger zerolog.Logger) *ActivityMonitor {
	if config.FFTSize <= 0 {
		config.FFTSize = DefaultFFTSize
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	return &ActivityMonitor{
		factory: factory,
		config:  config,
		logger:  logger.With().Str("component", "activity").Logger(),
		subs:    make(map[int]chan []byte),
		samples: make(chan ActivitySample, 1),
	}
}

// Start acquires the microphone and begins sampling
func (m *ActivityMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capturer != nil {
		return ErrMonitorRunning
	}

	capturer, err := m.factory()
	if err != nil {
		return unavailable(err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	if err := capturer.Start(loopCtx); err != nil {
		cancel()
		_ = capturer.Stop()
		return unavailable(err)
	}

	m.capturer = capturer
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(loopCtx, capturer, m.done)

	m.logger.Debug().Msg("microphone acquired")
	return nil
}

// Stop releases the microphone and zeroes the latest reading. Safe to call
// when not running.
func (m *ActivityMonitor) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Running reports whether the monitor currently holds the microphone
func (m *ActivityMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturer != nil
}

// Latest returns the most recent reading
func (m *ActivityMonitor) Latest() ActivitySample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Samples delivers readings; only the newest unread reading is kept
func (m *ActivityMonitor) Samples() <-chan ActivitySample {
	return m.samples
}

// Subscribe returns a channel receiving raw PCM chunks until the monitor
// stops or the returned cancel func is called.
func (m *ActivityMonitor) Subscribe() (<-chan []byte, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capturer == nil {
		return nil, nil, ErrMonitorStopped
	}

	id := m.nextSub
	m.nextSub++
	ch := make(chan []byte, 64)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

func (m *ActivityMonitor) run(ctx context.Context, capturer Capturer, done chan struct{}) {
	defer close(done)
	defer m.release(capturer)

	window := NewSampleWindow(m.config.FFTSize)
	analyzer := newSpectrumAnalyzer(m.config.FFTSize, float64(m.config.SampleRate), m.config.Smoothing)
	snapshot := make([]float64, m.config.FFTSize)

	ticker := time.NewTicker(m.config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case sample, ok := <-capturer.Samples():
			if !ok {
				return
			}
			window.WritePCM(sample.Data)
			m.fanOut(sample.Data)

		case err, ok := <-capturer.Errors():
			if !ok {
				return
			}
			m.logger.Debug().Err(err).Msg("capture error")

		case now := <-ticker.C:
			window.Snapshot(snapshot)
			m.publish(analyzer.sample(snapshot, now))
		}
	}
}

func (m *ActivityMonitor) fanOut(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		select {
		case sub <- data:
		default:
			m.logger.Warn().Msg("pcm subscriber lagging, dropping chunk")
		}
	}
}

func (m *ActivityMonitor) publish(s ActivitySample) {
	m.mu.Lock()
	m.latest = s
	m.mu.Unlock()

	select {
	case <-m.samples:
	default:
	}
	select {
	case m.samples <- s:
	default:
	}
}

func (m *ActivityMonitor) release(capturer Capturer) {
	if err := capturer.Stop(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to stop capture")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sub := range m.subs {
		delete(m.subs, id)
		close(sub)
	}
	m.capturer = nil
	m.cancel = nil
	m.latest = ActivitySample{}
	m.logger.Debug().Msg("microphone released")
}

func unavailable(err error) error {
	if errors.Is(err, ErrAudioUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
}

// spectrumAnalyzer turns a time-domain window into an ActivitySample
type spectrumAnalyzer struct {
	fft        *fourier.FFT
	hann       []float64
	windowed   []float64
	coeffs     []complex128
	smoothed   []float64
	sampleRate float64
	smoothing  float64
}

func newSpectrumAnalyzer(size int, sampleRate, smoothing float64) *spectrumAnalyzer {
	hann := make([]float64, size)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return &spectrumAnalyzer{
		fft:        fourier.NewFFT(size),
		hann:       hann,
		windowed:   make([]float64, size),
		smoothed:   make([]float64, size/2+1),
		sampleRate: sampleRate,
		smoothing:  smoothing,
	}
}

func (a *spectrumAnalyzer) sample(samples []float64, now time.Time) ActivitySample {
	var sum float64
	for i, s := range samples {
		sum += s * s
		a.windowed[i] = s * a.hann[i]
	}
	level := math.Min(1, math.Sqrt(sum/float64(len(samples))))

	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)
	n := float64(len(samples))
	peak, peakBin := 0.0, 0
	// Bin 0 is DC offset, not a frequency.
	for k := 1; k < len(a.coeffs); k++ {
		mag := cmplx.Abs(a.coeffs[k]) / n
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if a.smoothed[k] > peak {
			peak, peakBin = a.smoothed[k], k
		}
	}

	freq := 0.0
	if peakBin > 0 {
		freq = a.fft.Freq(peakBin) * a.sampleRate
	}

	return ActivitySample{
		Level:             level,
		VoiceDetected:     level > VoiceFloor,
		DominantFrequency: freq,
		Confidence:        math.Min(1, level*5),
		Timestamp:         now,
	}
}
