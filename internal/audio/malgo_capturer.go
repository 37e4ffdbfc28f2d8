package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// MalgoCapturer implements the Capturer interface using malgo
type MalgoCapturer struct {
	config       CaptureConfig
	device       *malgo.Device
	malgoContext *malgo.AllocatedContext
	samples      chan AudioSample
	errors       chan error
	running      bool
	mu           sync.RWMutex
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// NewMalgoCapturer creates a new malgo-based audio capturer
func NewMalgoCapturer(config CaptureConfig) (*MalgoCapturer, error) {
	size := config.SampleBufferSize
	if size <= 0 {
		size = 10
	}
	return &MalgoCapturer{
		config:   config,
		samples:  make(chan AudioSample, size),
		errors:   make(chan error, 10),
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins audio capture
func (m *MalgoCapturer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("capturer is already running")
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to initialize malgo context: %v", ErrAudioUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = m.config.Channels
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.PeriodSizeInFrames = m.config.BufferFrames

	if m.config.DeviceName != "" {
		infos, err := malgoCtx.Devices(malgo.Capture)
		if err != nil {
			releaseContext(malgoCtx)
			return fmt.Errorf("%w: failed to enumerate devices: %v", ErrAudioUnavailable, err)
		}
		idx := matchDevice(m.config.DeviceName, captureNames(infos))
		if idx < 0 {
			releaseContext(malgoCtx)
			return fmt.Errorf("%w: no device matching %q", ErrAudioUnavailable, m.config.DeviceName)
		}
		deviceConfig.Capture.DeviceID = infos[idx].ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			// input is reused by malgo after the callback returns
			data := make([]byte, len(input))
			copy(data, input)

			select {
			case <-m.stopChan:
				return
			default:
			}

			select {
			case m.samples <- AudioSample{Data: data, Timestamp: time.Now(), Frames: frameCount}:
			default:
				select {
				case m.errors <- fmt.Errorf("sample buffer overflow, dropping frames"):
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		releaseContext(malgoCtx)
		return fmt.Errorf("%w: failed to initialize device: %v", ErrAudioUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		releaseContext(malgoCtx)
		return fmt.Errorf("%w: failed to start device: %v", ErrAudioUnavailable, err)
	}

	m.malgoContext = malgoCtx
	m.device = device
	m.running = true

	go func() {
		select {
		case <-ctx.Done():
			_ = m.Stop()
		case <-m.stopChan:
		}
	}()

	return nil
}

// Stop stops audio capture. The device and context are released even when
// stopping the device reports an error.
func (m *MalgoCapturer) Stop() error {
	var stopErr error
	m.stopOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		close(m.stopChan)
		if m.device != nil {
			if err := m.device.Stop(); err != nil {
				stopErr = fmt.Errorf("failed to stop device: %w", err)
			}
			m.device.Uninit()
			m.device = nil
		}
		if m.malgoContext != nil {
			releaseContext(m.malgoContext)
			m.malgoContext = nil
		}
		m.running = false

		close(m.samples)
		close(m.errors)
	})
	return stopErr
}

// Samples returns a channel that receives audio samples
func (m *MalgoCapturer) Samples() <-chan AudioSample {
	return m.samples
}

// Errors returns a channel that receives capture errors
func (m *MalgoCapturer) Errors() <-chan error {
	return m.errors
}

// IsRunning returns true if capture is currently active
func (m *MalgoCapturer) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func releaseContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

func captureNames(infos []malgo.DeviceInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names
}
