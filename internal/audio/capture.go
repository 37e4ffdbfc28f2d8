package audio

import (
	"context"
	"errors"
	"time"
)

// ErrAudioUnavailable is returned when no capture device can be opened,
// either because none exists or because access was denied.
var ErrAudioUnavailable = errors.New("audio capture unavailable")

// CaptureConfig holds configuration for audio capture
type CaptureConfig struct {
	// SampleRate is the number of samples per second (Hz)
	// 16000 matches what the recognizer expects
	SampleRate uint32

	// Channels is the number of audio channels (1 = mono)
	Channels uint32

	// BufferFrames is the number of frames per device period
	// Smaller = lower latency, higher CPU usage
	BufferFrames uint32

	// SampleBufferSize is the size of the channel buffer for audio samples
	SampleBufferSize int

	// DeviceName selects a capture device by (fuzzy) name
	// Empty string = use default device
	DeviceName string
}

// DefaultConfig returns the capture configuration used for command listening
func DefaultConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:       16000, // 16kHz is optimal for most STT engines
		Channels:         1,     // Mono
		BufferFrames:     480,   // 30ms at 16kHz
		SampleBufferSize: 50,    // ~1.5 seconds of periods
		DeviceName:       "",
	}
}

// AudioSample represents a chunk of captured 16-bit PCM audio
type AudioSample struct {
	Data      []byte    // Raw little-endian S16 audio data
	Timestamp time.Time // When the sample was captured
	Frames    uint32    // Number of audio frames in this sample
}

// Capturer is the interface for audio capture implementations
type Capturer interface {
	// Start begins audio capture
	Start(ctx context.Context) error

	// Stop stops audio capture and releases the device
	Stop() error

	// Samples returns a channel that receives audio samples
	Samples() <-chan AudioSample

	// Errors returns a channel that receives capture errors
	Errors() <-chan error

	// IsRunning returns true if capture is currently active
	IsRunning() bool
}

// CapturerFactory builds a fresh Capturer for every acquisition.
// A capturer's channels are closed on Stop, so they are never reused.
type CapturerFactory func() (Capturer, error)

// NewCapturer creates a new audio capturer with the given configuration
func NewCapturer(config CaptureConfig) (Capturer, error) {
	return NewMalgoCapturer(config)
}

// MalgoFactory returns a CapturerFactory producing malgo capturers
func MalgoFactory(config CaptureConfig) CapturerFactory {
	return func() (Capturer, error) {
		return NewCapturer(config)
	}
}
