// Package session runs recognition sessions: one bounded attempt to hear
// and transcribe a spoken command, with automatic retry on silence.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/emmett/voxtask/internal/audio"
	"github.com/emmett/voxtask/internal/stt"
)

// ErrSessionActive is returned by Start unless the manager is idle
var ErrSessionActive = errors.New("recognition session already active")

// State is a session lifecycle state
type State int

const (
	StateIdle State = iota
	StateListening
	StateAwaitingRetry
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateAwaitingRetry:
		return "awaiting_retry"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// FailureKind classifies why a session failed
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNoMicrophone
	FailurePermissionDenied
	FailureNoSpeechExhausted
	FailureNetwork
	FailureServiceUnavailable
	FailureTimeout
	FailureUnknown
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureNoMicrophone:
		return "no_microphone"
	case FailurePermissionDenied:
		return "permission_denied"
	case FailureNoSpeechExhausted:
		return "no_speech"
	case FailureNetwork:
		return "network"
	case FailureServiceUnavailable:
		return "service_unavailable"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Message is the text shown or spoken to the user
func (k FailureKind) Message() string {
	switch k {
	case FailureNone:
		return ""
	case FailureNoMicrophone:
		return "No microphone found. Check that one is connected and not in use."
	case FailurePermissionDenied:
		return "Microphone access was denied."
	case FailureNoSpeechExhausted:
		return "No speech detected. Please try again."
	case FailureNetwork:
		return "Network error during recognition. Please try again."
	case FailureServiceUnavailable:
		return "Speech recognition is unavailable."
	case FailureTimeout:
		return "Listening timed out."
	default:
		return "Speech recognition failed."
	}
}

// Fatal reports whether retrying without user action is pointless
func (k FailureKind) Fatal() bool {
	return k == FailureNoMicrophone || k == FailurePermissionDenied
}

// KindFromError maps a recognizer's raw error kind
func KindFromError(raw string) FailureKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case stt.ErrorMicDenied, stt.ErrorNotAllowed, stt.ErrorAudioCapture:
		return FailureNoMicrophone
	case stt.ErrorPermissionDenied:
		return FailurePermissionDenied
	case stt.ErrorNetwork:
		return FailureNetwork
	case stt.ErrorServiceUnavailable, "service-not-allowed":
		return FailureServiceUnavailable
	default:
		return FailureUnknown
	}
}

// kindFromStartError classifies a failure to begin listening
func kindFromStartError(err error) FailureKind {
	switch {
	case errors.Is(err, audio.ErrAudioUnavailable):
		return FailureNoMicrophone
	case errors.Is(err, stt.ErrRecognizerBusy):
		return FailureServiceUnavailable
	case strings.Contains(err.Error(), stt.ErrorServiceUnavailable):
		return FailureServiceUnavailable
	default:
		return FailureUnknown
	}
}

// Session is a snapshot of one recognition session
type Session struct {
	ID         string
	State      State
	StartedAt  time.Time
	RetryCount int
	// Threshold is the confidence threshold in force when the session began
	Threshold float64
}

// Status is a progress update for display
type Status struct {
	SessionID  string
	State      State
	Message    string
	Partial    string
	RetryCount int
}

// Outcome is the single terminal report of a session
type Outcome struct {
	SessionID string
	// State is StateCompleted or StateFailed
	State      State
	Transcript string
	Confidence float64
	Language   string
	Failure    FailureKind
	Err        error
	Retries    int
	Threshold  float64
	Duration   time.Duration
}

// Succeeded reports whether the session produced a transcript
func (o Outcome) Succeeded() bool {
	return o.State == StateCompleted
}
