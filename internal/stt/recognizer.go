package stt

import (
	"context"
	"errors"
)

// ErrRecognizerBusy is returned by Listen while a previous Listen is active
var ErrRecognizerBusy = errors.New("recognizer already listening")

// Raw error kinds reported by recognizers. Session management maps them
// onto its own failure kinds.
const (
	ErrorNoSpeech           = "no-speech"
	ErrorMicDenied          = "mic-denied"
	ErrorAudioCapture       = "audio-capture"
	ErrorPermissionDenied   = "permission-denied"
	ErrorNotAllowed         = "not-allowed"
	ErrorNetwork            = "network"
	ErrorServiceUnavailable = "service-unavailable"
	ErrorAborted            = "aborted"
	ErrorUnknown            = "unknown"
)

// EventType identifies a recognizer callback
type EventType int

const (
	EventStart EventType = iota
	EventResult
	EventError
	EventEnd
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is one callback from the recognizer
type Event struct {
	Type EventType

	// Result is set for EventResult
	Result Result

	// ErrorKind is one of the Error* constants, set for EventError
	ErrorKind string

	// Err carries the underlying cause, if any
	Err error
}

// ListenOptions configures one Listen call
type ListenOptions struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// Recognizer is the speech capture boundary. Listen starts one recognition
// attempt; its events arrive on the returned channel, which is closed after
// the attempt ends. Stop aborts the current attempt.
type Recognizer interface {
	Listen(ctx context.Context, opts ListenOptions) (<-chan Event, error)
	Stop() error
}

// PCMSource provides raw 16-bit PCM chunks, such as a running activity monitor
type PCMSource interface {
	Subscribe() (<-chan []byte, func(), error)
}
