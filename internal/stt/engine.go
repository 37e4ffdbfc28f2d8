package stt

import "context"

// Result is one recognizer reading of the audio fed so far
type Result struct {
	Text string

	// Partial results may still change; a final one closes the utterance
	Partial bool

	// Confidence of Text, 0.0..1.0
	Confidence float64

	// Language is the locale the engine was configured with
	Language string

	// Alternatives are candidate transcripts, best first. When present,
	// Alternatives[0] matches Text and Confidence.
	Alternatives []Alternative
}

// Alternative is one candidate transcript
type Alternative struct {
	Text       string
	Confidence float64
}

// IsFinal reports whether the result closes an utterance
func (r Result) IsFinal() bool {
	return !r.Partial
}

// LimitAlternatives keeps at most max candidates; max <= 0 keeps all
func (r *Result) LimitAlternatives(max int) *Result {
	if max > 0 && len(r.Alternatives) > max {
		r.Alternatives = r.Alternatives[:max]
	}
	return r
}

// Config configures an Engine
type Config struct {
	// ModelPath is the model directory
	ModelPath string

	// SampleRate of the PCM fed to ProcessAudio, in Hz
	SampleRate int

	// MaxAlternatives > 0 asks the engine for n-best candidates
	MaxAlternatives int

	// Language is reported on results; the model decides what is recognized
	Language string
}

// Engine is a streaming speech-to-text backend fed 16-bit mono PCM
type Engine interface {
	Initialize(config Config) error

	// ProcessAudio feeds a chunk and returns the current partial result,
	// or a final one when the engine detected the end of an utterance
	ProcessAudio(ctx context.Context, audioData []byte) (*Result, error)

	// FinalResult flushes buffered audio and resets for the next utterance
	FinalResult() (*Result, error)

	Reset() error
	Close() error
	IsInitialized() bool
}

// DefaultConfig asks for three alternatives at 16 kHz
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:       modelPath,
		SampleRate:      16000,
		MaxAlternatives: 3,
		Language:        "en-US",
	}
}
