package tts

import "context"

// Engine synthesizes spoken feedback
type Engine interface {
	Initialize(config Config) error

	// Synthesize streams mono S16LE audio for req to callback. A callback
	// error aborts synthesis and is returned.
	Synthesize(ctx context.Context, req SynthesizeRequest, callback AudioCallback) error

	Close() error
	IsInitialized() bool
}

// Config configures an Engine
type Config struct {
	// ModelPath points at a Piper .onnx voice; its .onnx.json sidecar
	// supplies the sample rate
	ModelPath string
	// Binary is the piper executable, looked up on PATH when relative
	Binary string
	// SampleRate is used when the voice does not declare one
	SampleRate int
}

// SynthesizeRequest is one utterance
type SynthesizeRequest struct {
	Text string
	// Rate scales speaking speed; 1.0 is normal
	Rate float64
}

// AudioChunk is a piece of synthesized audio
type AudioChunk struct {
	Data       []byte
	SampleRate int
}

// AudioCallback receives chunks as they are synthesized
type AudioCallback func(chunk AudioChunk) error

// DefaultConfig runs piper from PATH with modelPath as the voice
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:  modelPath,
		Binary:     "piper",
		SampleRate: 22050,
	}
}
