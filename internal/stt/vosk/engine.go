// Package vosk adapts the Vosk offline recognizer to stt.Engine.
package vosk

import (
	"context"
	"fmt"
	"sync"

	voskapi "github.com/alphacep/vosk-api/go"

	"github.com/emmett/voxtask/internal/stt"
)

// Engine implements stt.Engine using Vosk
type Engine struct {
	model       *voskapi.VoskModel
	recognizer  *voskapi.VoskRecognizer
	config      stt.Config
	mu          sync.Mutex
	initialized bool
}

// NewEngine creates a new Vosk STT engine
func NewEngine() *Engine {
	return &Engine{}
}

// Initialize loads the model and creates the recognizer
func (v *Engine) Initialize(config stt.Config) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.initialized {
		return fmt.Errorf("engine already initialized")
	}

	voskapi.SetLogLevel(-1)

	model, err := voskapi.NewModel(config.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to load model from %s: %w", config.ModelPath, err)
	}
	if model == nil {
		return fmt.Errorf("failed to load model from %s: model returned nil", config.ModelPath)
	}

	recognizer, err := voskapi.NewRecognizer(model, float64(config.SampleRate))
	if err != nil {
		model.Free()
		return fmt.Errorf("failed to create recognizer: %w", err)
	}

	if config.MaxAlternatives > 0 {
		recognizer.SetMaxAlternatives(config.MaxAlternatives)
	} else {
		// word results carry the per-word confidences
		recognizer.SetWords(1)
	}

	v.model = model
	v.recognizer = recognizer
	v.config = config
	v.initialized = true
	return nil
}

// ProcessAudio feeds PCM to the recognizer
func (v *Engine) ProcessAudio(ctx context.Context, audioData []byte) (*stt.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil, fmt.Errorf("engine not initialized")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if v.recognizer.AcceptWaveform(audioData) > 0 {
		return stt.DecodeVoskResult(v.recognizer.Result(), false, v.config.Language)
	}
	return stt.DecodeVoskResult(v.recognizer.PartialResult(), true, v.config.Language)
}

// FinalResult flushes the recognizer and returns what it heard
func (v *Engine) FinalResult() (*stt.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil, fmt.Errorf("engine not initialized")
	}

	return stt.DecodeVoskResult(v.recognizer.FinalResult(), false, v.config.Language)
}

// Reset discards any buffered audio
func (v *Engine) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return fmt.Errorf("engine not initialized")
	}

	v.recognizer.Reset()
	return nil
}

// Close releases resources
func (v *Engine) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil
	}

	if v.recognizer != nil {
		v.recognizer.Free()
		v.recognizer = nil
	}
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}

	v.initialized = false
	return nil
}

// IsInitialized returns true if the engine is initialized
func (v *Engine) IsInitialized() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.initialized
}
