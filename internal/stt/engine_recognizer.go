package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/emmett/voxtask/internal/audio"
)

// EngineRecognizerConfig configures an EngineRecognizer
type EngineRecognizerConfig struct {
	// NoSpeechTimeout ends an attempt with no-speech if no voice was heard
	NoSpeechTimeout time.Duration

	// VAD decides when an utterance has ended
	VAD audio.VADConfig
}

// DefaultEngineRecognizerConfig returns the defaults used by the CLI
func DefaultEngineRecognizerConfig() EngineRecognizerConfig {
	return EngineRecognizerConfig{
		NoSpeechTimeout: 5 * time.Second,
		VAD:             audio.DefaultVADConfig(),
	}
}

// EngineRecognizer drives a streaming Engine from a PCMSource and reports
// the outcome as recognizer events.
type EngineRecognizer struct {
	engine Engine
	source PCMSource
	config EngineRecognizerConfig
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngineRecognizer creates a recognizer over an initialized engine
func NewEngineRecognizer(engine Engine, source PCMSource, config EngineRecognizerConfig, logger zerolog.Logger) *EngineRecognizer {
	if config.NoSpeechTimeout <= 0 {
		config.NoSpeechTimeout = 5 * time.Second
	}
	return &EngineRecognizer{
		engine: engine,
		source: source,
		config: config,
		logger: logger.With().Str("component", "recognizer").Logger(),
	}
}

// Listen starts one recognition attempt
func (r *EngineRecognizer) Listen(ctx context.Context, opts ListenOptions) (<-chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return nil, ErrRecognizerBusy
	}
	if !r.engine.IsInitialized() {
		return nil, fmt.Errorf("%s: engine not initialized", ErrorServiceUnavailable)
	}

	pcm, unsubscribe, err := r.source.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrAudioUnavailable, err)
	}

	if err := r.engine.Reset(); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("failed to reset engine: %w", err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 16)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go r.run(listenCtx, opts, pcm, unsubscribe, events, done)
	return events, nil
}

// Stop aborts the current attempt and waits for it to wind down
func (r *EngineRecognizer) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (r *EngineRecognizer) run(ctx context.Context, opts ListenOptions, pcm <-chan []byte, unsubscribe func(), events chan<- Event, done chan struct{}) {
	defer close(done)
	defer func() {
		r.mu.Lock()
		r.cancel()
		r.cancel = nil
		r.done = nil
		r.mu.Unlock()
	}()
	defer close(events)
	defer unsubscribe()

	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	defer emit(Event{Type: EventEnd})

	emit(Event{Type: EventStart})

	vad := audio.NewVAD(r.config.VAD)
	noSpeech := time.NewTimer(r.config.NoSpeechTimeout)
	defer noSpeech.Stop()

	var lastPartial string
	for {
		select {
		case <-ctx.Done():
			return

		case <-noSpeech.C:
			if !vad.HeardSpeech() {
				emit(Event{Type: EventError, ErrorKind: ErrorNoSpeech})
				return
			}

		case chunk, ok := <-pcm:
			if !ok {
				// audio source went away; report whatever was heard
				r.finish(emit, opts)
				return
			}

			ev := vad.Process(chunk)

			result, err := r.engine.ProcessAudio(ctx, chunk)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				emit(Event{Type: EventError, ErrorKind: ErrorUnknown, Err: err})
				return
			}

			if result.Partial {
				if opts.InterimResults && result.Text != "" && result.Text != lastPartial {
					lastPartial = result.Text
					emit(Event{Type: EventResult, Result: *result})
				}
			} else if result.Text != "" {
				emit(Event{Type: EventResult, Result: *result.LimitAlternatives(opts.MaxAlternatives)})
				return
			}

			if ev == audio.VADSpeechEnd {
				r.finish(emit, opts)
				return
			}
		}
	}
}

// finish flushes the engine and emits a final result, or no-speech when
// nothing was recognized.
func (r *EngineRecognizer) finish(emit func(Event), opts ListenOptions) {
	result, err := r.engine.FinalResult()
	if err != nil {
		emit(Event{Type: EventError, ErrorKind: ErrorUnknown, Err: err})
		return
	}
	if result.Text == "" {
		emit(Event{Type: EventError, ErrorKind: ErrorNoSpeech})
		return
	}
	emit(Event{Type: EventResult, Result: *result.LimitAlternatives(opts.MaxAlternatives)})
}
