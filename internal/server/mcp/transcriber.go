package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/emmett/voxtask/internal/audio"
	"github.com/emmett/voxtask/internal/stt"
)

// frameSize is 30ms of 16 kHz mono S16 PCM
const frameSize = 480 * 2

// EngineFactory returns an initialized recognition engine
type EngineFactory func() (stt.Engine, error)

// Transcriber recognizes one spoken command from a PCM buffer
type Transcriber struct {
	newEngine EngineFactory
	vadConfig audio.VADConfig
	mu        sync.Mutex
}

// NewTranscriber creates a transcriber. Each call gets a fresh engine from
// factory.
func NewTranscriber(factory EngineFactory, vadConfig audio.VADConfig) *Transcriber {
	return &Transcriber{newEngine: factory, vadConfig: vadConfig}
}

// Transcribe recognizes 16 kHz mono 16-bit PCM. Leading silence is skipped
// and the utterance ends at the first pause after speech. The result has
// empty Text when nothing was recognized.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	engine, err := t.newEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize STT engine: %w", err)
	}
	defer engine.Close()

	vad := audio.NewVAD(t.vadConfig)
	var (
		best *stt.Result
		// voiced frames the detector has not yet confirmed as speech
		pending [][]byte
	)

	for offset := 0; offset < len(pcm); offset += frameSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := offset + frameSize
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := pcm[offset:end]
		if len(chunk) < frameSize {
			padded := make([]byte, frameSize)
			copy(padded, chunk)
			chunk = padded
		}

		level := audio.RMSLevel(chunk)
		ev := vad.ProcessLevel(level)
		if !vad.HeardSpeech() {
			if level > t.vadConfig.EnergyThreshold {
				pending = append(pending, chunk)
			} else {
				pending = pending[:0]
			}
			continue
		}

		if ev == audio.VADSpeechStart {
			for _, frame := range pending {
				if err := feed(ctx, engine, frame, &best); err != nil {
					return nil, err
				}
			}
			pending = nil
		}
		if err := feed(ctx, engine, chunk, &best); err != nil {
			return nil, err
		}
		if ev == audio.VADSpeechEnd {
			break
		}
	}

	if best == nil {
		final, err := engine.FinalResult()
		if err != nil {
			return nil, fmt.Errorf("failed to get final result: %w", err)
		}
		best = final
	}
	if best == nil {
		best = &stt.Result{}
	}
	return best, nil
}

// feed sends one frame to the engine and keeps the latest non-empty final
func feed(ctx context.Context, engine stt.Engine, chunk []byte, best **stt.Result) error {
	result, err := engine.ProcessAudio(ctx, chunk)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	if result != nil && result.IsFinal() && result.Text != "" {
		*best = result
	}
	return nil
}
