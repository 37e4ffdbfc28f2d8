package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emmett/voxtask/internal/audio"
)

// DefaultRate is the normal speaking rate
const DefaultRate = 1.0

// Speaker gives spoken feedback. Speak returns immediately; nothing waits
// for the utterance to finish.
type Speaker interface {
	Speak(text string, rate float64)
}

// ConsoleSpeaker prints utterances instead of voicing them
type ConsoleSpeaker struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSpeaker writes utterances to w
func NewConsoleSpeaker(w io.Writer) *ConsoleSpeaker {
	return &ConsoleSpeaker{w: w}
}

// Speak prints the text
func (s *ConsoleSpeaker) Speak(text string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[SAY] %s\n", text)
}

type utterance struct {
	text string
	rate float64
}

// EngineSpeaker synthesizes through an Engine and plays the result. Queued
// utterances play in order; when the queue is full new ones are dropped.
type EngineSpeaker struct {
	engine Engine
	player audio.Player
	logger zerolog.Logger

	queue  chan utterance
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewEngineSpeaker starts the playback worker
func NewEngineSpeaker(engine Engine, player audio.Player, logger zerolog.Logger) *EngineSpeaker {
	ctx, cancel := context.WithCancel(context.Background())
	s := &EngineSpeaker{
		engine: engine,
		player: player,
		logger: logger,
		queue:  make(chan utterance, 4),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Speak queues text for synthesis
func (s *EngineSpeaker) Speak(text string, rate float64) {
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.queue <- utterance{text: text, rate: rate}:
	default:
		s.logger.Warn().Str("text", text).Msg("speech queue full, dropping utterance")
	}
}

// Close stops playback and waits for the worker to exit
func (s *EngineSpeaker) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *EngineSpeaker) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case u := <-s.queue:
			if err := s.say(u); err != nil && s.ctx.Err() == nil {
				s.logger.Error().Err(err).Str("text", u.text).Msg("spoken feedback failed")
			}
		}
	}
}

func (s *EngineSpeaker) say(u utterance) error {
	var (
		pcm  bytes.Buffer
		rate int
	)
	err := s.engine.Synthesize(s.ctx, SynthesizeRequest{Text: u.text, Rate: u.rate}, func(chunk AudioChunk) error {
		rate = chunk.SampleRate
		pcm.Write(chunk.Data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to synthesize: %w", err)
	}
	if pcm.Len() == 0 {
		return nil
	}
	return s.player.Play(s.ctx, pcm.Bytes(), rate)
}
