package audio

import (
	"encoding/binary"
	"math"
)

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	// EnergyThreshold is the minimum RMS level to consider as speech
	// Typical values: 0.001 to 0.1 (lower = more sensitive)
	EnergyThreshold float64

	// SilenceFrames of quiet end an utterance
	// At 16kHz with 30ms frames: 33 frames = ~1s of silence
	SilenceFrames int

	// SpeechFrames of voice in a row start one
	// At 16kHz with 30ms frames: 3 frames = 90ms of speech
	SpeechFrames int
}

// DefaultVADConfig ends an utterance after about a second of silence
func DefaultVADConfig() VADConfig {
	return VADConfig{
		EnergyThreshold: VoiceFloor,
		SilenceFrames:   33,
		SpeechFrames:    3,
	}
}

// VADEvent is the detector's reading of one frame
type VADEvent int

const (
	// VADSilence: no utterance in progress
	VADSilence VADEvent = iota
	// VADSpeechStart: this frame completed SpeechFrames of voice
	VADSpeechStart
	// VADSpeech: an utterance is in progress
	VADSpeech
	// VADSpeechEnd: this frame completed SilenceFrames after speech
	VADSpeechEnd
)

// VAD segments a stream of PCM frames into utterances. It is not safe
// for concurrent use.
type VAD struct {
	config   VADConfig
	voiced   int
	quiet    int
	inSpeech bool
	heard    bool
}

// NewVAD creates a detector
func NewVAD(config VADConfig) *VAD {
	if config.SpeechFrames < 1 {
		config.SpeechFrames = 1
	}
	if config.SilenceFrames < 1 {
		config.SilenceFrames = 1
	}
	return &VAD{config: config}
}

// Process classifies one S16LE frame
func (v *VAD) Process(frame []byte) VADEvent {
	return v.ProcessLevel(RMSLevel(frame))
}

// ProcessLevel classifies a frame by its precomputed RMS level
func (v *VAD) ProcessLevel(level float64) VADEvent {
	if level > v.config.EnergyThreshold {
		v.voiced++
		v.quiet = 0
		if v.inSpeech {
			return VADSpeech
		}
		if v.voiced >= v.config.SpeechFrames {
			v.inSpeech = true
			v.heard = true
			return VADSpeechStart
		}
		return VADSilence
	}

	v.quiet++
	v.voiced = 0
	if !v.inSpeech {
		return VADSilence
	}
	if v.quiet >= v.config.SilenceFrames {
		v.inSpeech = false
		return VADSpeechEnd
	}
	return VADSpeech
}

// Speaking reports whether an utterance is in progress
func (v *VAD) Speaking() bool {
	return v.inSpeech
}

// HeardSpeech reports whether any utterance started since the last Reset
func (v *VAD) HeardSpeech() bool {
	return v.heard
}

// Reset forgets all state
func (v *VAD) Reset() {
	*v = VAD{config: v.config}
}

// RMSLevel is the RMS of an S16LE buffer normalized to 0.0..1.0
func RMSLevel(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
