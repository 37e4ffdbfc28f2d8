package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Player plays mono S16 PCM
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// MalgoPlayer plays audio through the default playback device. One clip
// plays at a time; concurrent calls wait their turn.
type MalgoPlayer struct {
	mu sync.Mutex
}

// NewMalgoPlayer creates a new playback helper
func NewMalgoPlayer() *MalgoPlayer {
	return &MalgoPlayer{}
}

// Play blocks until the clip finished or ctx is cancelled
func (p *MalgoPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer releaseContext(malgoCtx)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)

	var (
		pos      int
		finished = make(chan struct{})
		once     sync.Once
	)
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			n := copy(output, pcm[pos:])
			pos += n
			for i := n; i < len(output); i++ {
				output[i] = 0
			}
			if pos >= len(pcm) {
				once.Do(func() { close(finished) })
			}
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	select {
	case <-finished:
	case <-ctx.Done():
	}

	if err := device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}
	return ctx.Err()
}
