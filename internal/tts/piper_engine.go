package tts

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const chunkSize = 4096

// PiperEngine implements the Engine interface by running the piper binary
// with raw PCM output on stdout
type PiperEngine struct {
	config      Config
	mu          sync.Mutex
	initialized bool
}

// NewPiperEngine creates a new Piper TTS engine
func NewPiperEngine() *PiperEngine {
	return &PiperEngine{}
}

// Initialize resolves the binary and reads the voice sample rate
func (p *PiperEngine) Initialize(config Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("engine already initialized")
	}

	if config.Binary == "" {
		config.Binary = "piper"
	}
	bin, err := exec.LookPath(config.Binary)
	if err != nil {
		return fmt.Errorf("failed to find piper binary: %w", err)
	}
	config.Binary = bin

	if config.ModelPath != "" {
		if _, err := os.Stat(config.ModelPath); err != nil {
			return fmt.Errorf("failed to find voice model: %w", err)
		}
		if rate, err := voiceSampleRate(config.ModelPath + ".json"); err == nil && rate > 0 {
			config.SampleRate = rate
		}
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 22050
	}

	p.config = config
	p.initialized = true
	return nil
}

// Synthesize pipes text through piper and streams the PCM it produces
func (p *PiperEngine) Synthesize(ctx context.Context, req SynthesizeRequest, callback AudioCallback) error {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return fmt.Errorf("engine not initialized")
	}
	config := p.config
	p.mu.Unlock()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, config.Binary, piperArgs(config, req.Rate)...)
	cmd.Stdin = strings.NewReader(text + "\n")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open piper output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start piper: %w", err)
	}

	r := bufio.NewReaderSize(stdout, chunkSize)
	buf := make([]byte, chunkSize)
	var cbErr error
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 && cbErr == nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			cbErr = callback(AudioChunk{Data: data, SampleRate: config.SampleRate})
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			cbErr = errors.Join(cbErr, fmt.Errorf("failed to read piper output: %w", err))
			break
		}
	}

	if err := cmd.Wait(); err != nil && cbErr == nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("piper failed: %w", err)
	}
	return cbErr
}

// Close releases resources
func (p *PiperEngine) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = false
	return nil
}

// IsInitialized returns true if engine is ready
func (p *PiperEngine) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// SampleRate reports the rate of synthesized chunks
func (p *PiperEngine) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config.SampleRate
}

func piperArgs(config Config, rate float64) []string {
	args := []string{"--output_raw"}
	if config.ModelPath != "" {
		args = append(args, "--model", config.ModelPath)
	}
	if rate > 0 && rate != 1 {
		// piper slows speech with a larger length scale
		args = append(args, "--length_scale", strconv.FormatFloat(1/rate, 'f', 3, 64))
	}
	return args
}

func voiceSampleRate(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var meta struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, fmt.Errorf("failed to parse voice config: %w", err)
	}
	return meta.Audio.SampleRate, nil
}
