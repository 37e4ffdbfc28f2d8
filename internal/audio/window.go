package audio

import "sync"

// SampleWindow is a fixed-size circular window over the most recent
// normalized PCM samples. Writes overwrite the oldest samples, so the
// window always describes the latest Size() samples of the stream.
type SampleWindow struct {
	mu       sync.RWMutex
	buffer   []float64
	size     int
	writePos int
	full     bool
}

// NewSampleWindow creates a window holding size samples
func NewSampleWindow(size int) *SampleWindow {
	return &SampleWindow{
		buffer: make([]float64, size),
		size:   size,
	}
}

// WritePCM appends little-endian S16 PCM, normalized to -1.0..1.0
func (w *SampleWindow) WritePCM(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		w.buffer[w.writePos] = float64(sample) / 32768.0
		w.writePos = (w.writePos + 1) % w.size
		if w.writePos == 0 {
			w.full = true
		}
	}
}

// Snapshot copies the window into dst in chronological order and returns
// the number of valid samples. dst must hold at least Size() values; slots
// not yet written are zero.
func (w *SampleWindow) Snapshot(dst []float64) int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.full {
		n := copy(dst, make([]float64, w.size-w.writePos))
		copy(dst[n:], w.buffer[:w.writePos])
		return w.writePos
	}
	n := copy(dst, w.buffer[w.writePos:])
	copy(dst[n:], w.buffer[:w.writePos])
	return w.size
}

// Reset zeroes the window
func (w *SampleWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.buffer {
		w.buffer[i] = 0
	}
	w.writePos = 0
	w.full = false
}

// Size returns the window length in samples
func (w *SampleWindow) Size() int {
	return w.size
}
