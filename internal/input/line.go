package input

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// LineTrigger fires once per line read, for terminals where a global
// hotkey cannot be registered (press Enter to talk)
type LineTrigger struct {
	r    io.Reader
	once sync.Once
	stop chan struct{}
}

// NewLineTrigger reads lines from r
func NewLineTrigger(r io.Reader) *LineTrigger {
	return &LineTrigger{r: r, stop: make(chan struct{})}
}

// Start reads lines in the background until EOF, ctx cancellation or Stop
func (l *LineTrigger) Start(ctx context.Context, onPress func()) error {
	go func() {
		scanner := bufio.NewScanner(l.r)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			default:
			}
			if onPress != nil {
				onPress()
			}
		}
	}()
	return nil
}

// Stop ignores further lines
func (l *LineTrigger) Stop() {
	l.once.Do(func() { close(l.stop) })
}
