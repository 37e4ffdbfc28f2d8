package app

import (
	"fmt"
	"sync"

	"github.com/emmett/voxtask/internal/output"
)

// ConsoleSink renders events on a terminal and, optionally, logs commands
// through a formatter
type ConsoleSink struct {
	console   *output.ConsoleOutput
	formatter output.Formatter
	meter     bool

	mu    sync.Mutex
	count int
}

// NewConsoleSink creates a sink. formatter may be nil; meter draws the
// activity level bar.
func NewConsoleSink(console *output.ConsoleOutput, formatter output.Formatter, meter bool) *ConsoleSink {
	return &ConsoleSink{console: console, formatter: formatter, meter: meter}
}

// Publish implements EventSink
func (c *ConsoleSink) Publish(ev Event) {
	switch ev.Type {
	case EventStatus:
		s := ev.Status
		if s.Partial != "" && s.State == "listening" {
			c.console.WritePartial(s.Partial)
			return
		}
		c.console.Status(s.Message)

	case EventActivity:
		if c.meter {
			c.console.WriteAudioLevel(ev.Activity.Level, ev.Activity.VoiceDetected)
		}

	case EventCommand:
		r := ev.Command
		c.console.Clear()
		c.console.WriteTranscript(r.Transcript, r.Confidence)
		if r.Rejected() {
			c.console.Error(r.Message)
		} else {
			c.console.Info(r.Message)
		}
		if c.formatter != nil {
			c.mu.Lock()
			c.count++
			n := c.count
			c.mu.Unlock()
			_ = c.formatter.WriteRecord(r.Record(n))
		}

	case EventFailure:
		f := ev.Failure
		c.console.Clear()
		c.console.Error(f.Message)
		if c.formatter != nil {
			_ = c.formatter.WriteEvent("session_failed", fmt.Sprintf("%s: %s", f.Kind, f.Message))
		}

	case EventSettings:
		s := ev.Settings
		c.console.Info(fmt.Sprintf("Settings: language=%s sensitivity=%.2f continuous=%t adaptive=%t",
			s.Language, s.Sensitivity, s.ContinuousMode, s.AdaptiveThreshold))
	}
}
