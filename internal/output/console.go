package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/emmett/voxtask/internal/tasks"
)

// ConsoleOutput writes status lines, the level meter and task lists
type ConsoleOutput struct {
	mu            sync.Mutex
	writer        io.Writer
	errWriter     io.Writer
	showTimestamp bool
	showMetadata  bool
	now           func() time.Time
}

// ConsoleConfig configures console output behavior
type ConsoleConfig struct {
	// ShowTimestamp prefixes each line with a timestamp
	ShowTimestamp bool

	// ShowMetadata displays additional metadata (confidence, etc.)
	ShowMetadata bool

	// Writer is the output destination (default: os.Stdout)
	Writer io.Writer

	// ErrWriter receives error lines (default: os.Stderr)
	ErrWriter io.Writer
}

// NewConsoleOutput creates a new console output handler
func NewConsoleOutput(config ConsoleConfig) *ConsoleOutput {
	writer := config.Writer
	if writer == nil {
		writer = os.Stdout
	}
	errWriter := config.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}

	return &ConsoleOutput{
		writer:        writer,
		errWriter:     errWriter,
		showTimestamp: config.ShowTimestamp,
		showMetadata:  config.ShowMetadata,
		now:           time.Now,
	}
}

// DefaultConsoleOutput creates a console output with default settings
func DefaultConsoleOutput() *ConsoleOutput {
	return NewConsoleOutput(ConsoleConfig{ShowTimestamp: true})
}

// WriteTranscript writes a heard transcript
func (c *ConsoleOutput) WriteTranscript(text string, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metadata := ""
	if c.showMetadata {
		metadata = fmt.Sprintf(" (confidence: %.2f)", confidence)
	}
	fmt.Fprintf(c.writer, "\r%s%q%s\n", c.prefix(), text, metadata)
}

// WritePartial writes a partial transcript over the current line
func (c *ConsoleOutput) WritePartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, "\r... %s", text)
}

// WriteAudioLevel draws a level meter over the current line
func (c *ConsoleOutput) WriteAudioLevel(level float64, voice bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	barLength := int(level * 50)
	if barLength > 50 {
		barLength = 50
	}
	if barLength < 0 {
		barLength = 0
	}

	marker := " "
	if voice {
		marker = "*"
	}
	fmt.Fprintf(c.writer, "\r%s Level: [%-50s] %.1f%%", marker, strings.Repeat("=", barLength), level*100)
}

// WriteTasks prints the task list with 1-based numbers for active tasks,
// matching how they are referred to by voice
func (c *ConsoleOutput) WriteTasks(list []tasks.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(list) == 0 {
		fmt.Fprintln(c.writer, "No tasks.")
		return
	}

	n := 0
	for _, t := range list {
		num := "  "
		box := "[x]"
		if !t.Completed {
			n++
			num = fmt.Sprintf("%2d", n)
			box = "[ ]"
		}

		line := fmt.Sprintf("%s. %s %s", num, box, t.Text)
		if t.Priority != tasks.PriorityLow {
			line += fmt.Sprintf(" !%s", t.Priority)
		}
		if t.Category != "" {
			line += fmt.Sprintf(" #%s", t.Category)
		}
		fmt.Fprintln(c.writer, line)
	}
}

// Clear clears the current line
func (c *ConsoleOutput) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, "\r%80s\r", " ")
}

// Info writes an informational message
func (c *ConsoleOutput) Info(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, "%s[INFO] %s\n", c.prefix(), msg)
}

// Error writes an error message
func (c *ConsoleOutput) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.errWriter, "%s[ERROR] %s\n", c.prefix(), msg)
}

// Status writes a status message (typically overwritten)
func (c *ConsoleOutput) Status(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, "\r[*] %-60s", msg)
}

func (c *ConsoleOutput) prefix() string {
	if !c.showTimestamp {
		return ""
	}
	return fmt.Sprintf("[%s] ", c.now().Format("15:04:05"))
}
