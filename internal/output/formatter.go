package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// CommandRecord describes one heard and executed voice command
type CommandRecord struct {
	Index      int       `json:"index"`
	SessionID  string    `json:"session_id,omitempty"`
	Transcript string    `json:"transcript"`
	Confidence float64   `json:"confidence"`
	Intent     string    `json:"intent"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Event represents a system event
type Event struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Formatter is the interface for command log formatters
type Formatter interface {
	// WriteRecord writes an executed command
	WriteRecord(record CommandRecord) error

	// WriteEvent writes a system event (e.g. session failures)
	WriteEvent(eventType, message string) error

	// Close flushes and releases resources
	Close() error
}

// NewFormatter returns the formatter for "json" or "text"
func NewFormatter(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "json":
		return NewJSONFormatter(w), nil
	case "text", "":
		return NewPlainTextFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// JSONFormatter writes one JSON object per line
type JSONFormatter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	records []CommandRecord
	now     func() time.Time
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(writer io.Writer) *JSONFormatter {
	return &JSONFormatter{
		encoder: json.NewEncoder(writer),
		now:     time.Now,
	}
}

// WriteRecord writes a command record in JSON format
func (j *JSONFormatter) WriteRecord(record CommandRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.records = append(j.records, record)
	return j.encoder.Encode(record)
}

// WriteEvent writes a system event
func (j *JSONFormatter) WriteEvent(eventType, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.encoder.Encode(Event{Type: eventType, Message: message, Timestamp: j.now()})
}

// Close closes the formatter
func (j *JSONFormatter) Close() error {
	return nil
}

// Records returns every record written so far
func (j *JSONFormatter) Records() []CommandRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]CommandRecord(nil), j.records...)
}

// PlainTextFormatter writes human-readable lines
type PlainTextFormatter struct {
	mu     sync.Mutex
	writer io.Writer
	now    func() time.Time
}

// NewPlainTextFormatter creates a new plain text formatter
func NewPlainTextFormatter(writer io.Writer) *PlainTextFormatter {
	return &PlainTextFormatter{writer: writer, now: time.Now}
}

// WriteRecord writes a command record in plain text
func (p *PlainTextFormatter) WriteRecord(r CommandRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := fmt.Fprintf(p.writer, "[%s] %q (%.2f) -> %s: %s\n",
		r.Timestamp.Format("15:04:05"), r.Transcript, r.Confidence, r.Intent, r.Outcome)
	return err
}

// WriteEvent writes a system event
func (p *PlainTextFormatter) WriteEvent(eventType, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := fmt.Fprintf(p.writer, "[%s] [%s] %s\n", p.now().Format("15:04:05"), eventType, message)
	return err
}

// Close closes the formatter
func (p *PlainTextFormatter) Close() error {
	return nil
}
