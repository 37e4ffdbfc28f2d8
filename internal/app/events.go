package app

import (
	"time"

	"github.com/emmett/voxtask/internal/audio"
	"github.com/emmett/voxtask/internal/command"
	"github.com/emmett/voxtask/internal/output"
	"github.com/emmett/voxtask/internal/session"
	"github.com/emmett/voxtask/internal/tasks"
)

// EventType names what an Event carries
type EventType string

const (
	EventStatus   EventType = "status"
	EventActivity EventType = "activity"
	EventCommand  EventType = "command"
	EventFailure  EventType = "failure"
	EventSettings EventType = "settings"
)

// Event is published to every sink. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Status    *StatusView    `json:"status,omitempty"`
	Activity  *ActivityView  `json:"activity,omitempty"`
	Command   *CommandReport `json:"command,omitempty"`
	Failure   *FailureView   `json:"failure,omitempty"`
	Settings  *Settings      `json:"settings,omitempty"`
}

// EventSink receives application events. Publish must not block.
type EventSink interface {
	Publish(ev Event)
}

// StatusView is a session status line
type StatusView struct {
	SessionID  string `json:"session_id,omitempty"`
	State      string `json:"state"`
	Message    string `json:"message"`
	Partial    string `json:"partial,omitempty"`
	RetryCount int    `json:"retry_count"`
}

func statusView(s session.Status) *StatusView {
	return &StatusView{
		SessionID:  s.SessionID,
		State:      s.State.String(),
		Message:    s.Message,
		Partial:    s.Partial,
		RetryCount: s.RetryCount,
	}
}

// ActivityView is one microphone activity reading
type ActivityView struct {
	Level             float64 `json:"level"`
	VoiceDetected     bool    `json:"voice_detected"`
	DominantFrequency float64 `json:"dominant_frequency"`
	Confidence        float64 `json:"confidence"`
}

func activityView(s audio.ActivitySample) *ActivityView {
	return &ActivityView{
		Level:             s.Level,
		VoiceDetected:     s.VoiceDetected,
		DominantFrequency: s.DominantFrequency,
		Confidence:        s.Confidence,
	}
}

// FailureView describes a failed session
type FailureView struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retries   int    `json:"retries"`
}

// TaskView is a task as shown to clients. Number is the 1-based position
// among active tasks, the index spoken commands use; zero for completed.
type TaskView struct {
	Number    int    `json:"number,omitempty"`
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Priority  string `json:"priority"`
	Category  string `json:"category,omitempty"`
}

// TaskViews numbers active tasks in list order
func TaskViews(list []tasks.Task) []TaskView {
	views := make([]TaskView, 0, len(list))
	n := 0
	for _, t := range list {
		v := taskView(t)
		if !t.Completed {
			n++
			v.Number = n
		}
		views = append(views, v)
	}
	return views
}

func taskView(t tasks.Task) TaskView {
	return TaskView{
		ID:        t.ID,
		Text:      t.Text,
		Completed: t.Completed,
		Priority:  t.Priority.String(),
		Category:  t.Category,
	}
}

// OutcomeRejected marks a transcript dropped for low confidence
const OutcomeRejected = "rejected"

// CommandReport describes one handled transcript
type CommandReport struct {
	SessionID  string    `json:"session_id,omitempty"`
	Transcript string    `json:"transcript"`
	Confidence float64   `json:"confidence"`
	Intent     string    `json:"intent"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message"`
	Task       *TaskView `json:"task,omitempty"`
	Removed    int       `json:"removed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Rejected reports whether the transcript was dropped before interpretation
func (r CommandReport) Rejected() bool {
	return r.Outcome == OutcomeRejected
}

func newReport(sessionID, transcript string, conf float64, res command.Result, now time.Time) CommandReport {
	r := CommandReport{
		SessionID:  sessionID,
		Transcript: transcript,
		Confidence: conf,
		Intent:     res.Command.Intent.String(),
		Outcome:    res.Outcome.String(),
		Message:    res.Message,
		Removed:    res.Removed,
		Timestamp:  now,
	}
	if res.Task != nil {
		v := taskView(*res.Task)
		r.Task = &v
	}
	return r
}

// Record converts the report for an output.Formatter
func (r CommandReport) Record(index int) output.CommandRecord {
	return output.CommandRecord{
		Index:      index,
		SessionID:  r.SessionID,
		Transcript: r.Transcript,
		Confidence: r.Confidence,
		Intent:     r.Intent,
		Outcome:    r.Outcome,
		Message:    r.Message,
		Timestamp:  r.Timestamp,
	}
}
