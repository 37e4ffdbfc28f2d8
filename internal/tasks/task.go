// Package tasks holds the task entity and the stores the voice engine
// mutates.
package tasks

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrTaskNotFound is returned when an id does not name a stored task
var ErrTaskNotFound = errors.New("task not found")

// Priority ranks a task
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "low"
	}
}

// ParsePriority converts "low", "medium" or "high"; anything else is low
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Task is one entry on the list
type Task struct {
	ID          int64
	Text        string
	Completed   bool
	CreatedAt   time.Time
	CompletedAt *time.Time
	Priority    Priority
	Category    string
}

// Store is the task persistence boundary. ListActive returns incomplete
// tasks in display order; spoken indexes resolve against it.
type Store interface {
	Create(ctx context.Context, text string, priority Priority, category string) (Task, error)
	ToggleComplete(ctx context.Context, id int64) (Task, error)
	Delete(ctx context.Context, id int64) error
	ClearAll(ctx context.Context) (int, error)
	ListActive(ctx context.Context) ([]Task, error)
	List(ctx context.Context) ([]Task, error)
}
