// Package command turns transcripts into task commands and applies them.
package command

import (
	"fmt"

	"github.com/emmett/voxtask/internal/tasks"
)

// Intent is the command family a transcript maps to
type Intent int

const (
	IntentUnknown Intent = iota
	IntentAdd
	IntentComplete
	IntentDelete
	IntentClear
)

func (i Intent) String() string {
	switch i {
	case IntentAdd:
		return "add"
	case IntentComplete:
		return "complete"
	case IntentDelete:
		return "delete"
	case IntentClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Command is a parsed voice command.
//
// Text is the cleaned task title for Add and the echoed transcript for
// Unknown. Complete and Delete carry either Index (0-based over active
// tasks) or Target (free text to match).
type Command struct {
	Intent   Intent
	Raw      string
	Text     string
	Priority *tasks.Priority
	Category string
	Index    *int
	Target   string
}

// PriorityOrLow returns the extracted priority, defaulting to low
func (c Command) PriorityOrLow() tasks.Priority {
	if c.Priority == nil {
		return tasks.PriorityLow
	}
	return *c.Priority
}

func (c Command) String() string {
	switch c.Intent {
	case IntentAdd:
		s := fmt.Sprintf("add{text:%q priority:%s", c.Text, c.PriorityOrLow())
		if c.Category != "" {
			s += fmt.Sprintf(" category:%s", c.Category)
		}
		return s + "}"
	case IntentComplete, IntentDelete:
		if c.Index != nil {
			return fmt.Sprintf("%s{index:%d}", c.Intent, *c.Index)
		}
		return fmt.Sprintf("%s{target:%q}", c.Intent, c.Target)
	case IntentClear:
		return "clear{}"
	default:
		return fmt.Sprintf("unknown{text:%q}", c.Text)
	}
}
