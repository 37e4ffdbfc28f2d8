package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/emmett/voxtask/internal/tasks"
	"github.com/emmett/voxtask/internal/tts"
)

// Outcome is what executing a command did to the task list
type Outcome int

const (
	OutcomeNotUnderstood Outcome = iota
	OutcomeCreated
	OutcomeCompleted
	OutcomeDeleted
	OutcomeCleared
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeCompleted:
		return "completed"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeCleared:
		return "cleared"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "not_understood"
	}
}

// Mutated reports whether the outcome changed the task list
func (o Outcome) Mutated() bool {
	switch o {
	case OutcomeCreated, OutcomeCompleted, OutcomeDeleted, OutcomeCleared:
		return true
	}
	return false
}

// Result describes an executed command
type Result struct {
	Command Command
	Outcome Outcome
	// Task is the task created, completed or deleted
	Task *tasks.Task
	// Removed counts tasks dropped by a clear
	Removed int
	// Message is the spoken confirmation
	Message string
}

const (
	msgNotFound      = "Task not found"
	msgNotUnderstood = "Sorry, I didn't understand"
	msgFailed        = "Sorry, something went wrong"
)

// Executor applies commands to a task store and speaks a confirmation for
// each one
type Executor struct {
	store   tasks.Store
	speaker tts.Speaker
	rate    float64
	logger  zerolog.Logger
}

// NewExecutor creates an executor. A zero rate speaks at the default rate.
func NewExecutor(store tasks.Store, speaker tts.Speaker, rate float64, logger zerolog.Logger) *Executor {
	if rate <= 0 {
		rate = tts.DefaultRate
	}
	return &Executor{store: store, speaker: speaker, rate: rate, logger: logger}
}

// Execute resolves cmd against the store and performs it. A command that
// names no existing task yields OutcomeNotFound, not an error; errors are
// store failures only.
func (e *Executor) Execute(ctx context.Context, cmd Command) (Result, error) {
	res, err := e.execute(ctx, cmd)
	if err != nil {
		e.logger.Error().Err(err).Str("intent", cmd.Intent.String()).Msg("command failed")
		e.say(msgFailed)
		return Result{Command: cmd, Message: msgFailed}, err
	}

	e.logger.Info().
		Str("intent", cmd.Intent.String()).
		Str("outcome", res.Outcome.String()).
		Str("raw", cmd.Raw).
		Msg("command executed")
	e.say(res.Message)
	return res, nil
}

func (e *Executor) execute(ctx context.Context, cmd Command) (Result, error) {
	res := Result{Command: cmd}

	switch cmd.Intent {
	case IntentAdd:
		t, err := e.store.Create(ctx, cmd.Text, cmd.PriorityOrLow(), cmd.Category)
		if err != nil {
			return res, fmt.Errorf("failed to create task: %w", err)
		}
		res.Outcome = OutcomeCreated
		res.Task = &t
		res.Message = addedMessage(t)

	case IntentComplete:
		t, found, err := e.resolve(ctx, cmd, false)
		if err != nil {
			return res, err
		}
		if !found {
			return notFound(res), nil
		}
		done, err := e.store.ToggleComplete(ctx, t.ID)
		if err != nil {
			return res, fmt.Errorf("failed to complete task: %w", err)
		}
		res.Outcome = OutcomeCompleted
		res.Task = &done
		res.Message = fmt.Sprintf("Marked %s as complete", done.Text)

	case IntentDelete:
		t, found, err := e.resolve(ctx, cmd, true)
		if err != nil {
			return res, err
		}
		if !found {
			return notFound(res), nil
		}
		if err := e.store.Delete(ctx, t.ID); err != nil {
			return res, fmt.Errorf("failed to delete task: %w", err)
		}
		res.Outcome = OutcomeDeleted
		res.Task = &t
		res.Message = fmt.Sprintf("Deleted %s", t.Text)

	case IntentClear:
		n, err := e.store.ClearAll(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to clear tasks: %w", err)
		}
		res.Outcome = OutcomeCleared
		res.Removed = n
		res.Message = "Cleared all tasks"

	default:
		res.Outcome = OutcomeNotUnderstood
		res.Message = msgNotUnderstood
	}

	return res, nil
}

// resolve finds the task a complete/delete command refers to. Indexes
// always count active tasks only; text matches search every task when
// includeDone is set.
func (e *Executor) resolve(ctx context.Context, cmd Command, includeDone bool) (tasks.Task, bool, error) {
	if cmd.Index != nil {
		active, err := e.store.ListActive(ctx)
		if err != nil {
			return tasks.Task{}, false, fmt.Errorf("failed to list tasks: %w", err)
		}
		i := *cmd.Index
		if i < 0 || i >= len(active) {
			return tasks.Task{}, false, nil
		}
		return active[i], true, nil
	}

	target := strings.ToLower(strings.TrimSpace(cmd.Target))
	if target == "" {
		return tasks.Task{}, false, nil
	}

	var (
		candidates []tasks.Task
		err        error
	)
	if includeDone {
		candidates, err = e.store.List(ctx)
	} else {
		candidates, err = e.store.ListActive(ctx)
	}
	if err != nil {
		return tasks.Task{}, false, fmt.Errorf("failed to list tasks: %w", err)
	}

	for _, t := range candidates {
		if strings.Contains(strings.ToLower(t.Text), target) {
			return t, true, nil
		}
	}
	return tasks.Task{}, false, nil
}

func (e *Executor) say(text string) {
	if e.speaker != nil && text != "" {
		e.speaker.Speak(text, e.rate)
	}
}

func notFound(res Result) Result {
	res.Outcome = OutcomeNotFound
	res.Message = msgNotFound
	return res
}

func addedMessage(t tasks.Task) string {
	msg := "Added " + t.Text
	if t.Priority != tasks.PriorityLow {
		msg += fmt.Sprintf(" with %s priority", t.Priority)
	}
	return msg
}
