package mcp

import (
	"context"

	"github.com/emmett/voxtask/internal/app"
	"github.com/emmett/voxtask/internal/confidence"
	"github.com/emmett/voxtask/internal/tasks"
)

// Backend is what the tools act on; *app.VoiceApp satisfies it
type Backend interface {
	HandleTranscript(ctx context.Context, text string, conf float64) (app.CommandReport, error)
	Tasks(ctx context.Context) ([]tasks.Task, error)
	Stats() confidence.Analytics
}

// RunCommandArgs are the run_voice_command arguments
type RunCommandArgs struct {
	Text       string   `json:"text" jsonschema:"the command as spoken such as 'add buy milk with high priority'"`
	Confidence *float64 `json:"confidence,omitempty" jsonschema:"recognition confidence between 0 and 1; defaults to 1"`
}

// ListTasksArgs are the list_tasks arguments
type ListTasksArgs struct {
	IncludeCompleted bool `json:"include_completed,omitempty" jsonschema:"also list completed tasks"`
}

// StatsArgs are the recognition_stats arguments
type StatsArgs struct{}

// TranscribeArgs are the transcribe_command arguments
type TranscribeArgs struct {
	Audio   string `json:"audio" jsonschema:"base64-encoded 16 kHz mono 16-bit PCM"`
	Execute bool   `json:"execute,omitempty" jsonschema:"run the recognized command against the task list"`
}

// ListModelsArgs are the list_models arguments
type ListModelsArgs struct{}

// TranscribeResult is returned by transcribe_command
type TranscribeResult struct {
	Text       string             `json:"text"`
	Confidence float64            `json:"confidence"`
	Command    *app.CommandReport `json:"command,omitempty"`
}

// StatsResult is returned by recognition_stats
type StatsResult struct {
	TotalAttempts          int     `json:"total_attempts"`
	SuccessfulRecognitions int     `json:"successful_recognitions"`
	AverageConfidence      float64 `json:"average_confidence"`
	ErrorRate              float64 `json:"error_rate"`
	LastErrorKind          string  `json:"last_error_kind,omitempty"`
	Threshold              float64 `json:"threshold"`
	Adaptive               bool    `json:"adaptive"`
}

func statsResult(a confidence.Analytics) StatsResult {
	return StatsResult{
		TotalAttempts:          a.TotalAttempts,
		SuccessfulRecognitions: a.SuccessfulRecognitions,
		AverageConfidence:      a.AverageConfidence,
		ErrorRate:              a.ErrorRate,
		LastErrorKind:          a.LastErrorKind,
		Threshold:              a.Threshold,
		Adaptive:               a.Adaptive,
	}
}
