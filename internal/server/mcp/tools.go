package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/emmett/voxtask/internal/app"
)

func (s *Server) handleRunCommand(ctx context.Context, req *sdk.CallToolRequest, args RunCommandArgs) (*sdk.CallToolResult, any, error) {
	if args.Text == "" {
		return nil, nil, fmt.Errorf("text is required")
	}
	conf := 1.0
	if args.Confidence != nil {
		conf = *args.Confidence
	}

	report, err := s.backend.HandleTranscript(ctx, args.Text, conf)
	if err != nil {
		return nil, nil, fmt.Errorf("command failed: %w", err)
	}
	return jsonResult(report.Message, report)
}

func (s *Server) handleListTasks(ctx context.Context, req *sdk.CallToolRequest, args ListTasksArgs) (*sdk.CallToolResult, any, error) {
	list, err := s.backend.Tasks(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	views := app.TaskViews(list)
	if !args.IncludeCompleted {
		active := views[:0]
		for _, v := range views {
			if !v.Completed {
				active = append(active, v)
			}
		}
		views = active
	}

	summary := fmt.Sprintf("%d task(s)", len(views))
	return jsonResult(summary, map[string]any{"tasks": views})
}

func (s *Server) handleStats(ctx context.Context, req *sdk.CallToolRequest, args StatsArgs) (*sdk.CallToolResult, any, error) {
	stats := statsResult(s.backend.Stats())
	summary := fmt.Sprintf("%d attempts, %.1f%% errors, threshold %.2f",
		stats.TotalAttempts, stats.ErrorRate, stats.Threshold)
	return jsonResult(summary, stats)
}

func (s *Server) handleTranscribe(ctx context.Context, req *sdk.CallToolRequest, args TranscribeArgs) (*sdk.CallToolResult, any, error) {
	pcm, err := base64.StdEncoding.DecodeString(args.Audio)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid base64 audio: %w", err)
	}

	result, err := s.transcriber.Transcribe(ctx, pcm)
	if err != nil {
		return nil, nil, err
	}
	if result.Text == "" {
		return nil, nil, fmt.Errorf("no speech detected")
	}

	out := TranscribeResult{Text: result.Text, Confidence: result.Confidence}
	summary := fmt.Sprintf("Heard %q (confidence %.2f)", result.Text, result.Confidence)
	if args.Execute {
		report, err := s.backend.HandleTranscript(ctx, result.Text, result.Confidence)
		if err != nil {
			return nil, nil, fmt.Errorf("command failed: %w", err)
		}
		out.Command = &report
		summary += ": " + report.Message
	}
	return jsonResult(summary, out)
}

func (s *Server) handleListModels(ctx context.Context, req *sdk.CallToolRequest, args ListModelsArgs) (*sdk.CallToolResult, any, error) {
	downloaded, err := s.models.ListDownloaded()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list models: %w", err)
	}

	content := []sdk.Content{
		&sdk.TextContent{Text: fmt.Sprintf("Downloaded models (%d):", len(downloaded))},
	}
	def := s.models.Default()
	for _, name := range downloaded {
		line := "- " + name
		if name == def {
			line += " [DEFAULT]"
		}
		content = append(content, &sdk.TextContent{Text: line})
	}
	return &sdk.CallToolResult{Content: content}, nil, nil
}

// jsonResult returns a one-line summary followed by v as JSON
func jsonResult(summary string, v any) (*sdk.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{
			&sdk.TextContent{Text: summary},
			&sdk.TextContent{Text: string(data)},
		},
	}, nil, nil
}
