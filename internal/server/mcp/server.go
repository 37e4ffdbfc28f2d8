// Package mcp exposes the voice task list as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/emmett/voxtask/internal/models"
)

// Config holds server configuration
type Config struct {
	ServerName    string
	ServerVersion string
}

// Server serves the task tools over MCP
type Server struct {
	config      Config
	mcpServer   *sdk.Server
	backend     Backend
	transcriber *Transcriber
	models      *models.Manager
	logger      zerolog.Logger
}

// Options wires the server. Transcriber and Models are optional; their
// tools are only registered when set.
type Options struct {
	Backend     Backend
	Transcriber *Transcriber
	Models      *models.Manager
	Logger      zerolog.Logger
}

// NewServer creates an MCP server with its tools registered
func NewServer(cfg Config, opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "voxtask"
	}

	s := &Server{
		config:      cfg,
		backend:     opts.Backend,
		transcriber: opts.Transcriber,
		models:      opts.Models,
		logger:      opts.Logger.With().Str("component", "mcp").Logger(),
	}

	s.mcpServer = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)

	s.registerTools()
	return s, nil
}

// Start serves on stdin/stdout until ctx is done or the client leaves
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info().Str("transport", "stdio").Msg("MCP server starting")
	return s.mcpServer.Run(ctx, &sdk.StdioTransport{})
}

// Connect serves one session over t
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "run_voice_command",
		Description: "Run a spoken task command (add, complete, delete or clear tasks) as if it had been heard",
	}, s.handleRunCommand)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "list_tasks",
		Description: "List tasks; active tasks are numbered the way voice commands refer to them",
	}, s.handleListTasks)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "recognition_stats",
		Description: "Report speech recognition analytics and the current confidence threshold",
	}, s.handleStats)

	if s.transcriber != nil {
		sdk.AddTool(s.mcpServer, &sdk.Tool{
			Name:        "transcribe_command",
			Description: "Recognize a spoken command from 16 kHz mono PCM audio and optionally run it",
		}, s.handleTranscribe)
	}

	if s.models != nil {
		sdk.AddTool(s.mcpServer, &sdk.Tool{
			Name:        "list_models",
			Description: "List downloaded Vosk models",
		}, s.handleListModels)
	}
}
