package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/emmett/voxtask/internal/audio"
	"github.com/emmett/voxtask/internal/models"
	"github.com/emmett/voxtask/internal/server/mcp"
)

func mcpCmd(opts *rootOptions) *cobra.Command {
	var (
		autoDownload bool
		vadThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the task list as MCP tools over stdio",
		Long: `Serve the task list as Model Context Protocol tools over stdin/stdout.

Tools: run_voice_command, list_tasks, recognition_stats,
transcribe_command and list_models. All diagnostics go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol
			rt, err := newRuntime(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.Close()

			va, _, err := rt.buildVoiceApp(cmd.Context(), voiceOptions{out: os.Stderr, autoDownload: autoDownload})
			if err != nil {
				return err
			}

			modelPath, err := rt.modelPath(cmd.Context(), nil, os.Stderr, false)
			if err != nil {
				return err
			}
			vad := audio.DefaultVADConfig()
			if vadThreshold > 0 {
				vad.EnergyThreshold = vadThreshold
			}
			transcriber := mcp.NewTranscriber(rt.engineFactory(modelPath), vad)

			srv, err := mcp.NewServer(mcp.Config{
				ServerName:    "voxtask",
				ServerVersion: Version,
			}, mcp.Options{
				Backend:     va,
				Transcriber: transcriber,
				Models:      models.NewManager(rt.cfg.Model.Path, nil),
				Logger:      rt.logger,
			})
			if err != nil {
				return err
			}
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&autoDownload, "auto-download", false, "Download the model if missing")
	cmd.Flags().Float64Var(&vadThreshold, "vad-threshold", 0, "VAD energy threshold for transcribe_command (0.001-0.1, lower=more sensitive)")

	return cmd
}
