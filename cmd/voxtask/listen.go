package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emmett/voxtask/internal/app"
	"github.com/emmett/voxtask/internal/input"
	"github.com/emmett/voxtask/internal/output"
)

func listenCmd(opts *rootOptions) *cobra.Command {
	var (
		format       string
		outputFile   string
		continuous   bool
		useEnter     bool
		autoDownload bool
		meter        bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen for spoken task commands",
		Long: `Listen for spoken task commands and apply them to the task list.

Press the hotkey (or Enter with --enter) to start listening and again to
stop. Commands include:
  add buy milk with high priority
  complete task 2
  delete the groceries task
  clear all tasks`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.Close()

			if cmd.Flags().Changed("continuous") {
				rt.cfg.Speech.ContinuousMode = continuous
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			va, _, err := rt.buildVoiceApp(ctx, voiceOptions{
				in:           os.Stdin,
				out:          os.Stdout,
				autoDownload: autoDownload,
				selectDevice: true,
			})
			if err != nil {
				return err
			}

			console := output.DefaultConsoleOutput()
			var formatter output.Formatter
			if format != "" {
				w, err := openOutput(outputFile)
				if err != nil {
					return err
				}
				rt.onClose(w.Close)
				if formatter, err = output.NewFormatter(format, w); err != nil {
					return err
				}
				rt.onClose(formatter.Close)
			}
			va.AddSink(app.NewConsoleSink(console, formatter, meter))
			rt.watchConfig(ctx, va)

			trigger, hint := rt.trigger(useEnter)
			console.Info(fmt.Sprintf("Voxtask v%s ready. %s, Ctrl+C to quit.", Version, hint))

			return va.RunPushToTalk(ctx, trigger)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Also log commands as json or text")
	cmd.Flags().StringVar(&outputFile, "output", "", "Command log file (default: stdout)")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "Keep listening after each command (default from config)")
	cmd.Flags().BoolVar(&useEnter, "enter", false, "Use Enter instead of the global hotkey")
	cmd.Flags().BoolVar(&autoDownload, "auto-download", false, "Download the model if missing without asking")
	cmd.Flags().BoolVar(&meter, "meter", false, "Show the microphone level meter")

	return cmd
}

// trigger returns the push-to-talk trigger and a hint for using it. An
// unusable hotkey falls back to Enter.
func (r *runtime) trigger(useEnter bool) (input.Trigger, string) {
	spec := r.cfg.Input.Hotkey
	if !useEnter && spec != "" {
		hk, err := input.NewHotkeyTrigger(spec)
		if err == nil {
			return hk, "Press " + spec + " to talk"
		}
		r.logger.Warn().Err(err).Str("hotkey", spec).Msg("falling back to Enter")
	}
	return input.NewLineTrigger(os.Stdin), "Press Enter to talk"
}

// openOutput opens path for appending, or stdout when path is empty
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
