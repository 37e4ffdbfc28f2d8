package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emmett/voxtask/internal/app"
	"github.com/emmett/voxtask/internal/command"
	"github.com/emmett/voxtask/internal/output"
	grpcserver "github.com/emmett/voxtask/internal/server/grpc"
)

// rpcTimeout bounds a single call to a running server
const rpcTimeout = 10 * time.Second

func sayCmd(opts *rootOptions) *cobra.Command {
	var (
		addr       string
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "say [command...]",
		Short: "Run a typed command as if it had been spoken",
		Long: `Run a typed command as if it had been spoken.

Examples:
  voxtask say add buy milk with high priority
  voxtask say complete task 1
  voxtask say --addr localhost:50051 clear all tasks`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if addr != "" {
				return sayRemote(cmd.Context(), addr, text, confidence)
			}

			rt, err := newRuntime(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.Close()

			store, err := rt.openStore()
			if err != nil {
				return err
			}
			speaker, err := rt.speaker(os.Stdout)
			if err != nil {
				return err
			}

			executor := command.NewExecutor(store, speaker, rt.cfg.Feedback.Rate, rt.logger)
			_, err = executor.Execute(cmd.Context(), command.Parse(text))
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Send to a running 'voxtask serve' at this gRPC address")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "Recognition confidence reported with the command")

	return cmd
}

func sayRemote(ctx context.Context, addr, text string, confidence float64) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	report, err := grpcserver.NewTaskVoiceClient(conn).ExecuteCommand(ctx, text, confidence)
	if err != nil {
		return err
	}
	fmt.Println(report.GetFields()["message"].GetStringValue())
	return nil
}

func tasksCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Show the task list",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.Close()

			store, err := rt.openStore()
			if err != nil {
				return err
			}

			list, err := store.ListActive(cmd.Context())
			if all {
				list, err = store.List(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}
			output.DefaultConsoleOutput().WriteTasks(list)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include completed tasks")

	return cmd
}

func devicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.NewDeviceManager(os.Stdout).ListDevices()
		},
	}
}

func modelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage Vosk speech models",
	}

	manager := func() (*app.ModelManager, error) {
		rt, err := newRuntime(opts, os.Stderr)
		if err != nil {
			return nil, err
		}
		return rt.modelManager(os.Stdin, os.Stdout), nil
	}

	var downloaded bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			mm, err := manager()
			if err != nil {
				return err
			}
			if downloaded {
				return mm.ListDownloaded()
			}
			return mm.ListModels()
		},
	}
	list.Flags().BoolVar(&downloaded, "downloaded", false, "Only show downloaded models")

	download := &cobra.Command{
		Use:   "download [name]",
		Short: "Download a model by name or alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mm, err := manager()
			if err != nil {
				return err
			}
			return mm.Download(cmd.Context(), args[0])
		},
	}

	setDefault := &cobra.Command{
		Use:   "default [name]",
		Short: "Set the default model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mm, err := manager()
			if err != nil {
				return err
			}
			return mm.SetDefault(args[0])
		},
	}

	cmd.AddCommand(list, download, setDefault)
	return cmd
}
