package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emmett/voxtask/internal/app"
	grpcserver "github.com/emmett/voxtask/internal/server/grpc"
	"github.com/emmett/voxtask/internal/server/ws"
)

// shutdownTimeout bounds the HTTP server drain on exit
const shutdownTimeout = 5 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		port         int
		httpAddr     string
		autoDownload bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task list over gRPC, WebSocket and Prometheus",
		Long: `Serve the voice task list for remote clients.

The gRPC TaskVoice service listens on --port. The HTTP address serves
/ws (live events and start/stop/say control) and /metrics.

Examples:
  voxtask serve
  voxtask serve --port 50052 --http :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.Close()

			if cmd.Flags().Changed("port") {
				rt.cfg.Server.GRPCPort = port
			}
			if cmd.Flags().Changed("http") {
				rt.cfg.Server.HTTPAddr = httpAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			va, m, err := rt.buildVoiceApp(ctx, voiceOptions{out: os.Stdout, autoDownload: autoDownload})
			if err != nil {
				return err
			}
			speaker, err := rt.speaker(os.Stdout)
			if err != nil {
				return err
			}

			events := grpcserver.NewEventStream()
			hub := ws.NewHub(va, rt.logger)
			va.AddSink(events)
			va.AddSink(hub)
			rt.watchConfig(ctx, va)

			svc := grpcserver.NewTaskVoiceService(va, speaker, events)
			grpcSrv := grpcserver.NewServer(grpcserver.Config{
				Host: rt.cfg.Server.Host,
				Port: rt.cfg.Server.GRPCPort,
			}, svc, rt.logger)

			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			mux.Handle("/ws", hub)
			httpSrv := &http.Server{
				Addr:              rt.cfg.Server.HTTPAddr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			fmt.Printf("Voxtask server v%s (commit: %s)\n", Version, GitCommit)
			rt.logger.Info().Str("addr", httpSrv.Addr).Msg("HTTP server listening")

			// every service has returned before the deferred rt.Close
			return app.RunServices(ctx,
				func(ctx context.Context) error {
					<-ctx.Done()
					fmt.Println("\nShutting down...")
					return nil
				},
				func(ctx context.Context) error { hub.Run(ctx); return nil },
				va.Run,
				grpcSrv.Run,
				app.HTTPService(httpSrv, shutdownTimeout),
			)
		},
	}

	cmd.Flags().IntVar(&port, "port", 50051, "gRPC server port (default from config)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP address for /ws and /metrics (default from config)")
	cmd.Flags().BoolVar(&autoDownload, "auto-download", false, "Download the model if missing")

	return cmd
}
