package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

// rootOptions are the flags shared by every subcommand
type rootOptions struct {
	configFile string
	logLevel   string
	model      string
	device     string
	store      string
	dbPath     string
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "voxtask",
		Short: "Voxtask - manage a task list by voice",
		Version: fmt.Sprintf("%s (commit: %s, branch: %s, built: %s)",
			Version, GitCommit, GitBranch, BuildTime),
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to configuration file (default: ~/.voxtaskrc or /etc/voxtask/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	flags.StringVar(&opts.model, "model", "", "Vosk model name or alias (default from config or language)")
	flags.StringVar(&opts.device, "device", "", "Audio input device name (see 'voxtask devices')")
	flags.StringVar(&opts.store, "store", "", "Task store: sqlite or memory (default from config)")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database path (default: ~/.voxtask/tasks.db)")

	rootCmd.AddCommand(listenCmd(opts))
	rootCmd.AddCommand(sayCmd(opts))
	rootCmd.AddCommand(tasksCmd(opts))
	rootCmd.AddCommand(devicesCmd(opts))
	rootCmd.AddCommand(modelsCmd(opts))
	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(mcpCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
