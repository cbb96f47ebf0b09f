package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/Yates-Labs/gobot/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gobot",
	Short: "Gobot - goal-oriented dialogue dataset tool",
	Long: `Gobot prepares goal-oriented dialogue datasets for bot training.

It reads DSTC2-style turn streams, regroups them into dialogues, and runs
configured preprocessing pipelines (tokenizer, vocabulary, embeddings)
described by a YAML config.

Set OTEL_EXPORTER_OTLP_ENDPOINT to export traces to an OTLP/HTTP collector.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	provider, err := telemetry.NewProvider(ctx, telemetry.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry: %v\n", err)
		provider = &telemetry.Provider{}
	}

	err = rootCmd.ExecuteContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if shutdownErr := provider.Shutdown(shutdownCtx); shutdownErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry shutdown: %v\n", shutdownErr)
	}
	cancel()
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
