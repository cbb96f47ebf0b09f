package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Yates-Labs/gobot/internal/download"
	"github.com/Yates-Labs/gobot/internal/orchestrator"
	"github.com/spf13/cobra"
)

var downloadTimeout time.Duration

var downloadCmd = &cobra.Command{
	Use:   "download [config]",
	Short: "Fetch the archives listed in a config's metadata.download",
	Long: `Download and unpack every metadata.download archive of a pipeline config.
Archives already unpacked into their subdir are skipped. URLs may be
http(s):// or s3://bucket/key; S3 access uses the standard AWS_* environment
variables, and AWS_ENDPOINT_URL selects an S3-compatible store.

Examples:
  gobot download configs/gobot_dstc2.yaml
  ROOT_PATH=/data/gobot gobot download configs/gobot_dstc2.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().DurationVar(&downloadTimeout, "timeout", 10*time.Minute, "Timeout for each archive download")
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if len(cfg.Metadata.Download) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to download")
		return nil
	}

	fetcher := &download.Fetcher{
		HTTP: &http.Client{Timeout: downloadTimeout},
		S3:   download.NewS3ClientFromEnv(),
	}
	if err := orchestrator.Download(cmd.Context(), cfg, fetcher); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %d archive(s) ready\n", len(cfg.Metadata.Download))
	return nil
}
