package cmd

import (
	"fmt"
	"os"

	"github.com/Yates-Labs/gobot/internal/dialog"
	"github.com/Yates-Labs/gobot/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	exportSplit    string
	exportFormat   string
	exportOutput   string
	exportBoundary string
	exportQuery    string
)

var exportCmd = &cobra.Command{
	Use:   "export [data-dir]",
	Short: "Export grouped dialogues as JSON, YAML or MessagePack",
	Long: `Read the DSTC2 jsonlist files in a directory, regroup the turns into
dialogues and write them to a file or stdout.

Examples:
  gobot export ./data --split train --format json --output train.json
  gobot export ./data --split all --format yaml
  gobot export ./data --format msgpack --output dialogues.msgpack
  gobot export ./data --query '.dialogues[] | select(.turn_count > 10) | .id'`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportSplit, "split", "train", "Split to export: train, valid, test or all")
	exportCmd.Flags().StringVar(&exportFormat, "format", string(dialog.FormatJSON), "Export format: json, yaml or msgpack")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().StringVarP(&exportQuery, "query", "q", "", "jq expression applied to the export; results are written as JSON lines")
	exportCmd.Flags().StringVar(&exportBoundary, "boundary", string(dialog.BoundaryStart), "Whether episode_done marks the start or the end of a dialogue")
}

func runExport(cmd *cobra.Command, args []string) error {
	it, err := groupDataDir(cmd.Context(), args[0], pipeline.IteratorConfig{Boundary: exportBoundary})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	dialogues, err := it.Dialogues(exportSplit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if exportOutput != "" {
		file, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer file.Close()
		w = file
	}

	if exportQuery != "" {
		if err := dialog.QueryDialogues(cmd.Context(), dialogues, exportSplit, exportQuery, w); err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		return nil
	}

	if err := dialog.ExportDialogues(dialogues, exportSplit, exportFormat, w); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if exportOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d dialogues to %s\n", len(dialogues), exportOutput)
	}
	return nil
}
