package cmd

import (
	"fmt"

	"github.com/Yates-Labs/gobot/internal/ingest"
	"github.com/Yates-Labs/gobot/internal/orchestrator"
	"github.com/Yates-Labs/gobot/internal/pipeline"
	"github.com/spf13/cobra"
)

var fitDownload bool

var fitCmd = &cobra.Command{
	Use:   "fit [config]",
	Short: "Fit and save a pipeline on the training dialogues",
	Long: `Read the configured dataset, group it into dialogues, fit every
component of the chainer on the training turns and save components that
declare a save_path.

Examples:
  gobot fit configs/gobot_dstc2.yaml
  gobot fit configs/gobot_dstc2.yaml --download`,
	Args: cobra.ExactArgs(1),
	RunE: runFit,
}

func init() {
	rootCmd.AddCommand(fitCmd)
	fitCmd.Flags().BoolVar(&fitDownload, "download", false, "Fetch metadata.download archives first")
}

func runFit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(args[0])
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if fitDownload {
		if err := orchestrator.Download(ctx, cfg, nil); err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
	}

	it, err := orchestrator.PrepareDataset(ctx, cfg, orchestrator.NewDefaultReaders())
	if err != nil {
		return fmt.Errorf("fit failed: %w", err)
	}

	chainer, err := orchestrator.FitPipeline(ctx, cfg, it, pipeline.NewDefaultRegistry())
	if err != nil {
		return fmt.Errorf("fit failed: %w", err)
	}
	defer chainer.Close()

	train, _ := it.Dialogues(ingest.SplitTrain)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Fitted %d components on %d training dialogues\n", len(cfg.Chainer.Pipe), len(train))

	if cfg.Train.BatchSize > 0 {
		batches, err := it.DefaultBatches(ingest.SplitTrain, cfg.Train.BatchSize)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %d training batches of up to %d dialogues per epoch\n", len(batches), cfg.Train.BatchSize)
	}

	for _, size := range componentSizes(cfg.Chainer, chainer) {
		fmt.Fprintf(w, "  %s: %d entries\n", size.id, size.len)
	}
	return nil
}

type componentSize struct {
	id  string
	len int
}

// componentSizes reports the size of every fitted component with an ID that
// has one, such as vocabularies
func componentSizes(config pipeline.ChainerConfig, chainer *pipeline.Chainer) []componentSize {
	var sizes []componentSize
	for _, c := range config.Pipe {
		if c.ID == "" {
			continue
		}
		comp, ok := chainer.Component(c.ID)
		if !ok {
			continue
		}
		if sized, ok := comp.(interface{ Len() int }); ok {
			sizes = append(sizes, componentSize{id: c.ID, len: sized.Len()})
		}
	}
	return sizes
}
