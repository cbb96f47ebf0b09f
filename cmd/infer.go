package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Yates-Labs/gobot/internal/orchestrator"
	"github.com/Yates-Labs/gobot/internal/pipeline"
	"github.com/spf13/cobra"
)

var inferCmd = &cobra.Command{
	Use:   "infer [config] [text...]",
	Short: "Run a fitted pipeline over user utterances",
	Long: `Load the saved components of a pipeline config and run the chainer over
one or more user utterances. Prints one JSON line per utterance mapping each
chainer.out channel to its value.

Examples:
  gobot infer configs/gobot_dstc2.yaml "i want cheap food" "in the south"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runInfer,
}

func init() {
	rootCmd.AddCommand(inferCmd)
}

func runInfer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	texts := args[1:]
	outputs, err := orchestrator.InferTexts(cmd.Context(), cfg, pipeline.NewDefaultRegistry(), texts)
	if err != nil {
		return fmt.Errorf("infer failed: %w", err)
	}

	return writeInferLines(cmd.OutOrStdout(), texts, cfg.Chainer.Out, outputs)
}

// writeInferLines prints one JSON object per text with a key per out channel
func writeInferLines(w io.Writer, texts, channels []string, outputs []pipeline.Batch) error {
	if len(outputs) != len(channels) {
		return fmt.Errorf("expected %d output channels, got %d", len(channels), len(outputs))
	}

	encoder := json.NewEncoder(w)
	for i, text := range texts {
		line := map[string]any{"text": text}
		for j, name := range channels {
			if i >= len(outputs[j]) {
				return fmt.Errorf("channel %s has %d items for %d texts", name, len(outputs[j]), len(texts))
			}
			line[name] = outputs[j][i]
		}
		if err := encoder.Encode(line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
