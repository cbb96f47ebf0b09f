package cmd

import (
	"fmt"

	"github.com/Yates-Labs/gobot/internal/orchestrator"
	"github.com/Yates-Labs/gobot/internal/pipeline"
	"github.com/spf13/cobra"
)

var validatePrint bool

var validateCmd = &cobra.Command{
	Use:   "validate [config]",
	Short: "Check a pipeline config without running it",
	Long: `Load a pipeline config, resolve its metadata variables and check that:
- every section is well formed
- every chainer channel is produced before it is consumed
- every class name is registered

Examples:
  gobot validate configs/gobot_dstc2.yaml
  gobot validate configs/gobot_dstc2.yaml --print`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validatePrint, "print", false, "Print the config with every variable resolved")
}

// loadConfig loads, resolves and validates a pipeline config
func loadConfig(path string) (*pipeline.Config, error) {
	cfg, err := pipeline.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := orchestrator.CheckClasses(cfg, orchestrator.NewDefaultReaders(), pipeline.NewDefaultRegistry()); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if validatePrint {
		data, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d components, data at %s)\n", args[0], len(cfg.Chainer.Pipe), cfg.DatasetReader.DataPath)
	return nil
}
