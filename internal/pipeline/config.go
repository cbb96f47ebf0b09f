// Package pipeline holds the typed pipeline configuration and the chainer that
// runs its components in order.
//
// A config file has the same sections as a DeepPavlov-style bot config:
//
//	dataset_reader:   which reader loads the data and from where
//	dataset_iterator: how flat turns are grouped and batched
//	chainer:          the component pipe with named in/out channels
//	train:            training loop settings (parsed and validated only)
//	metadata:         path variables and archives to download
package pipeline

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the root of a pipeline configuration file
type Config struct {
	DatasetReader   ReaderConfig   `yaml:"dataset_reader"`
	DatasetIterator IteratorConfig `yaml:"dataset_iterator"`
	Chainer         ChainerConfig  `yaml:"chainer"`
	Train           TrainConfig    `yaml:"train"`
	Metadata        Metadata       `yaml:"metadata"`
}

// ReaderConfig selects and parameterizes the dataset reader
type ReaderConfig struct {
	ClassName string `yaml:"class_name"`
	DataPath  string `yaml:"data_path"`
}

// IteratorConfig selects and parameterizes the dataset iterator
type IteratorConfig struct {
	ClassName string `yaml:"class_name"`
	Seed      *int64 `yaml:"seed,omitempty"`
	Shuffle   bool   `yaml:"shuffle"`

	// Boundary is "start" (default) or "end": which turn carries episode_done
	Boundary string `yaml:"boundary,omitempty"`
}

// ChainerConfig describes the component pipe and its external channels
type ChainerConfig struct {
	In   []string          `yaml:"in"`
	InY  []string          `yaml:"in_y"`
	Out  []string          `yaml:"out"`
	Pipe []ComponentConfig `yaml:"pipe"`
}

// ComponentConfig describes one component in the pipe
type ComponentConfig struct {
	ID        string         `yaml:"id,omitempty"`
	ClassName string         `yaml:"class_name"`
	In        []string       `yaml:"in,omitempty"`
	Out       []string       `yaml:"out,omitempty"`
	FitOn     []string       `yaml:"fit_on,omitempty"`
	SavePath  string         `yaml:"save_path,omitempty"`
	LoadPath  string         `yaml:"load_path,omitempty"`
	Main      bool           `yaml:"main,omitempty"`
	Params    map[string]any `yaml:"params,omitempty"`
}

// Name returns the component ID, or its class name when it has none
func (c ComponentConfig) Name() string {
	if c.ID != "" {
		return c.ID
	}
	return c.ClassName
}

// TrainConfig holds training loop settings
type TrainConfig struct {
	Epochs             int      `yaml:"epochs"`
	BatchSize          int      `yaml:"batch_size"`
	Metrics            []string `yaml:"metrics,omitempty"`
	ValidationPatience int      `yaml:"validation_patience"`
	ValEveryNBatches   int      `yaml:"val_every_n_batches"`
	ValEveryNEpochs    int      `yaml:"val_every_n_epochs"`
	LogEveryNBatches   int      `yaml:"log_every_n_batches"`
	LogEveryNEpochs    int      `yaml:"log_every_n_epochs"`
	ShowExamples       bool     `yaml:"show_examples"`
	ValidateBest       bool     `yaml:"validate_best"`
	TestBest           bool     `yaml:"test_best"`
}

// Metadata holds path variables and download locations
type Metadata struct {
	Variables map[string]string `yaml:"variables,omitempty"`
	Download  []DownloadSpec    `yaml:"download,omitempty"`
}

// DownloadSpec is one archive to fetch and where to unpack it
type DownloadSpec struct {
	URL    string `yaml:"url"`
	Subdir string `yaml:"subdir"`
}

// Load reads, parses, and resolves a configuration file.
// Metadata variables may be overridden by environment variables of the same name.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration and resolves its variables against the environment
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Resolve(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
