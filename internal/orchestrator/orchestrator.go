package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Yates-Labs/gobot/internal/dialog"
	"github.com/Yates-Labs/gobot/internal/download"
	"github.com/Yates-Labs/gobot/internal/ingest"
	"github.com/Yates-Labs/gobot/internal/ingest/dstc2"
	"github.com/Yates-Labs/gobot/internal/iterator"
	"github.com/Yates-Labs/gobot/internal/pipeline"
	"github.com/Yates-Labs/gobot/internal/registry"
	"github.com/Yates-Labs/gobot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ClassDSTC2Reader is the registered name of the DSTC2 dataset reader
const ClassDSTC2Reader = "dstc2_reader"

// ErrUnsupportedChannels is returned when a chainer's input channels cannot be fed from dialogue turns
var ErrUnsupportedChannels = errors.New("chainer channels cannot be fed from dialogue turns")

// ReaderRegistry maps dataset_reader class names to readers
type ReaderRegistry = registry.Registry[pipeline.ReaderConfig, ingest.Reader]

// NewDefaultReaders returns a registry holding the built-in dataset readers
func NewDefaultReaders() *ReaderRegistry {
	readers := registry.New[pipeline.ReaderConfig, ingest.Reader]()
	readers.MustRegister(ClassDSTC2Reader, func(pipeline.ReaderConfig) (ingest.Reader, error) {
		return dstc2.NewReader(), nil
	})
	return readers
}

// ReadDataset builds the configured reader and loads the flat dataset
func ReadDataset(ctx context.Context, cfg *pipeline.Config, readers *ReaderRegistry) (ingest.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before reading: %w", err)
	}

	reader, err := readers.Build(cfg.DatasetReader.ClassName, cfg.DatasetReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build dataset reader: %w", err)
	}

	data, err := reader.Read(ctx, cfg.DatasetReader.DataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	slog.Info("[Orchestrator] read dataset",
		"reader", cfg.DatasetReader.ClassName,
		"path", cfg.DatasetReader.DataPath,
		"turns", data.PairCount())
	return data, nil
}

// PrepareDataset reads the dataset and groups every split into dialogues
func PrepareDataset(ctx context.Context, cfg *pipeline.Config, readers *ReaderRegistry) (_ *iterator.DialogIterator, err error) {
	ctx, span := telemetry.Start(ctx, "orchestrator.PrepareDataset",
		attribute.String("reader", cfg.DatasetReader.ClassName),
		attribute.String("data_path", cfg.DatasetReader.DataPath))
	defer func() { telemetry.End(span, err) }()

	data, err := ReadDataset(ctx, cfg, readers)
	if err != nil {
		return nil, err
	}

	// Check for context cancellation after reading
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled after reading: %w", err)
	}

	options, err := iteratorOptions(cfg.DatasetIterator)
	if err != nil {
		return nil, err
	}

	it := iterator.NewDialogIterator(data, options)
	if err := it.Split(); err != nil {
		return nil, fmt.Errorf("failed to group dialogues: %w", err)
	}

	for _, split := range ingest.Splits {
		dialogues, _ := it.Dialogues(split)
		slog.Info("[Orchestrator] grouped split", "split", split, "dialogues", len(dialogues))
	}
	return it, nil
}

func iteratorOptions(cfg pipeline.IteratorConfig) (iterator.Options, error) {
	if cfg.ClassName != iterator.ClassDialogIterator {
		return iterator.Options{}, fmt.Errorf("%w: %q (registered: [%s])", registry.ErrUnknownClass, cfg.ClassName, iterator.ClassDialogIterator)
	}

	seed := time.Now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	grouping := dialog.DefaultGroupingConfig()
	if cfg.Boundary != "" {
		grouping.Boundary = dialog.BoundaryMode(cfg.Boundary)
	}

	return iterator.Options{
		Seed:     seed,
		Shuffle:  cfg.Shuffle,
		Grouping: grouping,
	}, nil
}

// FitPipeline builds the chainer, fits it on every training turn and saves it.
// The caller closes the returned chainer.
func FitPipeline(ctx context.Context, cfg *pipeline.Config, it *iterator.DialogIterator, reg *pipeline.ComponentRegistry) (_ *pipeline.Chainer, err error) {
	ctx, span := telemetry.Start(ctx, "orchestrator.FitPipeline", attribute.Int("components", len(cfg.Chainer.Pipe)))
	defer func() { telemetry.End(span, err) }()

	if err := checkChannels(cfg.Chainer); err != nil {
		return nil, err
	}

	chainer, err := pipeline.Build(cfg.Chainer, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to build chainer: %w", err)
	}

	xs, ys, err := it.Turns(ingest.SplitTrain)
	if err != nil {
		chainer.Close()
		return nil, fmt.Errorf("failed to collect training turns: %w", err)
	}

	x, y := recordBatch(xs), recordBatch(ys)
	targets := []pipeline.Batch{}
	if len(cfg.Chainer.InY) == 1 {
		targets = append(targets, y)
	}

	slog.Info("[Orchestrator] fitting chainer", "components", len(cfg.Chainer.Pipe), "turns", len(xs))
	if err := chainer.Fit(ctx, []pipeline.Batch{x}, targets); err != nil {
		chainer.Close()
		return nil, fmt.Errorf("failed to fit chainer: %w", err)
	}

	if err := chainer.Save(); err != nil {
		chainer.Close()
		return nil, fmt.Errorf("failed to save chainer: %w", err)
	}
	return chainer, nil
}

// InferTexts loads a fitted chainer and runs it over user utterances.
// It returns one batch per chainer.out channel, each with one item per text.
func InferTexts(ctx context.Context, cfg *pipeline.Config, reg *pipeline.ComponentRegistry, texts []string) (_ []pipeline.Batch, err error) {
	ctx, span := telemetry.Start(ctx, "orchestrator.InferTexts", attribute.Int("texts", len(texts)))
	defer func() { telemetry.End(span, err) }()

	if err := checkChannels(cfg.Chainer); err != nil {
		return nil, err
	}

	chainer, err := pipeline.Build(cfg.Chainer, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to build chainer: %w", err)
	}
	defer chainer.Close()

	if err := chainer.Load(); err != nil {
		return nil, fmt.Errorf("failed to load chainer: %w", err)
	}

	records := make([]dialog.Record, len(texts))
	for i, text := range texts {
		records[i] = dialog.Record{dialog.FieldText: text}
	}

	outputs, err := chainer.Infer(ctx, recordBatch(records))
	if err != nil {
		return nil, fmt.Errorf("failed to run chainer: %w", err)
	}
	return outputs, nil
}

// CheckClasses verifies that every class name in cfg is registered
func CheckClasses(cfg *pipeline.Config, readers *ReaderRegistry, reg *pipeline.ComponentRegistry) error {
	var errs []error

	if !readers.Has(cfg.DatasetReader.ClassName) {
		errs = append(errs, fmt.Errorf("dataset_reader: %w: %q", registry.ErrUnknownClass, cfg.DatasetReader.ClassName))
	}
	if _, err := iteratorOptions(cfg.DatasetIterator); err != nil {
		errs = append(errs, fmt.Errorf("dataset_iterator: %w", err))
	}
	for i, comp := range cfg.Chainer.Pipe {
		if !reg.Has(comp.ClassName) {
			errs = append(errs, fmt.Errorf("chainer.pipe[%d] (%s): %w: %q", i, comp.Name(), registry.ErrUnknownClass, comp.ClassName))
		}
	}

	return errors.Join(errs...)
}

// Download fetches every metadata.download archive that is not already present.
// A nil fetcher downloads over HTTP with the AWS environment's S3 client for s3:// URLs.
func Download(ctx context.Context, cfg *pipeline.Config, fetcher *download.Fetcher) (err error) {
	ctx, span := telemetry.Start(ctx, "orchestrator.Download", attribute.Int("archives", len(cfg.Metadata.Download)))
	defer func() { telemetry.End(span, err) }()

	if fetcher == nil {
		fetcher = &download.Fetcher{S3: download.NewS3ClientFromEnv()}
	}

	for i, spec := range cfg.Metadata.Download {
		if download.IsDone(spec.Subdir) {
			slog.Info("[Orchestrator] download already present", "subdir", spec.Subdir)
			continue
		}

		if err := fetcher.Fetch(ctx, spec.URL, spec.Subdir); err != nil {
			return fmt.Errorf("metadata.download[%d]: %w", i, err)
		}
	}
	return nil
}
