package iterator

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/Yates-Labs/gobot/internal/dialog"
	"github.com/Yates-Labs/gobot/internal/ingest"
)

// ClassDialogIterator is the registered name of the dialogue iterator
const ClassDialogIterator = "dialog_iterator"

// Common errors for iterator operations
var (
	ErrNotGrouped   = errors.New("dataset has not been split into dialogues")
	ErrUnknownSplit = errors.New("unknown split")
)

// Options configures a DialogIterator
type Options struct {
	// Seed initialises the shuffle generator
	Seed int64

	// Shuffle is the shuffle mode of DefaultBatches
	Shuffle bool

	Grouping dialog.GroupingConfig
}

// Batch holds several dialogues: X[i] and Y[i] are the turns of dialogue i
type Batch struct {
	X [][]dialog.Record
	Y [][]dialog.Record
}

// Len returns the number of dialogues in the batch
func (b Batch) Len() int {
	return len(b.X)
}

// DialogIterator holds the train, valid and test splits of a dataset, first
// as flat pairs and, after Split, as dialogues.
// It is not safe for concurrent use until Split has returned.
type DialogIterator struct {
	options Options
	rng     *rand.Rand

	flat      ingest.Dataset
	dialogues map[string][]dialog.Dialogue
	grouped   bool
}

// NewDialogIterator wraps a flat dataset. Splits missing from data are empty
// and unset grouping fields take the DSTC2 defaults.
func NewDialogIterator(data ingest.Dataset, options Options) *DialogIterator {
	options.Grouping = withDefaults(options.Grouping)

	flat := make(ingest.Dataset, len(ingest.Splits))
	for _, split := range ingest.Splits {
		flat[split] = data[split]
	}

	return &DialogIterator{
		options: options,
		rng:     rand.New(rand.NewSource(options.Seed)),
		flat:    flat,
	}
}

func withDefaults(config dialog.GroupingConfig) dialog.GroupingConfig {
	defaults := dialog.DefaultGroupingConfig()
	if config.DoneField == "" {
		config.DoneField = defaults.DoneField
	}
	if config.Boundary == "" {
		config.Boundary = defaults.Boundary
	}
	if config.PrevActField == "" {
		config.PrevActField = defaults.PrevActField
	}
	if config.ActField == "" {
		config.ActField = defaults.ActField
	}
	if config.IDPrefix == "" {
		config.IDPrefix = defaults.IDPrefix
	}
	return config
}

// Options returns the iterator configuration
func (it *DialogIterator) Options() Options {
	return it.options
}

// Split groups every split into dialogues. It runs once; a second call
// returns dialog.ErrAlreadyGrouped. If any split fails, none is replaced.
func (it *DialogIterator) Split() error {
	if it.grouped {
		return dialog.ErrAlreadyGrouped
	}

	grouped := make(map[string][]dialog.Dialogue, len(ingest.Splits))
	for _, split := range ingest.Splits {
		config := it.options.Grouping
		config.IDPrefix = splitPrefix(config.IDPrefix, split)

		dialogues, err := dialog.GroupWithConfig(it.flat[split], config)
		if err != nil {
			return fmt.Errorf("split %s: %w", split, err)
		}
		grouped[split] = dialogues

		slog.Debug("[Dialog Iterator] grouped split",
			"split", split,
			"pairs", len(it.flat[split]),
			"dialogues", len(dialogues))
	}

	it.dialogues = grouped
	it.flat = nil
	it.grouped = true
	return nil
}

// splitPrefix keeps dialogue IDs unique across splits, e.g. "train-D1"
func splitPrefix(prefix, split string) string {
	return split + "-" + prefix
}

// Dialogues returns the dialogues of a split; "all" concatenates train, valid and test
func (it *DialogIterator) Dialogues(split string) ([]dialog.Dialogue, error) {
	if !it.grouped {
		return nil, ErrNotGrouped
	}

	if split == ingest.SplitAll {
		var all []dialog.Dialogue
		for _, s := range ingest.Splits {
			all = append(all, it.dialogues[s]...)
		}
		if all == nil {
			all = []dialog.Dialogue{}
		}
		return all, nil
	}

	dialogues, ok := it.dialogues[split]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplit, split)
	}
	return dialogues, nil
}

// Instances returns the per-dialogue inputs and targets of a split
func (it *DialogIterator) Instances(split string) ([][]dialog.Record, [][]dialog.Record, error) {
	dialogues, err := it.Dialogues(split)
	if err != nil {
		return nil, nil, err
	}

	xs := make([][]dialog.Record, len(dialogues))
	ys := make([][]dialog.Record, len(dialogues))
	for i, d := range dialogues {
		xs[i] = d.X
		ys[i] = d.Y
	}
	return xs, ys, nil
}

// Batches cuts a split into batches of batchSize dialogues.
// batchSize <= 0 yields a single batch with every dialogue. When shuffle is
// set the dialogue order is permuted with the iterator's seeded generator.
func (it *DialogIterator) Batches(split string, batchSize int, shuffle bool) ([]Batch, error) {
	xs, ys, err := it.Instances(split)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return []Batch{}, nil
	}

	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	if shuffle {
		it.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	if batchSize <= 0 || batchSize > len(order) {
		batchSize = len(order)
	}

	batches := make([]Batch, 0, (len(order)+batchSize-1)/batchSize)
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))

		batch := Batch{
			X: make([][]dialog.Record, 0, end-start),
			Y: make([][]dialog.Record, 0, end-start),
		}
		for _, idx := range order[start:end] {
			batch.X = append(batch.X, xs[idx])
			batch.Y = append(batch.Y, ys[idx])
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// DefaultBatches is Batches with the shuffle mode from Options
func (it *DialogIterator) DefaultBatches(split string, batchSize int) ([]Batch, error) {
	return it.Batches(split, batchSize, it.options.Shuffle)
}

// Turns flattens a split into aligned per-turn inputs and targets
func (it *DialogIterator) Turns(split string) ([]dialog.Record, []dialog.Record, error) {
	dialogues, err := it.Dialogues(split)
	if err != nil {
		return nil, nil, err
	}

	n := dialog.TurnCount(dialogues)
	xs := make([]dialog.Record, 0, n)
	ys := make([]dialog.Record, 0, n)
	for _, d := range dialogues {
		xs = append(xs, d.X...)
		ys = append(ys, d.Y...)
	}
	return xs, ys, nil
}
