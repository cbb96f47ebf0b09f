package ingest

import (
	"context"

	"github.com/Yates-Labs/gobot/internal/dialog"
)

// Split names shared by readers and iterators
const (
	SplitTrain = "train"
	SplitValid = "valid"
	SplitTest  = "test"
	SplitAll   = "all"
)

// Splits lists the dataset splits in their canonical order
var Splits = []string{SplitTrain, SplitValid, SplitTest}

// Dataset maps a split name to its flat, chronologically ordered turns
type Dataset map[string][]dialog.Pair

// Reader loads a dataset from a local path
type Reader interface {
	Read(ctx context.Context, dataPath string) (Dataset, error)
}

// PairCount returns the number of turns across all splits
func (d Dataset) PairCount() int {
	total := 0
	for _, pairs := range d {
		total += len(pairs)
	}
	return total
}
