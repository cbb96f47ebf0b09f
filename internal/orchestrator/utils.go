package orchestrator

import (
	"fmt"

	"github.com/Yates-Labs/gobot/internal/dialog"
	"github.com/Yates-Labs/gobot/internal/pipeline"
)

// recordBatch converts records into a pipeline batch
func recordBatch(records []dialog.Record) pipeline.Batch {
	batch := make(pipeline.Batch, len(records))
	for i, r := range records {
		batch[i] = r
	}
	return batch
}

// checkChannels ensures the chainer reads one input channel of user records
// and at most one target channel of system records
func checkChannels(cfg pipeline.ChainerConfig) error {
	if len(cfg.In) != 1 {
		return fmt.Errorf("%w: chainer.in has %d channel(s), want 1", ErrUnsupportedChannels, len(cfg.In))
	}
	if len(cfg.InY) > 1 {
		return fmt.Errorf("%w: chainer.in_y has %d channel(s), want at most 1", ErrUnsupportedChannels, len(cfg.InY))
	}
	return nil
}
