package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig wraps every configuration validation failure
var ErrInvalidConfig = errors.New("invalid pipeline config")

// refPrefix marks a param value that refers to an earlier component by ID
const refPrefix = "#"

// Validate checks the configuration for structural errors.
// Components are checked in pipe order, so a valid pipe is a DAG in list order:
// every channel a component reads was produced by the chainer inputs or an
// earlier component.
func (c *Config) Validate() error {
	errs := c.datasetErrors()
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Train.Epochs < 0 {
		fail("train.epochs must be non-negative, got %d", c.Train.Epochs)
	}
	if c.Train.BatchSize < 0 {
		fail("train.batch_size must be non-negative, got %d", c.Train.BatchSize)
	}
	if c.Train.ValidationPatience < 0 {
		fail("train.validation_patience must be non-negative, got %d", c.Train.ValidationPatience)
	}

	for i, d := range c.Metadata.Download {
		if d.URL == "" || d.Subdir == "" {
			fail("metadata.download[%d] needs url and subdir", i)
		}
	}

	for _, err := range c.Chainer.validate() {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}

	return errors.Join(errs...)
}

// ValidateDataset checks only the dataset_reader and dataset_iterator
// sections, for callers that group a dataset without running a chainer.
func (c *Config) ValidateDataset() error {
	return errors.Join(c.datasetErrors()...)
}

func (c *Config) datasetErrors() []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.DatasetReader.ClassName == "" {
		fail("dataset_reader.class_name is required")
	}
	if c.DatasetIterator.ClassName == "" {
		fail("dataset_iterator.class_name is required")
	}
	switch c.DatasetIterator.Boundary {
	case "", "start", "end":
	default:
		fail("dataset_iterator.boundary must be start or end, got %q", c.DatasetIterator.Boundary)
	}
	return errs
}

// validate walks the pipe in order and reports channel and reference errors
func (c *ChainerConfig) validate() []error {
	var errs []error

	if len(c.In) == 0 {
		errs = append(errs, errors.New("chainer.in needs at least one channel"))
	}

	available := make(map[string]bool)
	trainOnly := make(map[string]bool)
	for _, ch := range c.In {
		if available[ch] {
			errs = append(errs, fmt.Errorf("chainer.in lists %q twice", ch))
		}
		available[ch] = true
	}
	for _, ch := range c.InY {
		if available[ch] || trainOnly[ch] {
			errs = append(errs, fmt.Errorf("chainer.in_y reuses channel %q", ch))
		}
		trainOnly[ch] = true
	}

	ids := make(map[string]bool)
	mains := 0
	for i, comp := range c.Pipe {
		where := fmt.Sprintf("chainer.pipe[%d] (%s)", i, comp.Name())

		if comp.ClassName == "" {
			errs = append(errs, fmt.Errorf("%s: class_name is required", where))
		}
		if comp.Main {
			mains++
		}

		for _, ch := range comp.In {
			switch {
			case trainOnly[ch]:
				errs = append(errs, fmt.Errorf("%s: in channel %q is only available while fitting", where, ch))
			case !available[ch]:
				errs = append(errs, fmt.Errorf("%s: in channel %q is not produced by an earlier step", where, ch))
			}
		}
		for _, ch := range comp.FitOn {
			if !available[ch] && !trainOnly[ch] {
				errs = append(errs, fmt.Errorf("%s: fit_on channel %q is not produced by an earlier step", where, ch))
			}
		}
		if len(comp.Out) > 0 && len(comp.In) == 0 {
			errs = append(errs, fmt.Errorf("%s: out channels need at least one in channel", where))
		}

		for _, ref := range paramRefs(comp.Params) {
			if !ids[ref] {
				errs = append(errs, fmt.Errorf("%s: reference #%s does not name an earlier component", where, ref))
			}
		}

		for _, ch := range comp.Out {
			if available[ch] || trainOnly[ch] {
				errs = append(errs, fmt.Errorf("%s: out channel %q is already produced", where, ch))
			}
			available[ch] = true
		}

		if comp.ID != "" {
			if ids[comp.ID] {
				errs = append(errs, fmt.Errorf("%s: duplicate component id %q", where, comp.ID))
			}
			ids[comp.ID] = true
		}
	}

	if mains > 1 {
		errs = append(errs, fmt.Errorf("chainer has %d main components, at most one allowed", mains))
	}

	for _, ch := range c.Out {
		if !available[ch] {
			errs = append(errs, fmt.Errorf("chainer.out channel %q is never produced", ch))
		}
	}

	return errs
}

// paramRefs collects the component IDs referenced as "#id" or "#id.attr" in params
func paramRefs(params map[string]any) []string {
	var refs []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			if ref, ok := parseRef(val); ok {
				refs = append(refs, ref)
			}
		case map[string]any:
			for _, inner := range val {
				walk(inner)
			}
		case []any:
			for _, inner := range val {
				walk(inner)
			}
		}
	}
	for _, v := range params {
		walk(v)
	}
	return refs
}

// parseRef extracts the component ID from "#id" or "#id.attr"
func parseRef(s string) (string, bool) {
	if !strings.HasPrefix(s, refPrefix) || len(s) == len(refPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(s, refPrefix)
	if dot := strings.IndexByte(id, '.'); dot >= 0 {
		id = id[:dot]
	}
	return id, id != ""
}
