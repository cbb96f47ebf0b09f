package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yates-Labs/gobot/internal/dialog"
	"github.com/Yates-Labs/gobot/internal/registry"
)

// ErrBadInput is returned when a component receives items it cannot process
var ErrBadInput = errors.New("unsupported component input")

// Batch is the per-channel batch of items flowing between components
type Batch []any

// Component transforms one batch per input channel into one batch per output channel
type Component interface {
	Infer(ctx context.Context, inputs []Batch) ([]Batch, error)
}

// Fitter is implemented by components that learn from their fit_on channels
type Fitter interface {
	Fit(ctx context.Context, inputs []Batch) error
}

// Saver is implemented by components with persistent state
type Saver interface {
	Save(path string) error
}

// Loader is implemented by components that restore persistent state
type Loader interface {
	Load(path string) error
}

// Closer is implemented by components holding open resources
type Closer interface {
	Close() error
}

// ComponentSpec is what a component factory receives: its config plus the
// earlier components its params reference by ID
type ComponentSpec struct {
	Config ComponentConfig
	Refs   map[string]Component
}

// ComponentRegistry maps class names to component factories
type ComponentRegistry = registry.Registry[ComponentSpec, Component]

// NewDefaultRegistry returns a registry holding the built-in components
func NewDefaultRegistry() *ComponentRegistry {
	reg := registry.New[ComponentSpec, Component]()
	reg.MustRegister(ClassSplitTokenizer, newSplitTokenizer)
	reg.MustRegister(ClassSimpleVocab, newSimpleVocab)
	reg.MustRegister(ClassOpenAIEmbedder, newOpenAIEmbedder)
	return reg
}

// textOf extracts the text to process from a string or record item
func textOf(item any) (string, error) {
	switch v := item.(type) {
	case string:
		return v, nil
	case dialog.Record:
		return v.Text(), nil
	case map[string]any:
		return dialog.Record(v).Text(), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrBadInput, item)
	}
}

// expectInputs checks the number of input channels
func expectInputs(name string, inputs []Batch, n int) error {
	if len(inputs) != n {
		return fmt.Errorf("%s expects %d input channel(s), got %d", name, n, len(inputs))
	}
	return nil
}

func stringParam(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

func boolParam(params map[string]any, key string, def bool) bool {
	if b, ok := params[key].(bool); ok {
		return b
	}
	return def
}

func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("param %s must be an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("param %s must be an integer, got %T", key, v)
	}
}

func stringsParam(params map[string]any, key string, def []string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("param %s must be a list of strings, got %T", key, v)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("param %s[%d] must be a string, got %T", key, i, item)
		}
		out[i] = s
	}
	return out, nil
}
