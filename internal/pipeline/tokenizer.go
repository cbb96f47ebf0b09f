package pipeline

import (
	"context"
	"strings"
)

// ClassSplitTokenizer is the registered name of the whitespace tokenizer
const ClassSplitTokenizer = "split_tokenizer"

// SplitTokenizer splits text on whitespace
type SplitTokenizer struct {
	Lowercase bool
}

func newSplitTokenizer(spec ComponentSpec) (Component, error) {
	return &SplitTokenizer{
		Lowercase: boolParam(spec.Config.Params, "lowercase", false),
	}, nil
}

// Tokenize splits a single text
func (t *SplitTokenizer) Tokenize(text string) []string {
	if t.Lowercase {
		text = strings.ToLower(text)
	}
	tokens := strings.Fields(text)
	if tokens == nil {
		tokens = []string{}
	}
	return tokens
}

// Infer tokenizes strings or records' text field into []string items
func (t *SplitTokenizer) Infer(ctx context.Context, inputs []Batch) ([]Batch, error) {
	if err := expectInputs(ClassSplitTokenizer, inputs, 1); err != nil {
		return nil, err
	}

	out := make(Batch, len(inputs[0]))
	for i, item := range inputs[0] {
		text, err := textOf(item)
		if err != nil {
			return nil, err
		}
		out[i] = t.Tokenize(text)
	}
	return []Batch{out}, nil
}
