package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ClassSimpleVocab is the registered name of the token vocabulary
const ClassSimpleVocab = "simple_vocab"

// ErrUnknownToken is returned for out-of-vocabulary tokens when the vocabulary has no unk token
var ErrUnknownToken = errors.New("token not in vocabulary")

// Default special tokens placed at the start of the index
var defaultSpecialTokens = []string{"<PAD>", "<UNK>"}

// SimpleVocab maps tokens to dense indices ordered by frequency
type SimpleVocab struct {
	SpecialTokens []string
	UnkToken      string
	MinFreq       int

	tokens []string
	counts map[string]int
	index  map[string]int
}

func newSimpleVocab(spec ComponentSpec) (Component, error) {
	params := spec.Config.Params

	specials, err := stringsParam(params, "special_tokens", defaultSpecialTokens)
	if err != nil {
		return nil, err
	}
	minFreq, err := intParam(params, "min_freq", 1)
	if err != nil {
		return nil, err
	}

	return NewSimpleVocab(specials, stringParam(params, "unk_token", "<UNK>"), minFreq), nil
}

// NewSimpleVocab creates an empty vocabulary holding only the special tokens
func NewSimpleVocab(specials []string, unkToken string, minFreq int) *SimpleVocab {
	v := &SimpleVocab{
		SpecialTokens: specials,
		UnkToken:      unkToken,
		MinFreq:       minFreq,
	}
	v.reset()
	return v
}

func (v *SimpleVocab) reset() {
	v.tokens = nil
	v.counts = make(map[string]int)
	v.index = make(map[string]int)
	for _, tok := range v.SpecialTokens {
		v.add(tok, 0)
	}
}

func (v *SimpleVocab) add(tok string, count int) {
	if _, exists := v.index[tok]; exists {
		v.counts[tok] += count
		return
	}
	v.index[tok] = len(v.tokens)
	v.tokens = append(v.tokens, tok)
	v.counts[tok] = count
}

// Len returns the vocabulary size including special tokens
func (v *SimpleVocab) Len() int {
	return len(v.tokens)
}

// Tokens returns the tokens in index order
func (v *SimpleVocab) Tokens() []string {
	return append([]string(nil), v.tokens...)
}

// Index returns the index of tok, falling back to the unk token
func (v *SimpleVocab) Index(tok string) (int, error) {
	if i, ok := v.index[tok]; ok {
		return i, nil
	}
	if i, ok := v.index[v.UnkToken]; ok && v.UnkToken != "" {
		return i, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
}

// Fit rebuilds the vocabulary from token lists on every fit_on channel
func (v *SimpleVocab) Fit(ctx context.Context, inputs []Batch) error {
	counts := make(map[string]int)
	for _, batch := range inputs {
		for _, item := range batch {
			if err := countTokens(item, counts); err != nil {
				return err
			}
		}
	}

	v.reset()

	var fresh []string
	for tok, n := range counts {
		if _, special := v.index[tok]; special {
			v.counts[tok] += n
			continue
		}
		if n >= v.MinFreq {
			fresh = append(fresh, tok)
		}
	}
	sort.Slice(fresh, func(i, j int) bool {
		if counts[fresh[i]] != counts[fresh[j]] {
			return counts[fresh[i]] > counts[fresh[j]]
		}
		return fresh[i] < fresh[j]
	})
	for _, tok := range fresh {
		v.add(tok, counts[tok])
	}

	return nil
}

// countTokens accepts token lists, possibly nested per dialogue
func countTokens(item any, counts map[string]int) error {
	switch val := item.(type) {
	case string:
		counts[val]++
	case []string:
		for _, tok := range val {
			counts[tok]++
		}
	case []any:
		for _, inner := range val {
			if err := countTokens(inner, counts); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %s cannot count %T", ErrBadInput, ClassSimpleVocab, item)
	}
	return nil
}

// Infer maps token lists to index lists
func (v *SimpleVocab) Infer(ctx context.Context, inputs []Batch) ([]Batch, error) {
	if err := expectInputs(ClassSimpleVocab, inputs, 1); err != nil {
		return nil, err
	}

	out := make(Batch, len(inputs[0]))
	for i, item := range inputs[0] {
		tokens, ok := item.([]string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects []string, got %T", ErrBadInput, ClassSimpleVocab, item)
		}
		ids := make([]int, len(tokens))
		for j, tok := range tokens {
			idx, err := v.Index(tok)
			if err != nil {
				return nil, err
			}
			ids[j] = idx
		}
		out[i] = ids
	}
	return []Batch{out}, nil
}

// Save writes one "token<TAB>count" line per token in index order
func (v *SimpleVocab) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create vocab dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := bufio.NewWriter(file)
	for _, tok := range v.tokens {
		fmt.Fprintf(w, "%s\t%d\n", tok, v.counts[tok])
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

// Load restores a vocabulary written by Save; special tokens are kept first
func (v *SimpleVocab) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	v.reset()

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}

		tok, rawCount, found := strings.Cut(text, "\t")
		if !found {
			return fmt.Errorf("%s:%d: expected token<TAB>count", path, line)
		}
		count, err := strconv.Atoi(rawCount)
		if err != nil {
			return fmt.Errorf("%s:%d: bad count: %w", path, line, err)
		}

		if _, exists := v.index[tok]; exists {
			v.counts[tok] = count
			continue
		}
		v.add(tok, count)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
