package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Yates-Labs/gobot/internal/cache"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClassOpenAIEmbedder is the registered name of the OpenAI text embedder
const ClassOpenAIEmbedder = "openai_embedder"

// Common errors for embedding operations
var (
	ErrMissingAPIKey   = errors.New("OpenAI API key not set")
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

const (
	defaultEmbeddingModel     = "text-embedding-3-small"
	defaultEmbeddingDimension = 1536
	defaultAPIKeyEnv          = "OPENAI_API_KEY"

	// maxEmbeddingBatch is the most inputs OpenAI accepts in one request
	maxEmbeddingBatch = 2048
)

// OpenAIEmbedder turns utterance text into dense vectors with OpenAI's embeddings API
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
	cache     *cache.Embeddings
}

func newOpenAIEmbedder(spec ComponentSpec) (Component, error) {
	params := spec.Config.Params

	keyEnv := stringParam(params, "api_key_env", defaultAPIKeyEnv)
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, keyEnv)
	}

	dimension, err := intParam(params, "dimension", defaultEmbeddingDimension)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := stringParam(params, "base_url", ""); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	embedder := NewOpenAIEmbedder(stringParam(params, "model", defaultEmbeddingModel), dimension, opts...)

	if dir := stringParam(params, "cache_dir", ""); dir != "" {
		store, err := cache.NewBadger(cache.BadgerOptions{Dir: dir})
		if err != nil {
			return nil, err
		}
		embedder.UseCache(cache.NewEmbeddings(store, embedder.Model(), embedder.Dimension()))
		slog.Debug("[OpenAI Embedder] cache attached",
			"dir", dir,
			"model", embedder.Model(),
			"dimension", embedder.Dimension())
	}

	return embedder, nil
}

// NewOpenAIEmbedder creates an embedder with explicit client options
func NewOpenAIEmbedder(model string, dimension int, opts ...option.RequestOption) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}
}

// UseCache makes Embed consult c before calling the API
func (e *OpenAIEmbedder) UseCache(c *cache.Embeddings) {
	e.cache = c
}

// Close releases the embedding cache, if any
func (e *OpenAIEmbedder) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

// Model returns the embedding model identifier
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Dimension returns the embedding vector dimension
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed returns one vector per text, in input order.
// With a cache attached only uncached texts are sent to the API.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if e.cache == nil {
		return e.embed(ctx, texts)
	}

	vectors, missing, err := e.cache.Lookup(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	// Repeated texts, such as empty greeting turns, are embedded once
	var pending []string
	position := make(map[string]int, len(missing))
	for _, idx := range missing {
		if _, ok := position[texts[idx]]; !ok {
			position[texts[idx]] = len(pending)
			pending = append(pending, texts[idx])
		}
	}

	fresh, err := e.embed(ctx, pending)
	if err != nil {
		return nil, err
	}
	for _, idx := range missing {
		vectors[idx] = fresh[position[texts[idx]]]
	}

	if err := e.cache.Put(ctx, pending, fresh); err != nil {
		return nil, err
	}
	slog.Debug("[OpenAI Embedder] cache",
		"hits", len(texts)-len(missing),
		"misses", len(missing),
		"requested", len(pending))
	return vectors, nil
}

// embed splits texts into requests of at most maxEmbeddingBatch inputs
func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(texts))

		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		copy(vectors[start:], batch)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	// The API rejects empty strings; synthesized empty utterances become a single space
	input := make([]string, len(texts))
	for i, text := range texts {
		if text == "" {
			text = " "
		}
		input[i] = text
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: input,
		},
		Model:          e.model,
		Dimensions:     openai.Int(int64(e.dimension)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("%w: response index %d out of range", ErrEmbeddingFailed, idx)
		}
		vec := make([]float32, len(data.Embedding))
		for j, val := range data.Embedding {
			vec[j] = float32(val)
		}
		vectors[idx] = vec
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("%w: no embedding returned for item %d", ErrEmbeddingFailed, i)
		}
	}

	return vectors, nil
}

// Infer embeds strings or records' text field into []float32 items
func (e *OpenAIEmbedder) Infer(ctx context.Context, inputs []Batch) ([]Batch, error) {
	if err := expectInputs(ClassOpenAIEmbedder, inputs, 1); err != nil {
		return nil, err
	}

	texts := make([]string, len(inputs[0]))
	for i, item := range inputs[0] {
		text, err := textOf(item)
		if err != nil {
			return nil, err
		}
		texts[i] = text
	}

	vectors, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make(Batch, len(vectors))
	for i, vec := range vectors {
		out[i] = vec
	}
	return []Batch{out}, nil
}
