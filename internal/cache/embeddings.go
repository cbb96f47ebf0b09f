package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

const embeddingKeyPrefix = "emb"

// Embeddings caches embedding vectors per model, dimension and text
type Embeddings struct {
	store     Store
	model     string
	dimension int
}

// NewEmbeddings wraps store for vectors produced by one model configuration
func NewEmbeddings(store Store, model string, dimension int) *Embeddings {
	return &Embeddings{store: store, model: model, dimension: dimension}
}

func (e *Embeddings) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return embeddingKeyPrefix + ":" + e.model + ":" + strconv.Itoa(e.dimension) + ":" + hex.EncodeToString(sum[:])
}

// Lookup returns one slot per text, nil where the text is not cached, and
// the indices of the texts that were missing
func (e *Embeddings) Lookup(ctx context.Context, texts []string) ([][]float32, []int, error) {
	vectors := make([][]float32, len(texts))
	var missing []int

	for i, text := range texts {
		data, err := e.store.Get(ctx, e.key(text))
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, i)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("cache: get embedding: %w", err)
		}

		var vec []float32
		if err := msgpack.Unmarshal(data, &vec); err != nil {
			return nil, nil, fmt.Errorf("cache: decode embedding: %w", err)
		}
		vectors[i] = vec
	}

	return vectors, missing, nil
}

// Put stores vectors[i] as the embedding of texts[i]
func (e *Embeddings) Put(ctx context.Context, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("cache: %d texts but %d vectors", len(texts), len(vectors))
	}

	entries := make([]Entry, len(texts))
	for i, text := range texts {
		data, err := msgpack.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("cache: encode embedding: %w", err)
		}
		entries[i] = Entry{Key: e.key(text), Value: data}
	}
	return e.store.BatchSet(ctx, entries)
}

// Close closes the underlying store
func (e *Embeddings) Close() error {
	return e.store.Close()
}
