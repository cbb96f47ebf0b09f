package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Yates-Labs/gobot/internal/cache"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inputRecorder keeps the inputs of the last embeddings request and the
// size of every request
type inputRecorder struct {
	mu     sync.Mutex
	inputs []string
	sizes  []int
}

func (r *inputRecorder) set(inputs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = inputs
	if inputs != nil {
		r.sizes = append(r.sizes, len(inputs))
	}
}

func (r *inputRecorder) requestSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sizes
}

func (r *inputRecorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs
}

// fakeEmbeddings answers every request with one two-dimensional vector per
// input, returned in reverse order to exercise index mapping
func fakeEmbeddings(t *testing.T, seen *inputRecorder) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		seen.set(req.Input)

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), float64(len(req.Input[i]))},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func testEmbedder(url string) *OpenAIEmbedder {
	return NewOpenAIEmbedder("test-model", 2,
		option.WithBaseURL(url),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	seen := &inputRecorder{}
	server := fakeEmbeddings(t, seen)
	defer server.Close()

	vectors, err := testEmbedder(server.URL).Embed(context.Background(), []string{"cheap food", ""})
	require.NoError(t, err)

	assert.Equal(t, []string{"cheap food", " "}, seen.last())
	assert.Equal(t, [][]float32{{0, 10}, {1, 1}}, vectors)
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	vectors, err := testEmbedder("http://127.0.0.1:1").Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestOpenAIEmbedder_Infer(t *testing.T) {
	seen := &inputRecorder{}
	server := fakeEmbeddings(t, seen)
	defer server.Close()

	out, err := testEmbedder(server.URL).Infer(context.Background(), []Batch{{
		map[string]any{"text": "south"},
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []float32{0, 5}, out[0][0])
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testEmbedder(server.URL).Embed(context.Background(), []string{"hi"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewOpenAIEmbedder_FromParams(t *testing.T) {
	t.Setenv("GOBOT_TEST_KEY", "")

	_, err := newOpenAIEmbedder(ComponentSpec{Config: ComponentConfig{
		Params: map[string]any{"api_key_env": "GOBOT_TEST_KEY"},
	}})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	t.Setenv("GOBOT_TEST_KEY", "sk-test")
	comp, err := newOpenAIEmbedder(ComponentSpec{Config: ComponentConfig{
		Params: map[string]any{
			"api_key_env": "GOBOT_TEST_KEY",
			"model":       "text-embedding-3-large",
			"dimension":   uint64(256),
		},
	}})
	require.NoError(t, err)

	embedder := comp.(*OpenAIEmbedder)
	assert.Equal(t, "text-embedding-3-large", embedder.Model())
	assert.Equal(t, 256, embedder.Dimension())
}

func TestOpenAIEmbedder_Cache(t *testing.T) {
	seen := &inputRecorder{}
	server := fakeEmbeddings(t, seen)
	defer server.Close()

	store, err := cache.NewBadger(cache.BadgerOptions{InMemory: true})
	require.NoError(t, err)

	embedder := testEmbedder(server.URL)
	embedder.UseCache(cache.NewEmbeddings(store, embedder.Model(), embedder.Dimension()))
	defer embedder.Close()

	first, err := embedder.Embed(context.Background(), []string{"cheap", "south"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cheap", "south"}, seen.last())

	seen.set(nil)
	second, err := embedder.Embed(context.Background(), []string{"south", "north", "cheap"})
	require.NoError(t, err)

	// Only the uncached text reaches the API
	assert.Equal(t, []string{"north"}, seen.last())
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, []float32{0, 5}, second[1])
	assert.Equal(t, first[0], second[2])
}

func TestNewOpenAIEmbedder_CacheDir(t *testing.T) {
	t.Setenv("GOBOT_TEST_KEY", "sk-test")

	comp, err := newOpenAIEmbedder(ComponentSpec{Config: ComponentConfig{
		Params: map[string]any{
			"api_key_env": "GOBOT_TEST_KEY",
			"cache_dir":   t.TempDir(),
		},
	}})
	require.NoError(t, err)

	closer, ok := comp.(Closer)
	require.True(t, ok)
	assert.NoError(t, closer.Close())
}

func TestOpenAIEmbedder_SplitsLargeInputs(t *testing.T) {
	seen := &inputRecorder{}
	server := fakeEmbeddings(t, seen)
	defer server.Close()

	texts := make([]string, 3000)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}

	vectors, err := testEmbedder(server.URL).Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3000)

	assert.Equal(t, []int{2048, 952}, seen.requestSizes())
	assert.Equal(t, []float32{0, 2}, vectors[0])
	assert.Equal(t, []float32{2047, 5}, vectors[2047])
	assert.Equal(t, []float32{0, 5}, vectors[2048])
	assert.Equal(t, []float32{951, 5}, vectors[2999])
}

func TestOpenAIEmbedder_CacheSendsRepeatedTextsOnce(t *testing.T) {
	seen := &inputRecorder{}
	server := fakeEmbeddings(t, seen)
	defer server.Close()

	store, err := cache.NewBadger(cache.BadgerOptions{InMemory: true})
	require.NoError(t, err)

	embedder := testEmbedder(server.URL)
	embedder.UseCache(cache.NewEmbeddings(store, embedder.Model(), embedder.Dimension()))
	defer embedder.Close()

	vectors, err := embedder.Embed(context.Background(), []string{"", "hi", "", "hi", ""})
	require.NoError(t, err)

	assert.Equal(t, []string{" ", "hi"}, seen.last())
	assert.Equal(t, []int{2}, seen.requestSizes())
	assert.Equal(t, []float32{0, 1}, vectors[0])
	assert.Equal(t, []float32{1, 2}, vectors[1])
	assert.Equal(t, vectors[0], vectors[2])
	assert.Equal(t, vectors[0], vectors[4])
	assert.Equal(t, vectors[1], vectors[3])
}
