package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Yates-Labs/gobot/internal/dialog"
	"github.com/Yates-Labs/gobot/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChainerConfig(dictPath string) ChainerConfig {
	return ChainerConfig{
		In:  []string{"x"},
		InY: []string{"y"},
		Out: []string{"x_token_ids"},
		Pipe: []ComponentConfig{
			{
				ClassName: ClassSplitTokenizer,
				In:        []string{"x"},
				Out:       []string{"x_tokens"},
				Params:    map[string]any{"lowercase": true},
			},
			{
				ID:        "token_vocab",
				ClassName: ClassSimpleVocab,
				FitOn:     []string{"x_tokens"},
				In:        []string{"x_tokens"},
				Out:       []string{"x_token_ids"},
				SavePath:  dictPath,
				LoadPath:  dictPath,
			},
		},
	}
}

func trainBatch() (Batch, Batch) {
	x := Batch{
		dialog.Record{dialog.FieldText: "cheap food"},
		dialog.Record{dialog.FieldText: "Cheap restaurant south"},
		dialog.Record{dialog.FieldText: ""},
	}
	y := Batch{
		dialog.Record{dialog.FieldAct: "request_area"},
		dialog.Record{dialog.FieldAct: "api_call"},
		dialog.Record{dialog.FieldAct: "welcomemsg"},
	}
	return x, y
}

func TestChainer_FitInferSaveLoad(t *testing.T) {
	ctx := context.Background()
	dictPath := filepath.Join(t.TempDir(), "models", "token.dict")
	reg := NewDefaultRegistry()

	chainer, err := Build(testChainerConfig(dictPath), reg)
	require.NoError(t, err)

	x, y := trainBatch()
	require.NoError(t, chainer.Fit(ctx, []Batch{x}, []Batch{y}))

	comp, ok := chainer.Component("token_vocab")
	require.True(t, ok)
	vocab := comp.(*SimpleVocab)
	// <PAD>, <UNK>, cheap, food, restaurant, south
	assert.Equal(t, 6, vocab.Len())
	assert.Equal(t, "cheap", vocab.Tokens()[2])

	out, err := chainer.Infer(ctx, Batch{"cheap pizza"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []int{2, 1}, out[0][0])

	require.NoError(t, chainer.Save())

	// A fresh chainer restores the fitted vocabulary from disk
	restored, err := Build(testChainerConfig(dictPath), reg)
	require.NoError(t, err)
	require.NoError(t, restored.Load())

	again, err := restored.Infer(ctx, Batch{"cheap pizza"})
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestChainer_InferArity(t *testing.T) {
	chainer, err := Build(testChainerConfig(filepath.Join(t.TempDir(), "d")), NewDefaultRegistry())
	require.NoError(t, err)

	_, err = chainer.Infer(context.Background())
	assert.Error(t, err)

	err = chainer.Fit(context.Background(), []Batch{{}}, nil)
	assert.Error(t, err)
}

func TestChainer_LoadMissingFile(t *testing.T) {
	chainer, err := Build(testChainerConfig(filepath.Join(t.TempDir(), "missing.dict")), NewDefaultRegistry())
	require.NoError(t, err)

	assert.Error(t, chainer.Load())
}

func TestBuild_UnknownClass(t *testing.T) {
	cfg := testChainerConfig("")
	cfg.Pipe = append(cfg.Pipe, ComponentConfig{ClassName: "go_bot", FitOn: []string{"x", "y"}})

	_, err := Build(cfg, NewDefaultRegistry())
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownClass)
}

func TestBuild_InvalidPipe(t *testing.T) {
	cfg := testChainerConfig("")
	cfg.Out = []string{"y_predicted"}

	_, err := Build(cfg, NewDefaultRegistry())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// lengthComponent reports the size of the vocabulary it references
type lengthComponent struct {
	vocab *SimpleVocab
}

func (l *lengthComponent) Infer(ctx context.Context, inputs []Batch) ([]Batch, error) {
	out := make(Batch, len(inputs[0]))
	for i := range out {
		out[i] = l.vocab.Len()
	}
	return []Batch{out}, nil
}

func TestBuild_ResolvesReferences(t *testing.T) {
	reg := NewDefaultRegistry()
	reg.MustRegister("vocab_size", func(spec ComponentSpec) (Component, error) {
		vocab, ok := spec.Refs["token_vocab"].(*SimpleVocab)
		require.True(t, ok)
		return &lengthComponent{vocab: vocab}, nil
	})

	cfg := testChainerConfig(filepath.Join(t.TempDir(), "token.dict"))
	cfg.Pipe = append(cfg.Pipe, ComponentConfig{
		ClassName: "vocab_size",
		In:        []string{"x"},
		Out:       []string{"vocab_size"},
		Params:    map[string]any{"depth": "#token_vocab.__len__()"},
	})
	cfg.Out = []string{"vocab_size"}

	chainer, err := Build(cfg, reg)
	require.NoError(t, err)

	x, y := trainBatch()
	require.NoError(t, chainer.Fit(context.Background(), []Batch{x}, []Batch{y}))

	out, err := chainer.Infer(context.Background(), Batch{"anything"})
	require.NoError(t, err)
	assert.Equal(t, 6, out[0][0])
}

func TestChainer_ContextCancelled(t *testing.T) {
	chainer, err := Build(testChainerConfig(""), NewDefaultRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = chainer.Infer(ctx, Batch{"hi"})
	assert.ErrorIs(t, err, context.Canceled)
}
