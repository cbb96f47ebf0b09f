package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Yates-Labs/gobot/internal/ingest"
	"github.com/Yates-Labs/gobot/internal/ingest/dstc2"
	"github.com/Yates-Labs/gobot/internal/iterator"
	"github.com/Yates-Labs/gobot/internal/pipeline"
	"github.com/Yates-Labs/gobot/internal/registry"
)

const testDialogues = `{"speaker": 2, "text": "Hello, welcome to the Cambridge restaurant system.", "act": "welcomemsg"}
{"speaker": 1, "text": "cheap restaurant", "dialog_acts": [{"act": "inform", "slots": [["pricerange", "cheap"]]}]}
{"speaker": 2, "text": "What part of town do you have in mind?", "act": "request_area"}
{"speaker": 1, "text": "south", "dialog_acts": [{"act": "inform", "slots": [["area", "south"]]}]}
{"speaker": 2, "text": "api_call area=south pricerange=cheap", "act": "api_call"}

{"speaker": 1, "text": "hi", "dialog_acts": [{"act": "hello", "slots": []}]}
{"speaker": 2, "text": "Hello!", "act": "welcomemsg"}
`

func createTestConfig(t *testing.T) *pipeline.Config {
	t.Helper()

	dataDir := t.TempDir()
	for _, name := range dstc2.DefaultFiles {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(testDialogues), 0644); err != nil {
			t.Fatalf("failed to write fixture: %v", err)
		}
	}

	seed := int64(1)
	dictPath := filepath.Join(t.TempDir(), "token.dict")

	return &pipeline.Config{
		DatasetReader:   pipeline.ReaderConfig{ClassName: ClassDSTC2Reader, DataPath: dataDir},
		DatasetIterator: pipeline.IteratorConfig{ClassName: iterator.ClassDialogIterator, Seed: &seed},
		Chainer: pipeline.ChainerConfig{
			In:  []string{"x"},
			InY: []string{"y"},
			Out: []string{"x_token_ids"},
			Pipe: []pipeline.ComponentConfig{
				{
					ClassName: pipeline.ClassSplitTokenizer,
					In:        []string{"x"},
					Out:       []string{"x_tokens"},
				},
				{
					ID:        "token_vocab",
					ClassName: pipeline.ClassSimpleVocab,
					FitOn:     []string{"x_tokens"},
					In:        []string{"x_tokens"},
					Out:       []string{"x_token_ids"},
					SavePath:  dictPath,
					LoadPath:  dictPath,
				},
			},
		},
	}
}

func TestPrepareDataset(t *testing.T) {
	cfg := createTestConfig(t)

	it, err := PrepareDataset(context.Background(), cfg, NewDefaultReaders())
	if err != nil {
		t.Fatalf("PrepareDataset failed: %v", err)
	}

	for _, split := range ingest.Splits {
		dialogues, err := it.Dialogues(split)
		if err != nil {
			t.Fatalf("Dialogues(%s) failed: %v", split, err)
		}
		if len(dialogues) != 2 {
			t.Errorf("split %s: expected 2 dialogues, got %d", split, len(dialogues))
		}
	}

	xs, _, err := it.Instances(ingest.SplitTrain)
	if err != nil {
		t.Fatalf("Instances failed: %v", err)
	}
	if len(xs[0]) != 3 || len(xs[1]) != 1 {
		t.Errorf("Expected dialogue lengths 3 and 1, got %d and %d", len(xs[0]), len(xs[1]))
	}
	if xs[0][1]["prev_resp_act"] != "welcomemsg" {
		t.Errorf("Expected prev_resp_act welcomemsg, got %v", xs[0][1]["prev_resp_act"])
	}
}

func TestPrepareDataset_ContextCancellation(t *testing.T) {
	cfg := createTestConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := PrepareDataset(ctx, cfg, NewDefaultReaders())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPrepareDataset_UnknownClasses(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.DatasetReader.ClassName = "basic_classification_reader"

	_, err := PrepareDataset(context.Background(), cfg, NewDefaultReaders())
	if !errors.Is(err, registry.ErrUnknownClass) {
		t.Errorf("Expected ErrUnknownClass for reader, got %v", err)
	}

	cfg = createTestConfig(t)
	cfg.DatasetIterator.ClassName = "basic_classification_iterator"

	_, err = PrepareDataset(context.Background(), cfg, NewDefaultReaders())
	if !errors.Is(err, registry.ErrUnknownClass) {
		t.Errorf("Expected ErrUnknownClass for iterator, got %v", err)
	}
}

func TestPrepareDataset_MissingData(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.DatasetReader.DataPath = filepath.Join(t.TempDir(), "missing")

	_, err := PrepareDataset(context.Background(), cfg, NewDefaultReaders())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestFitPipeline_ThenInferTexts(t *testing.T) {
	ctx := context.Background()
	cfg := createTestConfig(t)
	reg := pipeline.NewDefaultRegistry()

	it, err := PrepareDataset(ctx, cfg, NewDefaultReaders())
	if err != nil {
		t.Fatalf("PrepareDataset failed: %v", err)
	}

	chainer, err := FitPipeline(ctx, cfg, it, reg)
	if err != nil {
		t.Fatalf("FitPipeline failed: %v", err)
	}
	defer chainer.Close()

	comp, _ := chainer.Component("token_vocab")
	vocab := comp.(*pipeline.SimpleVocab)
	want := []string{"<PAD>", "<UNK>", "cheap", "hi", "restaurant", "south"}
	if !reflect.DeepEqual(vocab.Tokens(), want) {
		t.Errorf("Tokens() = %v, want %v", vocab.Tokens(), want)
	}

	if _, err := os.Stat(cfg.Chainer.Pipe[1].SavePath); err != nil {
		t.Fatalf("Expected saved vocabulary: %v", err)
	}

	outputs, err := InferTexts(ctx, cfg, reg, []string{"cheap pizza", "south"})
	if err != nil {
		t.Fatalf("InferTexts failed: %v", err)
	}
	if len(outputs) != 1 || len(outputs[0]) != 2 {
		t.Fatalf("Expected one output batch of two items, got %v", outputs)
	}
	if !reflect.DeepEqual(outputs[0][0], []int{2, 1}) {
		t.Errorf("Expected [2 1], got %v", outputs[0][0])
	}
	if !reflect.DeepEqual(outputs[0][1], []int{5}) {
		t.Errorf("Expected [5], got %v", outputs[0][1])
	}
}

func TestInferTexts_NotFitted(t *testing.T) {
	cfg := createTestConfig(t)

	_, err := InferTexts(context.Background(), cfg, pipeline.NewDefaultRegistry(), []string{"hi"})
	if err == nil {
		t.Error("Expected error when the vocabulary was never saved")
	}
}

func TestFitPipeline_UnsupportedChannels(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Chainer.In = []string{"x", "x_extra"}

	_, err := FitPipeline(context.Background(), cfg, nil, pipeline.NewDefaultRegistry())
	if !errors.Is(err, ErrUnsupportedChannels) {
		t.Errorf("Expected ErrUnsupportedChannels, got %v", err)
	}
}

func TestCheckClasses(t *testing.T) {
	cfg := createTestConfig(t)
	readers := NewDefaultReaders()
	reg := pipeline.NewDefaultRegistry()

	if err := CheckClasses(cfg, readers, reg); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	cfg.Chainer.Pipe = append(cfg.Chainer.Pipe, pipeline.ComponentConfig{ClassName: "go_bot"})
	err := CheckClasses(cfg, readers, reg)
	if !errors.Is(err, registry.ErrUnknownClass) {
		t.Errorf("Expected ErrUnknownClass, got %v", err)
	}
}

func TestDownload_SkipsCompleted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".done"), []byte("ok\n"), 0644); err != nil {
		t.Fatalf("failed to write marker: %v", err)
	}

	cfg := &pipeline.Config{Metadata: pipeline.Metadata{
		Download: []pipeline.DownloadSpec{{URL: "http://127.0.0.1:1/never.tar.gz", Subdir: dir}},
	}}
	if err := Download(context.Background(), cfg, nil); err != nil {
		t.Errorf("Expected completed download to be skipped, got %v", err)
	}
}
