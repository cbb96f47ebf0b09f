// Package dstc2 reads the DSTC2 (Dialogue State Tracking Challenge 2) corpus
// in its jsonlist form: one turn object per line, dialogues separated by blank lines.
package dstc2

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Yates-Labs/gobot/internal/dialog"
	"github.com/Yates-Labs/gobot/internal/ingest"
)

// Common errors for reading DSTC2 files
var (
	ErrUnknownSpeaker   = errors.New("unknown speaker")
	ErrConsecutiveUsers = errors.New("user turn without system response")
)

// Speaker identifiers used by the jsonlist files
const (
	SpeakerUser   = 1
	SpeakerSystem = 2
)

// maxLineSize bounds a single turn line; api_call turns carry full db results
const maxLineSize = 4 * 1024 * 1024

// DefaultFiles maps split names to DSTC2 file names
var DefaultFiles = map[string]string{
	ingest.SplitTrain: "dstc2-trn.jsonlist",
	ingest.SplitValid: "dstc2-val.jsonlist",
	ingest.SplitTest:  "dstc2-tst.jsonlist",
}

// Reader reads DSTC2 jsonlist files into flat turn pairs
type Reader struct {
	Files map[string]string
}

// NewReader creates a reader for the default DSTC2 file layout
func NewReader() *Reader {
	return &Reader{Files: DefaultFiles}
}

// Read loads every split from dataPath
func (r *Reader) Read(ctx context.Context, dataPath string) (ingest.Dataset, error) {
	data := make(ingest.Dataset, len(ingest.Splits))

	for _, split := range ingest.Splits {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled before reading %s: %w", split, err)
		}

		name, ok := r.Files[split]
		if !ok {
			return nil, fmt.Errorf("no file configured for split %q", split)
		}

		path := filepath.Join(dataPath, name)
		pairs, err := ReadFile(path)
		if err != nil {
			return nil, err
		}

		slog.Debug("[DSTC2 Reader] read split", "split", split, "path", path, "turns", len(pairs))
		data[split] = pairs
	}

	return data, nil
}

// ReadFile parses one jsonlist file into flat turn pairs
func ReadFile(path string) ([]dialog.Pair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	dialogues, err := parseDialogues(file, path)
	if err != nil {
		return nil, err
	}

	var pairs []dialog.Pair
	for i, turns := range dialogues {
		dialoguePairs, err := pairTurns(turns)
		if err != nil {
			return nil, fmt.Errorf("%s: dialogue %d: %w", path, i+1, err)
		}
		pairs = append(pairs, dialoguePairs...)
	}

	return pairs, nil
}

// parseDialogues splits the file on blank lines and decodes each turn
func parseDialogues(r io.Reader, path string) ([][]map[string]any, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var dialogues [][]map[string]any
	var current []map[string]any
	line := 0

	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())

		// Blank line closes the current dialogue
		if len(raw) == 0 {
			if len(current) > 0 {
				dialogues = append(dialogues, current)
				current = nil
			}
			continue
		}

		var turn map[string]any
		if err := json.Unmarshal(raw, &turn); err != nil {
			return nil, fmt.Errorf("%s:%d: failed to parse turn: %w", path, line, err)
		}
		current = append(current, turn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if len(current) > 0 {
		dialogues = append(dialogues, current)
	}

	return dialogues, nil
}

// pairTurns zips the user and system turns of one dialogue.
// A system turn with no pending user turn is paired with an empty utterance,
// and the first pair is flagged as the dialogue boundary.
func pairTurns(turns []map[string]any) ([]dialog.Pair, error) {
	var pairs []dialog.Pair
	var pending dialog.Record

	for i, turn := range turns {
		speaker, err := speakerOf(turn)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}

		switch speaker {
		case SpeakerUser:
			if pending != nil {
				return nil, fmt.Errorf("turn %d: %w", i, ErrConsecutiveUsers)
			}
			pending = userRecord(turn)
		case SpeakerSystem:
			if pending == nil {
				pending = dialog.Record{
					dialog.FieldText:    "",
					dialog.FieldIntents: []any{},
				}
			}
			if len(pairs) == 0 {
				pending[dialog.FieldEpisodeDone] = true
			}
			pairs = append(pairs, dialog.Pair{X: pending, Y: systemRecord(turn)})
			pending = nil
		}
	}

	if pending != nil {
		slog.Debug("[DSTC2 Reader] dropping trailing user turn", "text", pending.Text())
	}

	return pairs, nil
}

// speakerOf reads the numeric speaker field
func speakerOf(turn map[string]any) (int, error) {
	switch v := turn["speaker"].(type) {
	case float64:
		if v == SpeakerUser || v == SpeakerSystem {
			return int(v), nil
		}
	case string:
		switch strings.ToLower(v) {
		case "1", "user":
			return SpeakerUser, nil
		case "2", "system":
			return SpeakerSystem, nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownSpeaker, turn["speaker"])
}

// userRecord builds x from a user turn
func userRecord(turn map[string]any) dialog.Record {
	x := dialog.Record{
		dialog.FieldText:    stringField(turn, "text"),
		dialog.FieldIntents: turn["dialog_acts"],
	}
	if x[dialog.FieldIntents] == nil {
		x[dialog.FieldIntents] = []any{}
	}
	if db, ok := turn["db_result"]; ok && db != nil {
		x[dialog.FieldDBResult] = db
	}
	return x
}

// systemRecord builds y from a system turn; a missing act is left missing
func systemRecord(turn map[string]any) dialog.Record {
	y := dialog.Record{
		dialog.FieldText: stringField(turn, "text"),
	}
	if act, ok := turn["act"]; ok {
		y[dialog.FieldAct] = act
	}
	if slots, ok := turn["slots"]; ok && slots != nil {
		y[dialog.FieldSlots] = slots
	}
	return y
}

func stringField(turn map[string]any, key string) string {
	s, _ := turn[key].(string)
	return s
}
