package dialog

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ExportFormat represents supported export formats
type ExportFormat string

const (
	FormatJSON    ExportFormat = "json"
	FormatYAML    ExportFormat = "yaml"
	FormatMsgpack ExportFormat = "msgpack"
)

// Export is the envelope written by ExportDialogues
type Export struct {
	ID         string           `json:"id" yaml:"id"`
	Split      string           `json:"split" yaml:"split"`
	ExportedAt time.Time        `json:"exported_at" yaml:"exported_at"`
	Count      int              `json:"count" yaml:"count"`
	TurnCount  int              `json:"turn_count" yaml:"turn_count"`
	Dialogues  []DialogueExport `json:"dialogues" yaml:"dialogues"`
}

// DialogueExport represents a dialogue flattened into readable turns
type DialogueExport struct {
	ID        string       `json:"id" yaml:"id"`
	TurnCount int          `json:"turn_count" yaml:"turn_count"`
	Actions   []string     `json:"actions" yaml:"actions"`
	Turns     []TurnExport `json:"turns" yaml:"turns"`
}

// TurnExport is one user/system exchange within an exported dialogue
type TurnExport struct {
	User       string `json:"user" yaml:"user"`
	PrevAction string `json:"prev_action,omitempty" yaml:"prev_action,omitempty"`
	Action     string `json:"action" yaml:"action"`
	System     string `json:"system" yaml:"system"`
}

// ExportDialogues exports dialogues of one split in the requested format
func ExportDialogues(dialogues []Dialogue, split, format string, writer io.Writer) error {
	exportFormat := ExportFormat(strings.ToLower(format))

	switch exportFormat {
	case FormatJSON, FormatYAML, FormatMsgpack:
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, yaml, msgpack)", format)
	}

	export := NewExport(dialogues, split)

	switch exportFormat {
	case FormatYAML:
		return exportYAML(export, writer)
	case FormatMsgpack:
		return exportMsgpack(export, writer)
	default:
		return exportJSON(export, writer)
	}
}

// NewExport builds the export envelope for dialogues of one split
func NewExport(dialogues []Dialogue, split string) Export {
	export := Export{
		ID:         uuid.NewString(),
		Split:      split,
		ExportedAt: time.Now().UTC(),
		Count:      len(dialogues),
		TurnCount:  TurnCount(dialogues),
		Dialogues:  make([]DialogueExport, len(dialogues)),
	}
	for i := range dialogues {
		export.Dialogues[i] = flattenDialogue(&dialogues[i])
	}
	return export
}

// flattenDialogue converts a Dialogue into its export form
func flattenDialogue(d *Dialogue) DialogueExport {
	turns := make([]TurnExport, d.Len())
	for i := range turns {
		turns[i] = TurnExport{
			User:       d.X[i].Text(),
			PrevAction: actionKey(d.X[i][FieldPrevRespAct]),
			Action:     actionKey(d.Y[i][FieldAct]),
			System:     d.Y[i].Text(),
		}
	}

	return DialogueExport{
		ID:        d.ID,
		TurnCount: d.Len(),
		Actions:   d.UniqueActions(),
		Turns:     turns,
	}
}

// exportJSON writes the export as indented JSON
func exportJSON(export Export, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// exportYAML writes the export as a YAML document
func exportYAML(export Export, writer io.Writer) error {
	data, err := yaml.Marshal(export)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	_, err = writer.Write(data)
	return err
}

// exportMsgpack writes the export as msgpack using the json field names
func exportMsgpack(export Export, writer io.Writer) error {
	encoder := msgpack.NewEncoder(writer)
	encoder.SetCustomStructTag("json")
	return encoder.Encode(export)
}
