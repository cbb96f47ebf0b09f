package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
)

// ErrInvalidQuery is returned for jq expressions that do not parse
var ErrInvalidQuery = errors.New("invalid jq query")

// QueryDialogues runs a jq expression over the export envelope of dialogues
// and writes every result as one JSON line
func QueryDialogues(ctx context.Context, dialogues []Dialogue, split, expr string, writer io.Writer) error {
	query, err := gojq.Parse(expr)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidQuery, expr, err)
	}

	// gojq only walks plain JSON values
	data, err := json.Marshal(NewExport(dialogues, split))
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("unmarshal export: %w", err)
	}

	encoder := json.NewEncoder(writer)
	iter := query.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := v.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				return nil
			}
			return fmt.Errorf("jq %q: %w", expr, err)
		}
		if err := encoder.Encode(v); err != nil {
			return err
		}
	}
}
