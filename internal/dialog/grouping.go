package dialog

import (
	"errors"
	"fmt"
)

// Common errors for grouping operations
var (
	ErrMissingAction   = errors.New("response record has no action field")
	ErrInvalidDoneFlag = errors.New("episode done flag is not a boolean")
	ErrAlreadyGrouped  = errors.New("data is already grouped into dialogues")
)

// BoundaryMode selects which turn of a dialogue carries the done flag
type BoundaryMode string

const (
	// BoundaryStart: the flag marks the first turn of a dialogue (DSTC2 readers)
	BoundaryStart BoundaryMode = "start"

	// BoundaryEnd: the flag marks the last turn of a dialogue
	BoundaryEnd BoundaryMode = "end"
)

// GroupingConfig names the record fields the grouper reads and writes
type GroupingConfig struct {
	// Field on x marking a dialogue boundary
	DoneField string

	// Whether the flagged turn opens or closes its dialogue
	Boundary BoundaryMode

	// Field injected into x holding the previous turn's system action
	PrevActField string

	// Field on y holding the system action
	ActField string

	// Prefix for generated dialogue IDs (D1, D2, ...)
	IDPrefix string
}

// DefaultGroupingConfig returns the DSTC2 field names
func DefaultGroupingConfig() GroupingConfig {
	return GroupingConfig{
		DoneField:    FieldEpisodeDone,
		Boundary:     BoundaryStart,
		PrevActField: FieldPrevRespAct,
		ActField:     FieldAct,
		IDPrefix:     DefaultIDPrefix,
	}
}

// Group regroups a flat, ordered turn stream into dialogues using the default field names
func Group(pairs []Pair) ([]Dialogue, error) {
	return GroupWithConfig(pairs, DefaultGroupingConfig())
}

// GroupWithConfig regroups a flat, ordered turn stream into dialogues.
//
// With BoundaryStart a new dialogue opens whenever x carries a true done flag;
// with BoundaryEnd the flagged turn is the last one of its dialogue. In both
// modes the start of the stream opens a dialogue implicitly. The done flag is
// stripped from every output x, and each x gains the action of the previous
// response in the same dialogue (nil for the first turn). Input records are
// copied, never mutated.
func GroupWithConfig(pairs []Pair, config GroupingConfig) ([]Dialogue, error) {
	switch config.Boundary {
	case BoundaryStart, BoundaryEnd:
	case "":
		config.Boundary = BoundaryStart
	default:
		return nil, fmt.Errorf("unknown boundary mode: %q", config.Boundary)
	}

	dialogues := []Dialogue{}
	var current *Dialogue
	var prevAct any

	closeCurrent := func() {
		if current != nil {
			dialogues = append(dialogues, *current)
			current = nil
		}
	}

	for i, pair := range pairs {
		done, err := doneFlag(pair.X, config.DoneField)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}

		if done && config.Boundary == BoundaryStart {
			closeCurrent()
		}
		if current == nil {
			current = &Dialogue{
				ID: fmt.Sprintf(dialogueIDPattern, config.IDPrefix, len(dialogues)+1),
			}
			prevAct = nil
		}

		act, ok := pair.Y[config.ActField]
		if !ok {
			return nil, fmt.Errorf("turn %d: %w (%q)", i, ErrMissingAction, config.ActField)
		}

		x := pair.X.Clone()
		delete(x, config.DoneField)
		x[config.PrevActField] = prevAct

		current.X = append(current.X, x)
		current.Y = append(current.Y, pair.Y.Clone())
		prevAct = act

		if done && config.Boundary == BoundaryEnd {
			closeCurrent()
		}
	}

	closeCurrent()

	return dialogues, nil
}

// doneFlag reads the episode boundary flag; a missing flag means false
func doneFlag(x Record, field string) (bool, error) {
	v, ok := x[field]
	if !ok || v == nil {
		return false, nil
	}

	done, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q has type %T", ErrInvalidDoneFlag, field, v)
	}
	return done, nil
}
