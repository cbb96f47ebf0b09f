package dialog

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// ErrInvariant is returned when a dialogue breaks the grouping invariants
var ErrInvariant = errors.New("dialogue invariant violated")

// Len returns the number of turns in the dialogue
func (d *Dialogue) Len() int {
	return len(d.X)
}

// Actions returns the system actions of the dialogue in turn order
func (d *Dialogue) Actions() []string {
	actions := make([]string, len(d.Y))
	for i, y := range d.Y {
		actions[i] = actionKey(y[FieldAct])
	}
	return actions
}

// UniqueActions returns the distinct system actions in order of first appearance
func (d *Dialogue) UniqueActions() []string {
	seen := make(map[string]bool)
	var unique []string
	for _, act := range d.Actions() {
		if !seen[act] {
			seen[act] = true
			unique = append(unique, act)
		}
	}
	return unique
}

// FirstUserText returns the first non-empty user utterance, skipping the
// synthesized empty turn that precedes a system greeting
func (d *Dialogue) FirstUserText() string {
	for _, x := range d.X {
		if text := x.Text(); text != "" {
			return text
		}
	}
	return ""
}

// Validate checks the grouping invariants using the default field names
func (d *Dialogue) Validate() error {
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("%w: dialogue %s has %d inputs and %d outputs", ErrInvariant, d.ID, len(d.X), len(d.Y))
	}

	for i, x := range d.X {
		if _, ok := x[FieldEpisodeDone]; ok {
			return fmt.Errorf("%w: dialogue %s turn %d still carries %q", ErrInvariant, d.ID, i, FieldEpisodeDone)
		}

		prev, ok := x[FieldPrevRespAct]
		if !ok {
			return fmt.Errorf("%w: dialogue %s turn %d has no %q", ErrInvariant, d.ID, i, FieldPrevRespAct)
		}

		if i == 0 {
			if !IsNoAction(prev) {
				return fmt.Errorf("%w: dialogue %s turn 0 previous action is %v, want none", ErrInvariant, d.ID, prev)
			}
			continue
		}
		if want := d.Y[i-1][FieldAct]; !reflect.DeepEqual(prev, want) {
			return fmt.Errorf("%w: dialogue %s turn %d previous action is %v, want %v", ErrInvariant, d.ID, i, prev, want)
		}
	}

	return nil
}

// TurnCount returns the total number of turns across dialogues
func TurnCount(dialogues []Dialogue) int {
	total := 0
	for i := range dialogues {
		total += dialogues[i].Len()
	}
	return total
}

// ActionCounts tallies system actions across dialogues
func ActionCounts(dialogues []Dialogue) map[string]int {
	counts := make(map[string]int)
	for i := range dialogues {
		for _, act := range dialogues[i].Actions() {
			counts[act]++
		}
	}
	return counts
}

// SortedActions returns the actions of counts ordered by descending frequency, then name
func SortedActions(counts map[string]int) []string {
	actions := make([]string, 0, len(counts))
	for act := range counts {
		actions = append(actions, act)
	}
	sort.Slice(actions, func(i, j int) bool {
		if counts[actions[i]] != counts[actions[j]] {
			return counts[actions[i]] > counts[actions[j]]
		}
		return actions[i] < actions[j]
	})
	return actions
}

// actionKey renders an action value as a string key
func actionKey(v any) string {
	switch act := v.(type) {
	case nil:
		return ""
	case string:
		return act
	default:
		return fmt.Sprint(act)
	}
}
