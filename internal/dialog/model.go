package dialog

// Record is a single interaction or response record as produced by a dataset reader.
// Interaction records (x) carry the user side of a turn, response records (y) the system side.
type Record map[string]any

// Default field names used by DSTC2-style datasets
const (
	FieldText        = "text"
	FieldEpisodeDone = "episode_done"
	FieldPrevRespAct = "prev_resp_act"
	FieldAct         = "act"
	FieldIntents     = "intents"
	FieldSlots       = "slots"
	FieldDBResult    = "db_result"
)

// DefaultIDPrefix prefixes generated dialogue IDs
const DefaultIDPrefix = "D"

const dialogueIDPattern = "%s%d"

// IsNoAction reports whether v is the previous action of a dialogue's first
// turn. The first turn carries prev_resp_act with a nil value.
func IsNoAction(v any) bool {
	return v == nil
}

// Pair is one flat turn: the user input and the system response that followed it
type Pair struct {
	X Record `json:"x"`
	Y Record `json:"y"`
}

// Dialogue is one complete conversation as two parallel turn sequences.
// X[i] and Y[i] always belong to the same turn.
type Dialogue struct {
	ID string   `json:"id"`
	X  []Record `json:"x"`
	Y  []Record `json:"y"`
}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Text returns the record's text field, or an empty string when it is missing or not a string
func (r Record) Text() string {
	s, _ := r[FieldText].(string)
	return s
}
