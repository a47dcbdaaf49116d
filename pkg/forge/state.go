package forge

// State is a pipeline stage. A run moves through the states strictly in
// declaration order.
type State int

const (
	Idle State = iota
	Retrieving
	Refining
	GeneratingOriginal
	GeneratingRefined
	Evaluating
	Complete
)

var stateNames = [...]string{
	Idle:               "idle",
	Retrieving:         "retrieving",
	Refining:           "refining",
	GeneratingOriginal: "generating_original",
	GeneratingRefined:  "generating_refined",
	Evaluating:         "evaluating",
	Complete:           "complete",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Step is the 1-based position of a working state, 0 for Idle and Complete.
func (s State) Step() int {
	if s <= Idle || s >= Complete {
		return 0
	}
	return int(s)
}

// Steps is the number of working states.
const Steps = int(Complete) - 1

// Observer is notified when a run enters a state. It is called from the
// goroutine running the pipeline.
type Observer func(State)
