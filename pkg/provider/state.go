package provider

// State is a step of a single Measure call.
type State string

const (
	Unchecked       State = "UNCHECKED"
	ResolvingServer State = "RESOLVING_SERVER"
	Invoking        State = "INVOKING"
	Result          State = "RESULT"
	Rejected        State = "REJECTED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Result || s == Rejected
}

// next lists the legal successors of each state.
var next = map[State][]State{
	Unchecked:       {ResolvingServer, Rejected},
	ResolvingServer: {Invoking, Rejected},
	Invoking:        {Result, Rejected},
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
