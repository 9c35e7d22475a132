package loop

// State is the controller's position in a run.
type State int

const (
	// AwaitingModel: the next step is a backend call.
	AwaitingModel State = iota
	// DispatchingTools: tool invocations from the last reply are executing.
	DispatchingTools
	// Done: the run produced an answer.
	Done
	// Aborted: the run failed and produced no answer.
	Aborted
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "awaiting_model"
	case DispatchingTools:
		return "dispatching_tools"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s == Done || s == Aborted
}
