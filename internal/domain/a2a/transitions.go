package a2a

// transitions is the legal state transition table. Cancel is handled
// separately: any non-terminal state may transition to canceled.
var transitions = map[TaskState]map[TaskState]bool{
	TaskStateSubmitted: {
		TaskStateWorking: true,
		// An agent may decline a task before starting work on it.
		TaskStateRejected: true,
	},
	TaskStateWorking: {
		TaskStateCompleted:     true,
		TaskStateFailed:        true,
		TaskStateInputRequired: true,
		TaskStateAuthRequired:  true,
	},
	// Interrupted states resume on a follow-up message with a matching
	// taskId/contextId.
	TaskStateInputRequired: {TaskStateWorking: true},
	TaskStateAuthRequired:  {TaskStateWorking: true},
}

// CanTransition reports whether moving from one state to another is legal.
// Terminal states accept no transitions.
func CanTransition(from, to TaskState) bool {
	if from.Terminal() {
		return false
	}
	if to == TaskStateCanceled {
		return true
	}
	return transitions[from][to]
}
