// Package fsm is the deterministic finite-state machine over batches:
// the closed state/event enumerations, the transition table, and the
// terminal-state predicate. Grounded on the teacher's closed status-enum
// pattern (internal/domain/entities/deposit_status.go,
// withdrawal_entities.go — State as a string-backed type with a
// transition map and IsTerminal/CanTransitionTo helpers) and on
// original_source/app/core/fsm.py's ALLOWED_TRANSITIONS table.
package fsm

// State is a closed enumeration of batch lifecycle states.
type State string

const (
	StateCreated           State = "CREATED"
	StateInProgress        State = "IN_PROGRESS"
	StateAwaitingApproval  State = "AWAITING_APPROVAL"
	StateApproved          State = "APPROVED"
	StateCompleted         State = "COMPLETED"
	StateViolated          State = "VIOLATED"
	StateRejected          State = "REJECTED"
)

// Event is a closed enumeration of commanded lifecycle transitions.
type Event string

const (
	EventStartBatch      Event = "start_batch"
	EventRequestApproval Event = "request_approval"
	EventApproveStep     Event = "approve_step"
	EventProgressStep    Event = "progress_step"
	EventRejectBatch     Event = "reject_batch"

	// EventResolveViolation labels an AuditLog row for a violation
	// resolution (spec.md §3). It names no row in the transition table
	// below and Next never admits it — a batch never transitions because
	// a violation was resolved.
	EventResolveViolation Event = "resolve_violation"
)

// terminalStates is the closed, absorbing set: once a batch reaches one
// of these, no further transition is ever admitted (spec.md I1).
var terminalStates = map[State]bool{
	StateCompleted: true,
	StateViolated:  true,
	StateRejected:  true,
}

// IsTerminal reports whether state admits no outgoing transition.
func IsTerminal(state State) bool {
	return terminalStates[state]
}

type transitionKey struct {
	from  State
	event Event
}

// transitions is the FSM's entire structural closure: any (state, event)
// pair absent from this table is INVALID_FSM_TRANSITION, full stop.
var transitions = map[transitionKey]State{
	{StateCreated, EventStartBatch}:           StateInProgress,
	{StateInProgress, EventRequestApproval}:   StateAwaitingApproval,
	{StateAwaitingApproval, EventApproveStep}: StateApproved,
	{StateApproved, EventProgressStep}:        StateInProgress,
	{StateInProgress, EventProgressStep}:      StateCompleted,
	{StateCreated, EventRejectBatch}:          StateRejected,
	{StateInProgress, EventRejectBatch}:       StateRejected,
}

// Next returns the target state for (current, event) and whether that
// pair is in the transition table at all.
func Next(current State, event Event) (State, bool) {
	next, ok := transitions[transitionKey{current, event}]
	return next, ok
}

// ValidStates and ValidEvents support boundary parsing (an HTTP
// collaborator's raw strings must round-trip through these, never be
// trusted as-is).
var ValidStates = map[State]bool{
	StateCreated: true, StateInProgress: true, StateAwaitingApproval: true,
	StateApproved: true, StateCompleted: true, StateViolated: true, StateRejected: true,
}

var ValidEvents = map[Event]bool{
	EventStartBatch: true, EventRequestApproval: true, EventApproveStep: true,
	EventProgressStep: true, EventRejectBatch: true,
}
