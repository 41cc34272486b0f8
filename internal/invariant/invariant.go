// Package invariant runs the ordered battery of pure predicates that
// gate every lifecycle transition: first failure wins, no predicate
// reads anything but the facts it is handed. Grounded on spec.md §4.4
// and original_source/app/core/violations.py's VIOLATION_CHECKS list,
// and on the teacher's pattern of closed rule-code string enums
// (internal/domain/entities/deposit_status.go) for the result type.
package invariant

import (
	"time"

	"github.com/procguard/core/internal/fsm"
	"github.com/procguard/core/internal/identity"
)

// RuleCode is a closed enumeration: a domain error's Code always equals
// the RuleCode of the predicate that failed.
type RuleCode string

const (
	RuleTerminalStateMutation    RuleCode = "TERMINAL_STATE_MUTATION"
	RuleInvalidFSMTransition     RuleCode = "INVALID_FSM_TRANSITION"
	RuleProcedureVersionMismatch RuleCode = "PROCEDURE_VERSION_MISMATCH"
	RuleUnauthorizedApproval     RuleCode = "UNAUTHORIZED_APPROVAL"
	RuleApprovalAfterProgress    RuleCode = "APPROVAL_AFTER_PROGRESS"
	RuleDuplicateApproval        RuleCode = "DUPLICATE_APPROVAL"
	RuleProgressWithoutApproval  RuleCode = "PROGRESS_WITHOUT_APPROVAL"
)

// Facts is the closed set of inputs the battery may consult. Every field
// is resolved by the engine from the ledger before evaluation begins —
// no predicate performs I/O of its own.
type Facts struct {
	CurrentState      fsm.State
	Event             fsm.Event
	ActorRole         identity.Role
	RequestVersion    int
	BoundVersion      int
	StepID            string
	StepAlreadyAdvanced bool
	ApprovalExists    bool
	StepRequiresApproval bool
	Now               time.Time
}

// Result is the outcome of running the battery: either zero value
// (Violated == false, every transition proceeds) or the first failing
// rule.
type Result struct {
	Violated bool
	Rule     RuleCode
}

// predicate is one entry in the fixed-order battery.
type predicate struct {
	rule  RuleCode
	check func(Facts) bool
}

// battery is evaluated top-to-bottom; the order itself is load-bearing
// (spec.md §4.4 enumerates it 1-7) and must never be reordered.
var battery = []predicate{
	{RuleTerminalStateMutation, func(f Facts) bool {
		return fsm.IsTerminal(f.CurrentState)
	}},
	{RuleInvalidFSMTransition, func(f Facts) bool {
		_, ok := fsm.Next(f.CurrentState, f.Event)
		return !ok
	}},
	{RuleProcedureVersionMismatch, func(f Facts) bool {
		return f.RequestVersion != f.BoundVersion
	}},
	{RuleUnauthorizedApproval, func(f Facts) bool {
		return f.Event == fsm.EventApproveStep && f.ActorRole != identity.RoleSupervisor
	}},
	{RuleApprovalAfterProgress, func(f Facts) bool {
		return f.Event == fsm.EventApproveStep && f.StepAlreadyAdvanced
	}},
	{RuleDuplicateApproval, func(f Facts) bool {
		return f.Event == fsm.EventApproveStep && f.ApprovalExists
	}},
	{RuleProgressWithoutApproval, func(f Facts) bool {
		return f.Event == fsm.EventProgressStep && f.StepRequiresApproval && !f.ApprovalExists
	}},
}

// Evaluate runs the battery in its fixed order and returns the first
// violated rule, or a zero Result if every predicate passes.
func Evaluate(f Facts) Result {
	for _, p := range battery {
		if p.check(f) {
			return Result{Violated: true, Rule: p.rule}
		}
	}
	return Result{}
}
