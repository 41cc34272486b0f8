package invariant

import (
	"testing"
	"time"

	"github.com/procguard/core/internal/fsm"
	"github.com/procguard/core/internal/identity"
	"github.com/stretchr/testify/assert"
)

func baseFacts() Facts {
	return Facts{
		CurrentState:   fsm.StateInProgress,
		Event:          fsm.EventProgressStep,
		ActorRole:      identity.RoleOperator,
		RequestVersion: 1,
		BoundVersion:   1,
		Now:            time.Now().UTC(),
	}
}

func TestEvaluate_HappyPathPasses(t *testing.T) {
	got := Evaluate(baseFacts())
	assert.False(t, got.Violated)
}

func TestEvaluate_TerminalStateWinsFirst(t *testing.T) {
	f := baseFacts()
	f.CurrentState = fsm.StateCompleted
	f.RequestVersion = 2 // would also fail the version check; terminal must win
	got := Evaluate(f)
	assert.True(t, got.Violated)
	assert.Equal(t, RuleTerminalStateMutation, got.Rule)
}

func TestEvaluate_InvalidTransition(t *testing.T) {
	f := baseFacts()
	f.CurrentState = fsm.StateAwaitingApproval
	f.Event = fsm.EventStartBatch
	got := Evaluate(f)
	assert.True(t, got.Violated)
	assert.Equal(t, RuleInvalidFSMTransition, got.Rule)
}

func TestEvaluate_ProcedureVersionMismatch(t *testing.T) {
	f := baseFacts()
	f.RequestVersion = 2
	got := Evaluate(f)
	assert.True(t, got.Violated)
	assert.Equal(t, RuleProcedureVersionMismatch, got.Rule)
}

func TestEvaluate_UnauthorizedApproval(t *testing.T) {
	f := baseFacts()
	f.CurrentState = fsm.StateAwaitingApproval
	f.Event = fsm.EventApproveStep
	f.ActorRole = identity.RoleOperator
	got := Evaluate(f)
	assert.True(t, got.Violated)
	assert.Equal(t, RuleUnauthorizedApproval, got.Rule)
}

func TestEvaluate_ApprovalAfterProgress(t *testing.T) {
	f := baseFacts()
	f.CurrentState = fsm.StateAwaitingApproval
	f.Event = fsm.EventApproveStep
	f.ActorRole = identity.RoleSupervisor
	f.StepAlreadyAdvanced = true
	got := Evaluate(f)
	assert.True(t, got.Violated)
	assert.Equal(t, RuleApprovalAfterProgress, got.Rule)
}

func TestEvaluate_DuplicateApproval(t *testing.T) {
	f := baseFacts()
	f.CurrentState = fsm.StateAwaitingApproval
	f.Event = fsm.EventApproveStep
	f.ActorRole = identity.RoleSupervisor
	f.ApprovalExists = true
	got := Evaluate(f)
	assert.True(t, got.Violated)
	assert.Equal(t, RuleDuplicateApproval, got.Rule)
}

func TestEvaluate_ProgressWithoutApproval(t *testing.T) {
	f := baseFacts()
	f.CurrentState = fsm.StateApproved
	f.Event = fsm.EventProgressStep
	f.StepRequiresApproval = true
	f.ApprovalExists = false
	got := Evaluate(f)
	assert.True(t, got.Violated)
	assert.Equal(t, RuleProgressWithoutApproval, got.Rule)
}

func TestEvaluate_ProgressWithSatisfiedApprovalPasses(t *testing.T) {
	f := baseFacts()
	f.CurrentState = fsm.StateApproved
	f.Event = fsm.EventProgressStep
	f.StepRequiresApproval = true
	f.ApprovalExists = true
	got := Evaluate(f)
	assert.False(t, got.Violated)
}
