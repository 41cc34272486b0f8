package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/entities"
	"github.com/procguard/core/internal/fsm"
	"github.com/procguard/core/internal/identity"
	"github.com/procguard/core/internal/ledger"
	"github.com/procguard/core/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	batch           entities.Batch
	loadErr         error
	approvalExists  bool
	step            entities.ProcedureStep
	stepErr         error
	sop             entities.SOP
	sopFound        bool

	resolveViolation    entities.Violation
	resolveViolationErr error

	appendedEvents []entities.BatchEvent
	violations     []entities.Violation
	decisions      []entities.PolicyDecision
	audits         []entities.AuditLog
	nodes          []entities.EvidenceChainNode
	enforcements   []entities.EnforcementEvent
	stateUpdates   []fsm.State

	committed  bool
	rolledBack bool
}

func (f *fakeTx) LoadBatchForUpdate(ctx context.Context, batchID uuid.UUID) (entities.Batch, error) {
	if f.loadErr != nil {
		return entities.Batch{}, f.loadErr
	}
	return f.batch, nil
}
func (f *fakeTx) AppendEvent(ctx context.Context, event entities.BatchEvent) error {
	f.appendedEvents = append(f.appendedEvents, event)
	return nil
}
func (f *fakeTx) InsertViolation(ctx context.Context, v entities.Violation) error {
	f.violations = append(f.violations, v)
	return nil
}
func (f *fakeTx) InsertPolicyDecision(ctx context.Context, d entities.PolicyDecision) error {
	f.decisions = append(f.decisions, d)
	return nil
}
func (f *fakeTx) InsertAudit(ctx context.Context, a entities.AuditLog) error {
	f.audits = append(f.audits, a)
	return nil
}
func (f *fakeTx) InsertEvidenceNode(ctx context.Context, n entities.EvidenceChainNode) error {
	f.nodes = append(f.nodes, n)
	return nil
}
func (f *fakeTx) InsertEnforcementEvent(ctx context.Context, e entities.EnforcementEvent) error {
	f.enforcements = append(f.enforcements, e)
	return nil
}
func (f *fakeTx) UpdateBatchState(ctx context.Context, batchID uuid.UUID, newState fsm.State) error {
	f.stateUpdates = append(f.stateUpdates, newState)
	return nil
}
func (f *fakeTx) FetchStepDefinition(ctx context.Context, procedureID string, version int, stepID string) (entities.ProcedureStep, error) {
	if f.stepErr != nil {
		return entities.ProcedureStep{}, f.stepErr
	}
	return f.step, nil
}
func (f *fakeTx) FindExistingApproval(ctx context.Context, batchID uuid.UUID, stepID string) (bool, error) {
	return f.approvalExists, nil
}
func (f *fakeTx) ResolveSOP(ctx context.Context, ruleCode string) (entities.SOP, bool, error) {
	return f.sop, f.sopFound, nil
}
func (f *fakeTx) ResolveViolation(ctx context.Context, violationID uuid.UUID) (entities.Violation, error) {
	if f.resolveViolationErr != nil {
		return entities.Violation{}, f.resolveViolationErr
	}
	return f.resolveViolation, nil
}
func (f *fakeTx) Commit() error   { f.committed = true; return nil }
func (f *fakeTx) Rollback() error { f.rolledBack = true; return nil }

type fakeRepo struct {
	tx         *fakeTx
	beginCalls int
}

func (r *fakeRepo) Begin(ctx context.Context) (ledger.Tx, error) {
	r.beginCalls++
	return r.tx, nil
}

func newEngine(tx *fakeTx) (*Engine, *fakeRepo) {
	repo := &fakeRepo{tx: tx}
	facade := repository.NewFacade(repo)
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return New(facade, clock, nil), repo
}

func TestEngine_Process_AdvancesOnSuccess(t *testing.T) {
	batchID := uuid.New()
	tx := &fakeTx{
		batch: entities.Batch{
			BatchID:          batchID,
			ProcedureID:      "proc-1",
			ProcedureVersion: 1,
			CurrentState:     fsm.StateCreated,
		},
	}
	e, _ := newEngine(tx)

	err := e.Process(context.Background(), Request{
		BatchID:        batchID,
		Event:          fsm.EventStartBatch,
		ActorID:        "operator-1",
		ActorRole:      identity.RoleOperator,
		RequestVersion: 1,
	})

	require.NoError(t, err)
	require.Len(t, tx.appendedEvents, 1)
	assert.Equal(t, fsm.EventStartBatch, tx.appendedEvents[0].EventType)
	require.Len(t, tx.stateUpdates, 1)
	assert.Equal(t, fsm.StateInProgress, tx.stateUpdates[0])
	require.Len(t, tx.audits, 1)
	assert.Equal(t, entities.AuditResultSuccess, tx.audits[0].Result)
	assert.Empty(t, tx.violations)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestEngine_Process_TerminalStateMutationIsRecordedAndLeavesStateAlone(t *testing.T) {
	batchID := uuid.New()
	tx := &fakeTx{
		batch: entities.Batch{
			BatchID:          batchID,
			ProcedureID:      "proc-1",
			ProcedureVersion: 1,
			CurrentState:     fsm.StateCompleted,
		},
	}
	e, _ := newEngine(tx)

	err := e.Process(context.Background(), Request{
		BatchID:        batchID,
		Event:          fsm.EventProgressStep,
		ActorID:        "operator-1",
		ActorRole:      identity.RoleOperator,
		RequestVersion: 1,
	})

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "TERMINAL_STATE_MUTATION", domainErr.Code)

	require.Len(t, tx.violations, 1)
	assert.Equal(t, "TERMINAL_STATE_MUTATION", tx.violations[0].RuleCode)
	require.Len(t, tx.decisions, 1)
	require.Len(t, tx.audits, 1)
	assert.Equal(t, entities.AuditResultFailure, tx.audits[0].Result)
	require.NotEmpty(t, tx.nodes)
	assert.Equal(t, entities.EvidenceViolationDetected, tx.nodes[0].EventType)
	// A terminal-state denial never overwrites the batch's existing
	// terminal state.
	assert.Empty(t, tx.stateUpdates)
	assert.True(t, tx.committed)
}

func TestEngine_Process_NonTerminalViolationMovesBatchToViolated(t *testing.T) {
	batchID := uuid.New()
	tx := &fakeTx{
		batch: entities.Batch{
			BatchID:          batchID,
			ProcedureID:      "proc-1",
			ProcedureVersion: 3,
			CurrentState:     fsm.StateInProgress,
		},
	}
	e, _ := newEngine(tx)

	err := e.Process(context.Background(), Request{
		BatchID:        batchID,
		Event:          fsm.EventRequestApproval,
		ActorID:        "operator-1",
		ActorRole:      identity.RoleOperator,
		RequestVersion: 1, // stale version
	})

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "PROCEDURE_VERSION_MISMATCH", domainErr.Code)
	require.Len(t, tx.stateUpdates, 1)
	assert.Equal(t, fsm.StateViolated, tx.stateUpdates[0])
}

func TestEngine_Process_UnauthorizedActorWritesNothing(t *testing.T) {
	batchID := uuid.New()
	tx := &fakeTx{
		batch: entities.Batch{BatchID: batchID, CurrentState: fsm.StateCreated, ProcedureVersion: 1},
	}
	e, repo := newEngine(tx)

	err := e.Process(context.Background(), Request{
		BatchID:        batchID,
		Event:          fsm.EventStartBatch,
		ActorID:        "auditor-1",
		ActorRole:      identity.RoleAuditor,
		RequestVersion: 1,
	})

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "UNAUTHORIZED", domainErr.Code)
	assert.Equal(t, 0, repo.beginCalls)
	assert.Empty(t, tx.audits)
}

func TestEngine_Process_BatchNotFound(t *testing.T) {
	batchID := uuid.New()
	tx := &fakeTx{loadErr: ledger.ErrBatchNotFound}
	e, _ := newEngine(tx)

	err := e.Process(context.Background(), Request{
		BatchID:        batchID,
		Event:          fsm.EventStartBatch,
		ActorID:        "operator-1",
		ActorRole:      identity.RoleOperator,
		RequestVersion: 1,
	})

	assert.True(t, errors.Is(err, ErrBatchNotFound))
	assert.True(t, tx.rolledBack)
}

func TestEngine_Process_DuplicateApprovalIsDetected(t *testing.T) {
	batchID := uuid.New()
	tx := &fakeTx{
		batch: entities.Batch{
			BatchID:          batchID,
			ProcedureVersion: 1,
			CurrentState:     fsm.StateAwaitingApproval,
		},
		approvalExists: true,
	}
	e, _ := newEngine(tx)

	err := e.Process(context.Background(), Request{
		BatchID:        batchID,
		Event:          fsm.EventApproveStep,
		ActorID:        "supervisor-1",
		ActorRole:      identity.RoleSupervisor,
		RequestVersion: 1,
		StepID:         "step-1",
	})

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "DUPLICATE_APPROVAL", domainErr.Code)
}

func TestEngine_ResolveViolation_WritesAuditAndCommits(t *testing.T) {
	batchID := uuid.New()
	violationID := uuid.New()
	tx := &fakeTx{
		batch: entities.Batch{BatchID: batchID, CurrentState: fsm.StateViolated},
		resolveViolation: entities.Violation{
			ViolationID: violationID,
			BatchID:     batchID,
			RuleCode:    "TERMINAL_STATE_MUTATION",
			Status:      entities.ViolationStatusResolved,
		},
	}
	e, _ := newEngine(tx)

	err := e.ResolveViolation(context.Background(), ResolveViolationRequest{
		ViolationID: violationID,
		ActorID:     "supervisor-1",
		ActorRole:   identity.RoleSupervisor,
	})

	require.NoError(t, err)
	require.Len(t, tx.audits, 1)
	assert.Equal(t, entities.AuditResultSuccess, tx.audits[0].Result)
	assert.Equal(t, fsm.EventResolveViolation, tx.audits[0].Action)
	assert.Equal(t, &violationID, tx.audits[0].ViolationID)
	assert.True(t, tx.committed)
}

func TestEngine_ResolveViolation_UnauthorizedActorWritesNothing(t *testing.T) {
	tx := &fakeTx{}
	e, repo := newEngine(tx)

	err := e.ResolveViolation(context.Background(), ResolveViolationRequest{
		ViolationID: uuid.New(),
		ActorID:     "operator-1",
		ActorRole:   identity.RoleOperator,
	})

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "UNAUTHORIZED", domainErr.Code)
	assert.Equal(t, 0, repo.beginCalls)
}

func TestEngine_ResolveViolation_AlreadyResolvedIsRejected(t *testing.T) {
	tx := &fakeTx{resolveViolationErr: ledger.ErrViolationNotOpen}
	e, _ := newEngine(tx)

	err := e.ResolveViolation(context.Background(), ResolveViolationRequest{
		ViolationID: uuid.New(),
		ActorID:     "supervisor-1",
		ActorRole:   identity.RoleSupervisor,
	})

	assert.True(t, errors.Is(err, ErrViolationNotOpen))
	assert.True(t, tx.rolledBack)
}
