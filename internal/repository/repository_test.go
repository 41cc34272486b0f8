package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/entities"
	"github.com/procguard/core/internal/fsm"
	"github.com/procguard/core/internal/ledger"
	"github.com/stretchr/testify/assert"
)

type fakeTx struct {
	committed bool
	rolledBack bool
}

func (f *fakeTx) LoadBatchForUpdate(ctx context.Context, batchID uuid.UUID) (entities.Batch, error) {
	return entities.Batch{}, nil
}
func (f *fakeTx) AppendEvent(ctx context.Context, event entities.BatchEvent) error { return nil }
func (f *fakeTx) InsertViolation(ctx context.Context, v entities.Violation) error  { return nil }
func (f *fakeTx) InsertPolicyDecision(ctx context.Context, d entities.PolicyDecision) error {
	return nil
}
func (f *fakeTx) InsertAudit(ctx context.Context, a entities.AuditLog) error { return nil }
func (f *fakeTx) InsertEvidenceNode(ctx context.Context, n entities.EvidenceChainNode) error {
	return nil
}
func (f *fakeTx) InsertEnforcementEvent(ctx context.Context, e entities.EnforcementEvent) error {
	return nil
}
func (f *fakeTx) UpdateBatchState(ctx context.Context, batchID uuid.UUID, newState fsm.State) error {
	return nil
}
func (f *fakeTx) FetchStepDefinition(ctx context.Context, procedureID string, version int, stepID string) (entities.ProcedureStep, error) {
	return entities.ProcedureStep{}, nil
}
func (f *fakeTx) FindExistingApproval(ctx context.Context, batchID uuid.UUID, stepID string) (bool, error) {
	return false, nil
}
func (f *fakeTx) ResolveSOP(ctx context.Context, ruleCode string) (entities.SOP, bool, error) {
	return entities.SOP{}, false, nil
}
func (f *fakeTx) ResolveViolation(ctx context.Context, violationID uuid.UUID) (entities.Violation, error) {
	return entities.Violation{}, nil
}
func (f *fakeTx) Commit() error   { f.committed = true; return nil }
func (f *fakeTx) Rollback() error { f.rolledBack = true; return nil }

type fakeRepo struct {
	tx *fakeTx
}

func (r *fakeRepo) Begin(ctx context.Context) (ledger.Tx, error) {
	return r.tx, nil
}

func TestFacade_WithTx_CommitsOnSuccess(t *testing.T) {
	tx := &fakeTx{}
	f := NewFacade(&fakeRepo{tx: tx})

	err := f.WithTx(context.Background(), func(tx ledger.Tx) error {
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestFacade_WithTx_RollsBackOnError(t *testing.T) {
	tx := &fakeTx{}
	f := NewFacade(&fakeRepo{tx: tx})
	boom := errors.New("boom")

	err := f.WithTx(context.Background(), func(tx ledger.Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}
