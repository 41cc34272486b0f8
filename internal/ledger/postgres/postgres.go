// Package postgres is the sqlx/lib/pq implementation of internal/ledger's
// Repository and ReadRepository interfaces. Grounded on the teacher's
// repository style (internal/infrastructure/repositories: a struct
// wrapping *sqlx.DB, `$N` placeholders, ExecContext/QueryRowContext
// with explicit error mapping) applied to the schema in
// internal/ledger/migrations, with row-scoped locking
// (`SELECT ... FOR UPDATE`) added per spec.md §5's concurrency model.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/procguard/core/internal/entities"
	"github.com/procguard/core/internal/fsm"
	"github.com/procguard/core/internal/ledger"
)

// Repository opens transactions against a Postgres-backed ledger.
type Repository struct {
	db *sqlx.DB
}

// Open connects to the ledger database and configures its pool
// according to the caller's settings.
func Open(dsn string, maxOpenConns, maxIdleConns int) (*Repository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: connect: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Stats exposes the pool's connection counts for internal/app's
// periodic gauge reporting loop.
func (r *Repository) Stats() sql.DBStats {
	return r.db.Stats()
}

// InsertCheckpoint implements ledger.CheckpointStore: a single,
// lockless insert outside any batch transaction, used by internal/jobs'
// scheduled reverification runs rather than the per-batch atomic commit
// protocol.
func (r *Repository) InsertCheckpoint(ctx context.Context, cp entities.Checkpoint) error {
	const query = `
		INSERT INTO checkpoints (id, stream_name, last_event_id, last_event_hash, snapshot_hash, snapshot_version, committed_at, is_recovery, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, cp.ID, cp.StreamName, cp.LastEventID, cp.LastEventHash, cp.SnapshotHash, cp.SnapshotVersion, cp.CommittedAt, cp.IsRecovery, cp.Signature)
	if err != nil {
		return fmt.Errorf("ledger/postgres: insert checkpoint: %w", err)
	}
	return nil
}

// Begin starts a new transaction-scoped Tx.
func (r *Repository) Begin(ctx context.Context) (ledger.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: begin: %w", err)
	}
	return &txImpl{tx: tx}, nil
}

type txImpl struct {
	tx *sqlx.Tx
}

func (t *txImpl) Commit() error   { return t.tx.Commit() }
func (t *txImpl) Rollback() error { return t.tx.Rollback() }

func (t *txImpl) LoadBatchForUpdate(ctx context.Context, batchID uuid.UUID) (entities.Batch, error) {
	const query = `
		SELECT batch_id, procedure_id, procedure_version, current_state, created_at
		FROM batches
		WHERE batch_id = $1
		FOR UPDATE`
	var b entities.Batch
	err := t.tx.GetContext(ctx, &b, query, batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Batch{}, ledger.ErrBatchNotFound
	}
	if err != nil {
		return entities.Batch{}, fmt.Errorf("ledger/postgres: load batch: %w", err)
	}
	return b, nil
}

func (t *txImpl) AppendEvent(ctx context.Context, event entities.BatchEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO batch_events (event_id, batch_id, event_type, step_id, payload, occurred_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`
	_, err = t.tx.ExecContext(ctx, query, event.EventID, event.BatchID, event.EventType, event.StepID, payload, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("ledger/postgres: append event: %w", err)
	}
	return nil
}

func (t *txImpl) InsertViolation(ctx context.Context, v entities.Violation) error {
	payload, err := json.Marshal(v.Payload)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO violations (violation_id, batch_id, rule_code, sop_id, detected_at, status, violation_hash, opa_decision_hash, triggering_filter_event_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = t.tx.ExecContext(ctx, query, v.ViolationID, v.BatchID, v.RuleCode, v.SOPID, v.DetectedAt, v.Status, v.ViolationHash, v.OPADecisionHash, v.TriggeringFilterEventID, payload)
	if err != nil {
		return fmt.Errorf("ledger/postgres: insert violation: %w", err)
	}
	return nil
}

func (t *txImpl) InsertPolicyDecision(ctx context.Context, d entities.PolicyDecision) error {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO policy_decisions (decision_id, "timestamp", policy_package, rule, decision, resource_type, resource_id, input_hash, result_hash, decision_hash, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = t.tx.ExecContext(ctx, query, d.DecisionID, d.Timestamp, d.PolicyPackage, d.Rule, d.Decision, d.ResourceType, d.ResourceID, d.InputHash, d.ResultHash, d.DecisionHash, payload)
	if err != nil {
		return fmt.Errorf("ledger/postgres: insert policy decision: %w", err)
	}
	return nil
}

func (t *txImpl) InsertAudit(ctx context.Context, a entities.AuditLog) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO audit_logs (audit_id, batch_id, expected_state, actual_state, action, result, actor, actor_role, "timestamp", violation_id, audit_hash, violation_hash_link, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = t.tx.ExecContext(ctx, query, a.AuditID, a.BatchID, a.ExpectedState, a.ActualState, a.Action, a.Result, a.Actor, a.ActorRole, a.Timestamp, a.ViolationID, a.AuditHash, a.ViolationHashLink, payload)
	if err != nil {
		return fmt.Errorf("ledger/postgres: insert audit: %w", err)
	}
	return nil
}

func (t *txImpl) InsertEvidenceNode(ctx context.Context, n entities.EvidenceChainNode) error {
	const query = `
		INSERT INTO evidence_chain_nodes (id, violation_id, event_type, source_id, prev_hash, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := t.tx.ExecContext(ctx, query, n.ID, n.ViolationID, n.EventType, n.SourceID, n.PrevHash, n.Hash, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger/postgres: insert evidence node: %w", err)
	}
	return nil
}

func (t *txImpl) InsertEnforcementEvent(ctx context.Context, e entities.EnforcementEvent) error {
	const query = `
		INSERT INTO enforcement_events (id, violation_id, action, executed_at, node_id)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := t.tx.ExecContext(ctx, query, e.ID, e.ViolationID, e.Action, e.ExecutedAt, e.NodeID)
	if err != nil {
		return fmt.Errorf("ledger/postgres: insert enforcement event: %w", err)
	}
	return nil
}

func (t *txImpl) UpdateBatchState(ctx context.Context, batchID uuid.UUID, newState fsm.State) error {
	const query = `UPDATE batches SET current_state = $1 WHERE batch_id = $2`
	_, err := t.tx.ExecContext(ctx, query, newState, batchID)
	if err != nil {
		return fmt.Errorf("ledger/postgres: update batch state: %w", err)
	}
	return nil
}

func (t *txImpl) FetchStepDefinition(ctx context.Context, procedureID string, version int, stepID string) (entities.ProcedureStep, error) {
	const query = `
		SELECT step_id, step_order, name, requires_approval, approver_role
		FROM procedure_steps
		WHERE procedure_id = $1 AND version = $2 AND step_id = $3`
	var step entities.ProcedureStep
	err := t.tx.GetContext(ctx, &step, query, procedureID, version, stepID)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.ProcedureStep{}, ledger.ErrProcedureStepNotFound
	}
	if err != nil {
		return entities.ProcedureStep{}, fmt.Errorf("ledger/postgres: fetch step definition: %w", err)
	}
	return step, nil
}

func (t *txImpl) FindExistingApproval(ctx context.Context, batchID uuid.UUID, stepID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM batch_events
			WHERE batch_id = $1 AND step_id = $2 AND event_type = 'approve_step'
		)`
	var exists bool
	if err := t.tx.GetContext(ctx, &exists, query, batchID, stepID); err != nil {
		return false, fmt.Errorf("ledger/postgres: find existing approval: %w", err)
	}
	return exists, nil
}

func (t *txImpl) ResolveSOP(ctx context.Context, ruleCode string) (entities.SOP, bool, error) {
	const sopQuery = `SELECT sop_id, rule_code, title, body FROM sops WHERE rule_code = $1 LIMIT 1`
	var sop entities.SOP
	err := t.tx.GetContext(ctx, &sop, sopQuery, ruleCode)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.SOP{}, false, nil
	}
	if err != nil {
		return entities.SOP{}, false, fmt.Errorf("ledger/postgres: resolve sop: %w", err)
	}

	const rulesQuery = `SELECT rule_id, rule_order, action FROM sop_rules WHERE sop_id = $1 ORDER BY rule_order`
	if err := t.tx.SelectContext(ctx, &sop.Actions, rulesQuery, sop.SOPID); err != nil {
		return entities.SOP{}, false, fmt.Errorf("ledger/postgres: resolve sop rules: %w", err)
	}
	return sop, true, nil
}

func (t *txImpl) ResolveViolation(ctx context.Context, violationID uuid.UUID) (entities.Violation, error) {
	const query = `
		UPDATE violations SET status = 'RESOLVED'
		WHERE violation_id = $1 AND status = 'OPEN'
		RETURNING violation_id, batch_id, rule_code, sop_id, detected_at, status, violation_hash, opa_decision_hash, triggering_filter_event_id, payload`
	var v entities.Violation
	err := t.tx.GetContext(ctx, &v, query, violationID)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return entities.Violation{}, fmt.Errorf("ledger/postgres: resolve violation: %w", err)
	}

	var exists bool
	const existsQuery = `SELECT EXISTS (SELECT 1 FROM violations WHERE violation_id = $1)`
	if existsErr := t.tx.GetContext(ctx, &exists, existsQuery, violationID); existsErr != nil {
		return entities.Violation{}, fmt.Errorf("ledger/postgres: resolve violation: check existence: %w", existsErr)
	}
	if !exists {
		return entities.Violation{}, ledger.ErrViolationNotFound
	}
	return entities.Violation{}, ledger.ErrViolationNotOpen
}
