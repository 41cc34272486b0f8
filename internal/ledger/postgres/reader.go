package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/entities"
)

// Reader implements ledger.ReadRepository directly against the pool,
// with no locking — forensic reconstruction never blocks a write.
type Reader struct {
	repo *Repository
}

func NewReader(repo *Repository) *Reader {
	return &Reader{repo: repo}
}

var errNotFound = errors.New("ledger/postgres: record not found")

func (r *Reader) FetchViolation(ctx context.Context, violationID uuid.UUID) (entities.Violation, error) {
	const query = `
		SELECT violation_id, batch_id, rule_code, sop_id, detected_at, status, violation_hash, opa_decision_hash, triggering_filter_event_id, payload
		FROM violations WHERE violation_id = $1`
	var v entities.Violation
	err := r.repo.db.GetContext(ctx, &v, query, violationID)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Violation{}, errNotFound
	}
	if err != nil {
		return entities.Violation{}, fmt.Errorf("ledger/postgres: fetch violation: %w", err)
	}
	return v, nil
}

func (r *Reader) FetchOpenViolations(ctx context.Context, limit int) ([]entities.Violation, error) {
	const query = `
		SELECT violation_id, batch_id, rule_code, sop_id, detected_at, status, violation_hash, opa_decision_hash, triggering_filter_event_id, payload
		FROM violations WHERE status = 'OPEN' ORDER BY detected_at ASC LIMIT $1`
	var rows []entities.Violation
	if err := r.repo.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("ledger/postgres: fetch open violations: %w", err)
	}
	return rows, nil
}

func (r *Reader) FetchPolicyDecision(ctx context.Context, decisionHash string) (entities.PolicyDecision, error) {
	const query = `
		SELECT decision_id, "timestamp", policy_package, rule, decision, resource_type, resource_id, input_hash, result_hash, decision_hash, payload
		FROM policy_decisions WHERE decision_hash = $1`
	var d entities.PolicyDecision
	err := r.repo.db.GetContext(ctx, &d, query, decisionHash)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.PolicyDecision{}, errNotFound
	}
	if err != nil {
		return entities.PolicyDecision{}, fmt.Errorf("ledger/postgres: fetch policy decision: %w", err)
	}
	return d, nil
}

func (r *Reader) FetchAuditByViolation(ctx context.Context, violationID uuid.UUID) (entities.AuditLog, error) {
	const query = `
		SELECT audit_id, batch_id, expected_state, actual_state, action, result, actor, actor_role, "timestamp", violation_id, audit_hash, violation_hash_link, payload
		FROM audit_logs WHERE violation_id = $1 ORDER BY "timestamp" DESC LIMIT 1`
	var a entities.AuditLog
	err := r.repo.db.GetContext(ctx, &a, query, violationID)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.AuditLog{}, errNotFound
	}
	if err != nil {
		return entities.AuditLog{}, fmt.Errorf("ledger/postgres: fetch audit by violation: %w", err)
	}
	return a, nil
}

func (r *Reader) FetchEvidenceNodes(ctx context.Context, violationID uuid.UUID) ([]entities.EvidenceChainNode, error) {
	const query = `
		SELECT id, violation_id, event_type, source_id, prev_hash, hash, created_at
		FROM evidence_chain_nodes WHERE violation_id = $1 ORDER BY created_at ASC`
	var nodes []entities.EvidenceChainNode
	if err := r.repo.db.SelectContext(ctx, &nodes, query, violationID); err != nil {
		return nil, fmt.Errorf("ledger/postgres: fetch evidence nodes: %w", err)
	}
	return nodes, nil
}

func (r *Reader) FetchLatestCheckpoint(ctx context.Context, streamName string) (entities.Checkpoint, bool, error) {
	const query = `
		SELECT id, stream_name, last_event_id, last_event_hash, snapshot_hash, snapshot_version, committed_at, is_recovery, signature
		FROM checkpoints WHERE stream_name = $1 AND is_recovery = false ORDER BY committed_at DESC LIMIT 1`
	var cp entities.Checkpoint
	err := r.repo.db.GetContext(ctx, &cp, query, streamName)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Checkpoint{}, false, nil
	}
	if err != nil {
		return entities.Checkpoint{}, false, fmt.Errorf("ledger/postgres: fetch latest checkpoint: %w", err)
	}
	return cp, true, nil
}

func (r *Reader) FetchFilterAuditEvents(ctx context.Context, userID uuid.UUID, limit int) ([]entities.FilterAuditEvent, error) {
	const query = `
		SELECT id, user_id, screen, filter_payload, created_at, prev_hash, hash
		FROM filter_audit_events WHERE user_id = $1 ORDER BY created_at ASC LIMIT $2`
	var rows []entities.FilterAuditEvent
	if err := r.repo.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("ledger/postgres: fetch filter audit events: %w", err)
	}
	return rows, nil
}

func (r *Reader) FetchAllFilterAuditEvents(ctx context.Context, limit int) ([]entities.FilterAuditEvent, error) {
	const query = `
		SELECT id, user_id, screen, filter_payload, created_at, prev_hash, hash
		FROM filter_audit_events ORDER BY created_at ASC LIMIT $1`
	var rows []entities.FilterAuditEvent
	if err := r.repo.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("ledger/postgres: fetch all filter audit events: %w", err)
	}
	return rows, nil
}
