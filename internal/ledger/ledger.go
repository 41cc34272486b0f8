// Package ledger defines the Lifecycle Engine's capability boundary:
// the small set of operations the engine needs from the store, each
// running inside one transaction the engine's caller started (spec.md
// §9 "Repository interface"). Grounded on the teacher's
// internal/domain/repositories interface style (one Go interface per
// aggregate, context-first methods) though the original interface file
// itself was trimmed in this module's final adaptation pass — see
// DESIGN.md.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/entities"
	"github.com/procguard/core/internal/fsm"
)

// ErrBatchNotFound is returned by LoadBatchForUpdate when no batch with
// the given id exists; the engine maps this to BATCH_NOT_FOUND.
var ErrBatchNotFound = errors.New("ledger: batch not found")

// ErrProcedureStepNotFound is returned by FetchStepDefinition when the
// pinned procedure version carries no such step.
var ErrProcedureStepNotFound = errors.New("ledger: procedure step not found")

// ErrViolationNotFound is returned by ResolveViolation when no
// violation with the given id exists.
var ErrViolationNotFound = errors.New("ledger: violation not found")

// ErrViolationNotOpen is returned by ResolveViolation when the
// violation exists but its status is already RESOLVED.
var ErrViolationNotOpen = errors.New("ledger: violation not open")

// Tx is the per-request transactional capability set the Lifecycle
// Engine depends on. A Tx is obtained from a Repository and must be
// committed or rolled back by whoever opened it (internal/repository).
type Tx interface {
	// LoadBatchForUpdate reads a batch with a row-scoped pessimistic
	// lock (SELECT ... FOR UPDATE), serializing concurrent actions on
	// the same batch (spec.md §5).
	LoadBatchForUpdate(ctx context.Context, batchID uuid.UUID) (entities.Batch, error)

	// AppendEvent inserts one BatchEvent row. Append-only at the
	// application layer and enforced again by a storage trigger.
	AppendEvent(ctx context.Context, event entities.BatchEvent) error

	// InsertViolation inserts one Violation row.
	InsertViolation(ctx context.Context, violation entities.Violation) error

	// InsertPolicyDecision inserts one PolicyDecision row.
	InsertPolicyDecision(ctx context.Context, decision entities.PolicyDecision) error

	// InsertAudit inserts one AuditLog row.
	InsertAudit(ctx context.Context, audit entities.AuditLog) error

	// InsertEvidenceNode inserts one EvidenceChainNode row.
	InsertEvidenceNode(ctx context.Context, node entities.EvidenceChainNode) error

	// InsertEnforcementEvent inserts one EnforcementEvent row.
	InsertEnforcementEvent(ctx context.Context, event entities.EnforcementEvent) error

	// UpdateBatchState writes the batch's new current_state. Not a
	// violation of immutability: batches themselves are mutable, only
	// the ledger tables around them are append-only (spec.md §3).
	UpdateBatchState(ctx context.Context, batchID uuid.UUID, newState fsm.State) error

	// FetchStepDefinition resolves a step's definition from the batch's
	// pinned procedure version — never from client input (spec.md §4.4).
	FetchStepDefinition(ctx context.Context, procedureID string, version int, stepID string) (entities.ProcedureStep, error)

	// FindExistingApproval reports whether an approve_step event already
	// exists for (batchID, stepID) — defense in depth alongside the
	// storage-level unique partial index.
	FindExistingApproval(ctx context.Context, batchID uuid.UUID, stepID string) (bool, error)

	// ResolveSOP performs the deterministic rule-code -> SOP lookup
	// spec.md §4.5 calls for. May return ok=false: a null result is
	// valid and downstream nodes become conditional on it.
	ResolveSOP(ctx context.Context, ruleCode string) (entities.SOP, bool, error)

	// ResolveViolation moves a violation from OPEN to RESOLVED — the one
	// mutation forbid_violation_mutation() permits — and returns the
	// updated row. Returns ErrViolationNotFound if no such violation
	// exists, or ErrViolationNotOpen if it exists but isn't OPEN.
	ResolveViolation(ctx context.Context, violationID uuid.UUID) (entities.Violation, error)

	// Commit and Rollback end the transaction this Tx wraps.
	Commit() error
	Rollback() error
}

// Repository opens transactions against the ledger store. Exactly one
// Tx is opened per incoming request by internal/repository's facade.
type Repository interface {
	Begin(ctx context.Context) (Tx, error)
}

// ReadRepository is the read-only surface forensic reconstruction
// (internal/evidence, internal/filteraudit) needs — no locking, no
// mutation capability, so a read path can never accidentally take a
// write lock on a batch it only wants to inspect.
type ReadRepository interface {
	FetchViolation(ctx context.Context, violationID uuid.UUID) (entities.Violation, error)

	// FetchOpenViolations lists OPEN violations in detection order, for
	// internal/jobs' scheduled evidence reverification sweep.
	FetchOpenViolations(ctx context.Context, limit int) ([]entities.Violation, error)
	FetchPolicyDecision(ctx context.Context, decisionHash string) (entities.PolicyDecision, error)
	FetchAuditByViolation(ctx context.Context, violationID uuid.UUID) (entities.AuditLog, error)
	FetchEvidenceNodes(ctx context.Context, violationID uuid.UUID) ([]entities.EvidenceChainNode, error)
	FetchLatestCheckpoint(ctx context.Context, streamName string) (entities.Checkpoint, bool, error)
	FetchFilterAuditEvents(ctx context.Context, userID uuid.UUID, limit int) ([]entities.FilterAuditEvent, error)

	// FetchAllFilterAuditEvents returns the chain from genesis in
	// creation order, at most limit rows, unscoped by user — the hash
	// chain spans every user's recorded queries, so reverification
	// (internal/jobs) replays it across users, not one user's slice.
	FetchAllFilterAuditEvents(ctx context.Context, limit int) ([]entities.FilterAuditEvent, error)
}

// CheckpointStore is the write counterpart to ReadRepository's
// FetchLatestCheckpoint: a single, lockless insert outside any batch
// transaction, used by internal/jobs' scheduled reverification runs.
type CheckpointStore interface {
	InsertCheckpoint(ctx context.Context, cp entities.Checkpoint) error
}
