// Package entities holds the data model of spec.md §3: Procedure,
// Batch, and every ledger row type downstream of them. Structurally
// grounded on the teacher's entity style (plain structs, `db`/`json`
// struct tags for sqlx + JSON marshaling, `google/uuid` identifiers) as
// seen in internal/domain/entities/audit.go, adapted from the teacher's
// fintech domain (deposits, withdrawals) to batch lifecycle enforcement.
package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/fsm"
	"github.com/procguard/core/internal/identity"
)

// ProcedureStep is one ordered step of a published Procedure. Once a
// Procedure is published, its steps are immutable (spec.md §3).
type ProcedureStep struct {
	StepID           string         `json:"step_id" db:"step_id"`
	Order            int            `json:"order" db:"step_order"`
	Name             string         `json:"name" db:"name"`
	RequiresApproval bool           `json:"requires_approval" db:"requires_approval"`
	ApproverRole     identity.Role  `json:"approver_role" db:"approver_role"`
}

// Procedure is the immutable law a Batch is pinned to at creation.
// Identified by (ProcedureID, Version); invariant: Version >= 1, Steps
// non-empty, step_ids unique within a version.
type Procedure struct {
	ProcedureID string          `json:"procedure_id" db:"procedure_id"`
	Version     int             `json:"version" db:"version"`
	Steps       []ProcedureStep `json:"steps" db:"-"`
	PublishedAt time.Time       `json:"published_at" db:"published_at"`
}

// StepByID returns the step with the given id, or ok=false if the
// procedure version carries no such step.
func (p Procedure) StepByID(stepID string) (ProcedureStep, bool) {
	for _, s := range p.Steps {
		if s.StepID == stepID {
			return s, true
		}
	}
	return ProcedureStep{}, false
}

// Batch is the single source of truth for one in-flight (or concluded)
// manufacturing run. ProcedureVersion is frozen at creation (I2): every
// later action is checked against this pinned value, never the latest
// published version.
type Batch struct {
	BatchID          uuid.UUID `json:"batch_id" db:"batch_id"`
	ProcedureID      string    `json:"procedure_id" db:"procedure_id"`
	ProcedureVersion int       `json:"procedure_version" db:"procedure_version"`
	CurrentState     fsm.State `json:"current_state" db:"current_state"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// BatchEvent is an append-only record of one accepted transition. No
// update, no delete; at most one approve_step per (BatchID, StepID),
// enforced by a unique partial index at the storage layer.
type BatchEvent struct {
	EventID    uuid.UUID      `json:"event_id" db:"event_id"`
	BatchID    uuid.UUID      `json:"batch_id" db:"batch_id"`
	EventType  fsm.Event      `json:"event_type" db:"event_type"`
	StepID     string         `json:"step_id,omitempty" db:"step_id"`
	Payload    map[string]any `json:"payload,omitempty" db:"payload"`
	OccurredAt time.Time      `json:"occurred_at" db:"occurred_at"`
}

// ViolationStatus is a closed enum: violations start OPEN and move to
// RESOLVED only through an explicit, audited resolution — never silently.
type ViolationStatus string

const (
	ViolationStatusOpen     ViolationStatus = "OPEN"
	ViolationStatusResolved ViolationStatus = "RESOLVED"
)

// Violation is an irreversible record of a denied action. Created once
// per denial by the Lifecycle Engine's atomic commit protocol.
type Violation struct {
	ViolationID            uuid.UUID       `json:"violation_id" db:"violation_id"`
	BatchID                uuid.UUID       `json:"batch_id" db:"batch_id"`
	RuleCode               string          `json:"rule_code" db:"rule_code"`
	SOPID                  *string         `json:"sop_id,omitempty" db:"sop_id"`
	DetectedAt             time.Time       `json:"detected_at" db:"detected_at"`
	Status                 ViolationStatus `json:"status" db:"status"`
	ViolationHash          string          `json:"violation_hash" db:"violation_hash"`
	OPADecisionHash        string          `json:"opa_decision_hash" db:"opa_decision_hash"`
	TriggeringFilterEventID *uuid.UUID     `json:"triggering_filter_event_id,omitempty" db:"triggering_filter_event_id"`
	Payload                map[string]any  `json:"payload,omitempty" db:"payload"`
}

// PolicyDecisionKind is a closed enum for OPA-style allow/deny records.
type PolicyDecisionKind string

const (
	PolicyDecisionAllow PolicyDecisionKind = "allow"
	PolicyDecisionDeny  PolicyDecisionKind = "deny"
)

// PolicyDecision is the immutable root-of-trust for every denial: an
// OPA-shaped record whose DecisionHash binds policy package, input,
// result, and timestamp together.
type PolicyDecision struct {
	DecisionID     uuid.UUID          `json:"decision_id" db:"decision_id"`
	Timestamp      time.Time          `json:"timestamp" db:"timestamp"`
	PolicyPackage  string             `json:"policy_package" db:"policy_package"`
	Rule           string             `json:"rule" db:"rule"`
	Decision       PolicyDecisionKind `json:"decision" db:"decision"`
	ResourceType   string             `json:"resource_type" db:"resource_type"`
	ResourceID     string             `json:"resource_id" db:"resource_id"`
	InputHash      string             `json:"input_hash" db:"input_hash"`
	ResultHash     string             `json:"result_hash" db:"result_hash"`
	DecisionHash   string             `json:"decision_hash" db:"decision_hash"`
	Payload        map[string]any     `json:"payload,omitempty" db:"payload"`
}

// AuditResult is a closed enum for the courtroom-safe AuditLog.
type AuditResult string

const (
	AuditResultSuccess AuditResult = "SUCCESS"
	AuditResultFailure AuditResult = "FAILURE"
)

// AuditLog is protected at the storage layer against update and delete
// (I4), enforced by a BEFORE UPDATE OR DELETE trigger in
// internal/ledger/migrations, not merely by application discipline.
type AuditLog struct {
	AuditID           uuid.UUID      `json:"audit_id" db:"audit_id"`
	BatchID           *uuid.UUID     `json:"batch_id,omitempty" db:"batch_id"`
	ExpectedState     fsm.State      `json:"expected_state" db:"expected_state"`
	ActualState       fsm.State      `json:"actual_state" db:"actual_state"`
	Action            fsm.Event      `json:"action" db:"action"`
	Result            AuditResult    `json:"result" db:"result"`
	Actor             string         `json:"actor" db:"actor"`
	ActorRole         identity.Role  `json:"actor_role" db:"actor_role"`
	Timestamp         time.Time      `json:"timestamp" db:"timestamp"`
	ViolationID       *uuid.UUID     `json:"violation_id,omitempty" db:"violation_id"`
	AuditHash         string         `json:"audit_hash" db:"audit_hash"`
	ViolationHashLink *string        `json:"violation_hash_link,omitempty" db:"violation_hash_link"`
	Payload           map[string]any `json:"payload,omitempty" db:"payload"`
}

// FilterAuditEvent is a tamper-evident, whole-ledger hash-chained record
// of a forensic filter/query a user ran, independent of the batch
// lifecycle chain. Reverification recomputes every row in sequence.
type FilterAuditEvent struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	UserID        uuid.UUID      `json:"user_id" db:"user_id"`
	Screen        string         `json:"screen" db:"screen"`
	FilterPayload map[string]any `json:"filter_payload" db:"filter_payload"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	PrevHash      string         `json:"prev_hash" db:"prev_hash"`
	Hash          string         `json:"hash" db:"hash"`
}

// EvidenceEventType is a closed enum for the per-violation evidence
// chain node kinds.
type EvidenceEventType string

const (
	EvidenceFilterApplied      EvidenceEventType = "FILTER_APPLIED"
	EvidenceViolationDetected  EvidenceEventType = "VIOLATION_DETECTED"
	EvidenceSOPInvoked         EvidenceEventType = "SOP_INVOKED"
	EvidenceEnforcementExecuted EvidenceEventType = "ENFORCEMENT_EXECUTED"
	EvidenceExportGenerated    EvidenceEventType = "EXPORT_GENERATED"
)

// EvidenceChainNode is one append-only node of a per-violation evidence
// chain, hash-chained via PrevHash the same way FilterAuditEvent is.
type EvidenceChainNode struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	ViolationID uuid.UUID         `json:"violation_id" db:"violation_id"`
	EventType   EvidenceEventType `json:"event_type" db:"event_type"`
	SourceID    string            `json:"source_id" db:"source_id"`
	PrevHash    string            `json:"prev_hash" db:"prev_hash"`
	Hash        string            `json:"hash" db:"hash"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
}

// Checkpoint anchors a named stream (e.g. "filter_audit", "evidence")
// at its last-seen event id and hash plus a signed snapshot hash, as a
// trusted point recording how far reverification last succeeded.
type Checkpoint struct {
	ID              uuid.UUID `json:"id" db:"id"`
	StreamName      string    `json:"stream_name" db:"stream_name"`
	LastEventID     uuid.UUID `json:"last_event_id" db:"last_event_id"`
	LastEventHash   string    `json:"last_event_hash" db:"last_event_hash"`
	SnapshotHash    string    `json:"snapshot_hash" db:"snapshot_hash"`
	SnapshotVersion int       `json:"snapshot_version" db:"snapshot_version"`
	CommittedAt     time.Time `json:"committed_at" db:"committed_at"`
	IsRecovery      bool      `json:"is_recovery" db:"is_recovery"`
	Signature       string    `json:"signature" db:"signature"`
}

// SOP is a deterministic, procedure-version-independent lookup target
// for a violated rule: Standard Operating Procedure text plus the
// ordered enforcement actions a violation of that rule triggers.
// Supplements spec.md's "resolve SOP for rule" step with the shape
// original_source/app/core/sop.py actually carries (title, body,
// ordered actions) which the distilled spec left implicit.
type SOP struct {
	SOPID   string    `json:"sop_id" db:"sop_id"`
	RuleCode string   `json:"rule_code" db:"rule_code"`
	Title   string    `json:"title" db:"title"`
	Body    string    `json:"body" db:"body"`
	Actions []SOPRule `json:"actions" db:"-"`
}

// SOPRule is one ordered enforcement action a SOP prescribes.
type SOPRule struct {
	RuleID string `json:"rule_id" db:"rule_id"`
	Order  int    `json:"order" db:"rule_order"`
	Action EnforcementAction `json:"action" db:"action"`
}

// EnforcementAction is a closed enum of what an enforcement chain node
// can represent executing.
type EnforcementAction string

const (
	EnforcementActionQuarantineBatch EnforcementAction = "QUARANTINE_BATCH"
	EnforcementActionNotifySupervisor EnforcementAction = "NOTIFY_SUPERVISOR"
	EnforcementActionFreezeLine      EnforcementAction = "FREEZE_LINE"
	EnforcementActionLogOnly         EnforcementAction = "LOG_ONLY"
)

// EnforcementEvent records one executed enforcement action, linked back
// to the EvidenceChainNode it produced.
type EnforcementEvent struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	ViolationID uuid.UUID         `json:"violation_id" db:"violation_id"`
	Action      EnforcementAction `json:"action" db:"action"`
	ExecutedAt  time.Time         `json:"executed_at" db:"executed_at"`
	NodeID      uuid.UUID         `json:"node_id" db:"node_id"`
}
