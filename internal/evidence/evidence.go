// Package evidence builds and verifies the per-violation evidence
// chain: an append-only, hash-linked sequence of nodes reconstructing
// how a violation was detected, which SOP it invoked, and what
// enforcement ran. Grounded on original_source/app/core/evidence.py for
// the node hash formula (plain concatenation, not a canonical-payload
// hash — see DESIGN.md's Open Question resolution) and on the teacher's
// audit hash-chain style (internal/domain/entities/audit.go).
package evidence

import (
	"time"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/entities"
	"github.com/procguard/core/internal/hashing"
)

// NodeHash computes an EvidenceChainNode's hash exactly as
// original_source/app/core/evidence.py does: plain concatenation of
// event_type, source_id, previous hash, and created_at — not a
// canonical-JSON hash of the whole node.
func NodeHash(eventType entities.EvidenceEventType, sourceID, prevHash string, createdAt time.Time) string {
	return hashing.SHA256(string(eventType) + sourceID + prevHash + hashing.FormatTimestamp(createdAt))
}

// Builder appends nodes to a single violation's evidence chain,
// threading PrevHash forward one node at a time.
type Builder struct {
	violationID uuid.UUID
	prevHash    string
	nodes       []entities.EvidenceChainNode
}

// NewBuilder starts a chain for violationID. genesisPrevHash is the
// empty string for a fresh violation, or the prior chain's last hash
// when resuming an interrupted build (there should never be a reason
// to resume one mid-request, but the constructor stays general).
func NewBuilder(violationID uuid.UUID, genesisPrevHash string) *Builder {
	return &Builder{violationID: violationID, prevHash: genesisPrevHash}
}

// Append adds one node of the given type, sourced from sourceID, and
// returns it. Nodes must be appended in the order spec.md §4.5
// prescribes: FILTER_APPLIED? -> VIOLATION_DETECTED -> SOP_INVOKED ->
// ENFORCEMENT_EXECUTED...
func (b *Builder) Append(eventType entities.EvidenceEventType, sourceID string, now time.Time) entities.EvidenceChainNode {
	hash := NodeHash(eventType, sourceID, b.prevHash, now)
	node := entities.EvidenceChainNode{
		ID:          uuid.New(),
		ViolationID: b.violationID,
		EventType:   eventType,
		SourceID:    sourceID,
		PrevHash:    b.prevHash,
		Hash:        hash,
		CreatedAt:   now,
	}
	b.nodes = append(b.nodes, node)
	b.prevHash = hash
	return node
}

// Nodes returns every node appended so far, in order.
func (b *Builder) Nodes() []entities.EvidenceChainNode {
	return b.nodes
}

// LastHash returns the most recently computed hash, or the genesis
// value if nothing has been appended.
func (b *Builder) LastHash() string {
	return b.prevHash
}

// VerificationLevel is a closed enum: how much of a reconstructed
// evidence chain could be cryptographically confirmed.
type VerificationLevel string

const (
	LevelFull       VerificationLevel = "FULL"
	LevelPartial    VerificationLevel = "PARTIAL"
	LevelUnverified VerificationLevel = "UNVERIFIED"
)

// Chain is everything needed to reconstruct and verify one violation's
// full evidence trail: the violation itself, the deny policy decision
// it links to, the audit row that recorded the denial, and the ordered
// evidence nodes.
type Chain struct {
	Violation      entities.Violation
	PolicyDecision entities.PolicyDecision
	Audit          entities.AuditLog
	Nodes          []entities.EvidenceChainNode
	SnapshotAnchor bool
}

// VerifyResult reports per-node outcomes plus the overall level.
type VerifyResult struct {
	Level          VerificationLevel
	ViolationValid bool
	PolicyValid    bool
	AuditValid     bool
	NodesValid     bool
	FirstBadNodeID *uuid.UUID
}

// Verify recomputes every hash in the chain and reports the
// verification level per spec.md §4.6:
//
//	FULL       if all present nodes verify AND a snapshot anchor exists
//	PARTIAL    if all verify but no anchor, or anchor exists but some node fails
//	UNVERIFIED otherwise
func Verify(c Chain) (VerifyResult, error) {
	violationHash, err := hashing.CanonicalHash(c.Violation.Payload)
	if err != nil {
		return VerifyResult{}, err
	}
	result := VerifyResult{
		ViolationValid: violationHash == c.Violation.ViolationHash,
		PolicyValid:    c.Violation.OPADecisionHash == c.PolicyDecision.DecisionHash,
	}

	auditHash, err := hashing.CanonicalHash(c.Audit.Payload)
	if err != nil {
		return VerifyResult{}, err
	}
	result.AuditValid = auditHash == c.Audit.AuditHash

	result.NodesValid = true
	prevHash := ""
	if len(c.Nodes) > 0 {
		prevHash = c.Nodes[0].PrevHash
	}
	for i, node := range c.Nodes {
		if i > 0 {
			prevHash = c.Nodes[i-1].Hash
		}
		expected := NodeHash(node.EventType, node.SourceID, prevHash, node.CreatedAt)
		if expected != node.Hash || node.PrevHash != prevHash {
			result.NodesValid = false
			id := node.ID
			result.FirstBadNodeID = &id
			break
		}
	}

	allValid := result.ViolationValid && result.PolicyValid && result.AuditValid && result.NodesValid

	switch {
	case allValid && c.SnapshotAnchor:
		result.Level = LevelFull
	case allValid && !c.SnapshotAnchor:
		result.Level = LevelPartial
	case !allValid && c.SnapshotAnchor:
		result.Level = LevelPartial
	default:
		result.Level = LevelUnverified
	}
	return result, nil
}
