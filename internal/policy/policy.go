// Package policy builds the OPA-shaped PolicyDecision record the
// Lifecycle Engine writes on every denial: the immutable root-of-trust
// for a deny outcome. Grounded on spec.md §4.5's decision_hash formula
// and on the teacher's audit.CalculateHash concatenation style
// (internal/domain/services/audit/service.go), generalized from a
// single audit hash to the three-hash chain (input/result/decision)
// spec.md requires.
package policy

import (
	"time"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/entities"
	"github.com/procguard/core/internal/hashing"
)

const PackageName = "procguard.lifecycle"

// InputFacts is the canonicalized input to a policy evaluation: the
// batch, event, actor role, current state and both procedure versions
// the invariant battery consulted. The step and approval facts are not
// included. Deny copies the same fields into the decision's Payload, so
// input_hash is reproducible from the stored decision record.
type InputFacts struct {
	BatchID        string `json:"batch_id"`
	Event          string `json:"event"`
	ActorRole      string `json:"actor_role"`
	CurrentState   string `json:"current_state"`
	RequestVersion int    `json:"request_version"`
	BoundVersion   int    `json:"bound_version"`
}

// Deny builds a PolicyDecision for a denial, following spec.md §4.5's
// formula exactly:
//
//	input_hash    = canonical_hash(input facts)
//	result_hash   = sha256("deny")
//	decision_hash = sha256(policy_package ":" input_hash ":" result_hash ":" timestamp)
func Deny(rule string, resourceID string, facts InputFacts, now time.Time) (entities.PolicyDecision, error) {
	inputHash, err := hashing.CanonicalHash(facts)
	if err != nil {
		return entities.PolicyDecision{}, err
	}
	resultHash := hashing.SHA256("deny")
	ts := hashing.FormatTimestamp(now)
	decisionHash := hashing.SHA256(PackageName + ":" + inputHash + ":" + resultHash + ":" + ts)

	return entities.PolicyDecision{
		DecisionID:    uuid.New(),
		Timestamp:     now,
		PolicyPackage: PackageName,
		Rule:          rule,
		Decision:      entities.PolicyDecisionDeny,
		ResourceType:  "batch",
		ResourceID:    resourceID,
		InputHash:     inputHash,
		ResultHash:    resultHash,
		DecisionHash:  decisionHash,
		Payload: map[string]any{
			"batch_id":        facts.BatchID,
			"event":           facts.Event,
			"actor_role":      facts.ActorRole,
			"current_state":   facts.CurrentState,
			"request_version": facts.RequestVersion,
			"bound_version":   facts.BoundVersion,
		},
	}, nil
}

// Allow builds a PolicyDecision for an allow outcome, using the same
// hash formula with result="allow". Not required by spec.md's atomic
// commit protocol (only deny decisions are written there) but exposed
// for out-of-band policy audits that want a recorded allow trail too.
func Allow(rule string, resourceID string, facts InputFacts, now time.Time) (entities.PolicyDecision, error) {
	inputHash, err := hashing.CanonicalHash(facts)
	if err != nil {
		return entities.PolicyDecision{}, err
	}
	resultHash := hashing.SHA256("allow")
	ts := hashing.FormatTimestamp(now)
	decisionHash := hashing.SHA256(PackageName + ":" + inputHash + ":" + resultHash + ":" + ts)

	return entities.PolicyDecision{
		DecisionID:    uuid.New(),
		Timestamp:     now,
		PolicyPackage: PackageName,
		Rule:          rule,
		Decision:      entities.PolicyDecisionAllow,
		ResourceType:  "batch",
		ResourceID:    resourceID,
		InputHash:     inputHash,
		ResultHash:    resultHash,
		DecisionHash:  decisionHash,
	}, nil
}
