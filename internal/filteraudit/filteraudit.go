// Package filteraudit implements the tamper-evident, whole-ledger hash
// chain of recorded forensic queries (spec.md §4.7). Grounded on the
// teacher's WORM audit chain (internal/domain/entities/audit.go,
// internal/domain/services/audit/service.go — mutex-guarded lastHash,
// sequential append) generalized from a single global chain to a
// verifier that can replay and pinpoint the first tampered row.
package filteraudit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/entities"
	"github.com/procguard/core/internal/hashing"
)

// RowHash computes hash = sha256(prev_hash ‖ user_id ‖ screen ‖
// canonical(filter_payload) ‖ ts), exactly as spec.md §4.7 specifies.
func RowHash(prevHash string, userID uuid.UUID, screen string, filterPayload map[string]any, createdAt time.Time) (string, error) {
	canonicalPayload, err := hashing.Canonicalize(filterPayload)
	if err != nil {
		return "", err
	}
	return hashing.ChainHash(prevHash, userID.String(), screen, canonicalPayload, hashing.FormatTimestamp(createdAt)), nil
}

// Chain appends FilterAuditEvent rows, threading PrevHash forward. A
// single Chain instance guards its lastHash with a mutex so concurrent
// recordings serialize correctly — the Resilience Circuit is the only
// other process-wide mutable state this codebase carries (spec.md §5).
type Chain struct {
	mu       sync.Mutex
	lastHash string
}

// NewChain starts a chain resuming from lastHash (empty for genesis).
func NewChain(lastHash string) *Chain {
	return &Chain{lastHash: lastHash}
}

// Append builds and returns the next FilterAuditEvent row, advancing
// the chain's head hash. The caller is responsible for persisting it.
func (c *Chain) Append(userID uuid.UUID, screen string, filterPayload map[string]any, now time.Time) (entities.FilterAuditEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, err := RowHash(c.lastHash, userID, screen, filterPayload, now)
	if err != nil {
		return entities.FilterAuditEvent{}, err
	}
	row := entities.FilterAuditEvent{
		ID:            uuid.New(),
		UserID:        userID,
		Screen:        screen,
		FilterPayload: filterPayload,
		CreatedAt:     now,
		PrevHash:      c.lastHash,
		Hash:          hash,
	}
	c.lastHash = hash
	return row, nil
}

// LastHash returns the current chain head.
func (c *Chain) LastHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHash
}

// VerifyResult is the whole-chain replay outcome (spec.md §4.7 and P6).
type VerifyResult struct {
	Valid      bool
	FirstBadID *uuid.UUID
	Recorded   string
	Expected   string
	PrevUsed   string
}

// Verify replays rows in creation order, recomputing each hash from the
// previous row's recorded hash. The first mismatch short-circuits and
// is reported with its recorded/expected/prev_used triple so an
// operator can see exactly where the chain diverged.
func Verify(rows []entities.FilterAuditEvent) (VerifyResult, error) {
	prevHash := ""
	for i, row := range rows {
		if i > 0 {
			prevHash = rows[i-1].Hash
		}
		if row.PrevHash != prevHash {
			id := row.ID
			return VerifyResult{
				Valid:      false,
				FirstBadID: &id,
				Recorded:   row.Hash,
				Expected:   "",
				PrevUsed:   prevHash,
			}, nil
		}
		expected, err := RowHash(prevHash, row.UserID, row.Screen, row.FilterPayload, row.CreatedAt)
		if err != nil {
			return VerifyResult{}, err
		}
		if expected != row.Hash {
			id := row.ID
			return VerifyResult{
				Valid:      false,
				FirstBadID: &id,
				Recorded:   row.Hash,
				Expected:   expected,
				PrevUsed:   prevHash,
			}, nil
		}
	}
	return VerifyResult{Valid: true}, nil
}
