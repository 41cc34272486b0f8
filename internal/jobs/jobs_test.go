package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procguard/core/internal/checkpoint"
	"github.com/procguard/core/internal/entities"
	"github.com/procguard/core/internal/filteraudit"
	"github.com/procguard/core/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	filterRows       []entities.FilterAuditEvent
	openViolations   []entities.Violation
	decisions        map[string]entities.PolicyDecision
	auditsByViolation map[uuid.UUID]entities.AuditLog
	nodesByViolation map[uuid.UUID][]entities.EvidenceChainNode
	checkpoints      map[string]entities.Checkpoint
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		decisions:        map[string]entities.PolicyDecision{},
		auditsByViolation: map[uuid.UUID]entities.AuditLog{},
		nodesByViolation: map[uuid.UUID][]entities.EvidenceChainNode{},
		checkpoints:      map[string]entities.Checkpoint{},
	}
}

func (f *fakeReader) FetchViolation(ctx context.Context, violationID uuid.UUID) (entities.Violation, error) {
	for _, v := range f.openViolations {
		if v.ViolationID == violationID {
			return v, nil
		}
	}
	return entities.Violation{}, assertNotFound
}
func (f *fakeReader) FetchOpenViolations(ctx context.Context, limit int) ([]entities.Violation, error) {
	return f.openViolations, nil
}
func (f *fakeReader) FetchPolicyDecision(ctx context.Context, decisionHash string) (entities.PolicyDecision, error) {
	d, ok := f.decisions[decisionHash]
	if !ok {
		return entities.PolicyDecision{}, assertNotFound
	}
	return d, nil
}
func (f *fakeReader) FetchAuditByViolation(ctx context.Context, violationID uuid.UUID) (entities.AuditLog, error) {
	a, ok := f.auditsByViolation[violationID]
	if !ok {
		return entities.AuditLog{}, assertNotFound
	}
	return a, nil
}
func (f *fakeReader) FetchEvidenceNodes(ctx context.Context, violationID uuid.UUID) ([]entities.EvidenceChainNode, error) {
	return f.nodesByViolation[violationID], nil
}
func (f *fakeReader) FetchLatestCheckpoint(ctx context.Context, streamName string) (entities.Checkpoint, bool, error) {
	cp, ok := f.checkpoints[streamName]
	return cp, ok, nil
}
func (f *fakeReader) FetchFilterAuditEvents(ctx context.Context, userID uuid.UUID, limit int) ([]entities.FilterAuditEvent, error) {
	return f.filterRows, nil
}
func (f *fakeReader) FetchAllFilterAuditEvents(ctx context.Context, limit int) ([]entities.FilterAuditEvent, error) {
	return f.filterRows, nil
}

var assertNotFound = errAssertNotFound{}

type errAssertNotFound struct{}

func (errAssertNotFound) Error() string { return "jobs test: not found" }

type fakeCheckpointStore struct {
	inserted []entities.Checkpoint
}

func (f *fakeCheckpointStore) InsertCheckpoint(ctx context.Context, cp entities.Checkpoint) error {
	f.inserted = append(f.inserted, cp)
	return nil
}

func newTestScheduler(reader *fakeReader, store *fakeCheckpointStore) *Scheduler {
	signer := checkpoint.NewSigner([]byte("test-master-secret"))
	log := logging.New("error", "test")
	s := NewScheduler(reader, store, signer, log)
	s.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestRunFilterAuditReverification_ValidChainCommitsCheckpoint(t *testing.T) {
	reader := newFakeReader()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	userID := uuid.New()
	hash1, err := filteraudit.RowHash("", userID, "screen-a", map[string]any{}, now)
	require.NoError(t, err)
	row1 := entities.FilterAuditEvent{ID: uuid.New(), UserID: userID, Screen: "screen-a", FilterPayload: map[string]any{}, CreatedAt: now, PrevHash: "", Hash: hash1}
	reader.filterRows = []entities.FilterAuditEvent{row1}

	store := &fakeCheckpointStore{}
	s := newTestScheduler(reader, store)

	s.runFilterAuditReverification(context.Background())

	require.Len(t, store.inserted, 1)
	assert.Equal(t, FilterAuditStream, store.inserted[0].StreamName)
	assert.Equal(t, row1.ID, store.inserted[0].LastEventID)
}

func TestRunFilterAuditReverification_TamperedChainSkipsCheckpoint(t *testing.T) {
	reader := newFakeReader()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	row := entities.FilterAuditEvent{ID: uuid.New(), UserID: uuid.New(), Screen: "screen-a", FilterPayload: map[string]any{}, CreatedAt: now, PrevHash: "", Hash: "not-the-real-hash"}
	reader.filterRows = []entities.FilterAuditEvent{row}

	store := &fakeCheckpointStore{}
	s := newTestScheduler(reader, store)

	s.runFilterAuditReverification(context.Background())

	assert.Empty(t, store.inserted)
}

func TestRunEvidenceReverification_NoOpenViolationsDoesNothing(t *testing.T) {
	reader := newFakeReader()
	store := &fakeCheckpointStore{}
	s := newTestScheduler(reader, store)

	s.runEvidenceReverification(context.Background())

	assert.Empty(t, store.inserted)
}
