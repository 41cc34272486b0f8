package checkpoint

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProducesVerifiableSignature(t *testing.T) {
	signer := NewSigner([]byte("master-secret"))
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)

	cp, err := New(signer, "evidence", uuid.New(), "eventhash", "snaphash", 1, false, now)
	require.NoError(t, err)
	assert.NotEmpty(t, cp.Signature)
	assert.NoError(t, signer.Verify(cp))
}

func TestVerify_DetectsTamperedField(t *testing.T) {
	signer := NewSigner([]byte("master-secret"))
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)

	cp, err := New(signer, "evidence", uuid.New(), "eventhash", "snaphash", 1, false, now)
	require.NoError(t, err)

	cp.SnapshotHash = "tampered"
	assert.ErrorIs(t, signer.Verify(cp), ErrSignatureMismatch)
}

func TestSign_DifferentStreamsYieldDifferentKeys(t *testing.T) {
	signer := NewSigner([]byte("master-secret"))
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	eventID := uuid.New()

	a, err := New(signer, "evidence", eventID, "h", "s", 1, false, now)
	require.NoError(t, err)
	b, err := New(signer, "filter_audit", eventID, "h", "s", 1, false, now)
	require.NoError(t, err)

	assert.NotEqual(t, a.Signature, b.Signature)
}

func TestVerify_WrongMasterSecretFails(t *testing.T) {
	signer := NewSigner([]byte("master-secret"))
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	cp, err := New(signer, "evidence", uuid.New(), "h", "s", 1, false, now)
	require.NoError(t, err)

	other := NewSigner([]byte("different-secret"))
	assert.ErrorIs(t, other.Verify(cp), ErrSignatureMismatch)
}
