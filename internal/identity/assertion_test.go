package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertionVerifier_RoundTrip(t *testing.T) {
	v := NewAssertionVerifier([]byte("test-secret"), "procguard")
	token, err := v.IssueAssertion("sup-1", RoleSupervisor, time.Minute)
	require.NoError(t, err)

	assertion, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "sup-1", assertion.ActorID)
	assert.Equal(t, RoleSupervisor, assertion.Role)
}

func TestAssertionVerifier_ExpiredTokenRejected(t *testing.T) {
	v := NewAssertionVerifier([]byte("test-secret"), "procguard")
	token, err := v.IssueAssertion("sup-1", RoleSupervisor, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAssertionVerifier_WrongSecretRejected(t *testing.T) {
	v := NewAssertionVerifier([]byte("test-secret"), "procguard")
	token, err := v.IssueAssertion("sup-1", RoleSupervisor, time.Minute)
	require.NoError(t, err)

	other := NewAssertionVerifier([]byte("other-secret"), "procguard")
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAssertionVerifier_WrongAudienceRejected(t *testing.T) {
	v := NewAssertionVerifier([]byte("test-secret"), "procguard")
	token, err := v.IssueAssertion("sup-1", RoleSupervisor, time.Minute)
	require.NoError(t, err)

	other := NewAssertionVerifier([]byte("test-secret"), "other-audience")
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidRole)
}
