package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ActorAssertion is the identity of whoever is raising a lifecycle event.
// It may arrive as plain header strings (ActorID/Role already parsed by
// the caller) or be recovered from a signed bearer token via
// AssertionVerifier.Verify — either path produces the same shape so the
// Lifecycle Engine never has to know which one was used.
type ActorAssertion struct {
	ActorID string
	Role    Role
}

// AssertionClaims is the JWT claim set for a signed actor assertion,
// adapted from the teacher's device-bound session claims
// (pkg/auth/device_bound_jwt.go DeviceBoundClaims) down to what a
// short-lived actor assertion needs: who, what role, nothing about
// devices or sessions since Procguard authorizes actions, not logins.
type AssertionClaims struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// AssertionVerifier verifies HS256-signed actor assertions. A deployment
// that only trusts raw X-Actor-Id/X-Actor-Role headers never constructs
// one; it exists for deployments that want a cryptographically
// non-spoofable record of who approved a regulated action.
type AssertionVerifier struct {
	secret   []byte
	audience string
}

func NewAssertionVerifier(secret []byte, audience string) *AssertionVerifier {
	return &AssertionVerifier{secret: secret, audience: audience}
}

// Verify parses and validates a bearer token, returning the ActorAssertion
// it carries. Any failure — bad signature, expiry, wrong audience, an
// unparseable role — is reported as ErrInvalidRole: from the Lifecycle
// Engine's point of view an unverifiable assertion is indistinguishable
// from an unknown role.
func (v *AssertionVerifier) Verify(tokenString string) (ActorAssertion, error) {
	claims := &AssertionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithAudience(v.audience), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return ActorAssertion{}, ErrInvalidRole
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return ActorAssertion{}, ErrInvalidRole
	}
	if claims.ActorID == "" {
		return ActorAssertion{}, ErrInvalidRole
	}
	return ActorAssertion{ActorID: claims.ActorID, Role: role}, nil
}

// IssueAssertion signs a short-lived actor assertion. Used by trusted
// internal callers (e.g. a supervisor approval ceremony that has just
// verified a TOTP code, see internal/approval) to hand the engine
// cryptographic proof of identity instead of a bare header pair.
func (v *AssertionVerifier) IssueAssertion(actorID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := AssertionClaims{
		ActorID: actorID,
		Role:    string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
