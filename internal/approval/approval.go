// Package approval implements the TOTP step-up ceremony a Supervisor
// completes before an approve_step request: verify a time-based one-time
// code against the supervisor's enrolled secret, then issue a
// short-lived signed internal/identity.ActorAssertion so the Lifecycle
// Engine receives cryptographic proof of the ceremony instead of a bare
// header pair. Supplements spec.md's "approve_step requires Supervisor"
// rule (SPEC_FULL.md §4.5) with the concrete step-up mechanism the
// distilled spec left unspecified; grounded on the teacher's
// pkg/auth-style "verify then issue a token" shape
// (pkg/auth/device_bound_jwt.go) applied to TOTP instead of a device
// fingerprint.
package approval

import (
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/procguard/core/internal/identity"
)

// AssertionTTL is how long an assertion issued by a successful ceremony
// remains valid. Short enough that a stolen token can't be replayed
// long after the approval it represents.
const AssertionTTL = 2 * time.Minute

var (
	// ErrInvalidCode is returned when the supplied TOTP code does not
	// validate against the actor's enrolled secret.
	ErrInvalidCode = errors.New("approval: invalid totp code")
)

// Enrollment is a newly generated TOTP secret for a Supervisor, along
// with the otpauth:// URL a caller encodes into a QR code out of band
// (QR rendering itself is out of this module's scope).
type Enrollment struct {
	Secret string
	URL    string
}

// Enroll generates a new TOTP secret for actorID under the given issuer
// name (e.g. "Procguard Core").
func Enroll(issuer, actorID string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: actorID,
	})
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Ceremony verifies TOTP codes and, on success, issues a signed
// ActorAssertion proving a Supervisor completed the step-up.
type Ceremony struct {
	verifier *identity.AssertionVerifier
}

func NewCeremony(verifier *identity.AssertionVerifier) *Ceremony {
	return &Ceremony{verifier: verifier}
}

// Authenticate validates code against secret at now and, if valid,
// issues a signed assertion for actorID as RoleSupervisor — the only
// role a TOTP step-up ceremony is ever invoked for (spec.md §4.2: only
// Supervisors approve).
func (c *Ceremony) Authenticate(secret, code, actorID string, now time.Time) (string, error) {
	valid, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	if !valid {
		return "", ErrInvalidCode
	}
	return c.verifier.IssueAssertion(actorID, identity.RoleSupervisor, AssertionTTL)
}
