package logging

import (
	"crypto/sha256"
	"encoding/hex"
)

// Redact returns a deterministic SHA-256 hash of input, so actor ids,
// tokens, and other sensitive values can be correlated across log lines
// without ever appearing in plaintext. Adapted from the teacher's
// internal/pkg/util.Redact.
func Redact(input string) string {
	if input == "" {
		return ""
	}
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}
