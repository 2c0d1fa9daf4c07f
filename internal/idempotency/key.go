// Package idempotency derives the stable fingerprint that collapses
// duplicate intake requests for the same logical lead into one submission.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/voxleads/lead-relay/internal/model"
)

// DeriveKey computes the idempotency key for a lead. Inputs are normalized
// first, so formatting-only differences (mixed-case email, punctuated phone
// numbers) produce the same key, while any change to the tenant or target
// identifiers produces a different one. Pure and total: a missing phone is
// the empty string, never an error.
func DeriveKey(tenantID string, email string, phone string, target model.TargetRef) string {
	parts := []string{
		tenantID,
		NormalizeEmail(email),
		NormalizePhone(phone),
		string(target.Scheme),
		target.ParentRef(),
		target.LocationRef(),
		target.ProgramID,
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail trims surrounding whitespace and lower-cases.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips everything but digits; "(555) 123-4567" and
// "5551234567" normalize identically.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
