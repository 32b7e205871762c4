// Package credential provides API credential value types and pure
// validation functions. This package has NO dependencies on I/O or
// external packages.
package credential

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"

	"github.com/linkside/gateway/domain/tier"
)

// Record represents a stored API key document (immutable value type).
// Field names mirror the api_keys collection.
type Record struct {
	ID             string
	APIKey         string
	UserID         string
	Tier           tier.Tier
	IsActive       bool
	CreatedAt      time.Time
	ExpiresAt      *time.Time // nil = never expires
	RemainingQuota *int64     // nil = no per-key quota hint
}

// Validation is the outcome of resolving a raw credential (value type).
type Validation struct {
	Valid          bool
	Tier           tier.Tier
	Identity       string // user id, empty when invalid
	ExpiresAt      *time.Time
	RemainingQuota *int64
	Reason         string // populated only when Valid=false
}

// Reasons for validation failure.
const (
	ReasonValid     = ""
	ReasonBadFormat = "invalid_format"
	ReasonNotFound  = "key_not_found"
	ReasonInactive  = "key_inactive"
	ReasonExpired   = "key_expired"
)

const randomLen = 32

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// keyPattern matches {tierPrefix}_{32 alphanumeric chars}.
var keyPattern = regexp.MustCompile(`^(free|prem|biz|ent)_[A-Za-z0-9]{32}$`)

// ValidFormat checks the raw key shape without touching any store.
// This is a PURE function.
func ValidFormat(rawKey string) bool {
	return keyPattern.MatchString(rawKey)
}

// Generate creates a new API key for the given tier.
// Returns the raw key (to give to the caller) and the Record to store.
func Generate(t tier.Tier, userID string, now time.Time, expiresIn time.Duration, quota *int64) (rawKey string, rec Record) {
	randomBytes := make([]byte, randomLen)
	if _, err := rand.Read(randomBytes); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	suffix := make([]byte, randomLen)
	for i, b := range randomBytes {
		suffix[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}

	rawKey = tier.Lookup(t).KeyPrefix + "_" + string(suffix)

	rec = Record{
		APIKey:         rawKey,
		UserID:         userID,
		Tier:           t,
		IsActive:       true,
		CreatedAt:      now.UTC(),
		RemainingQuota: quota,
	}
	if expiresIn > 0 {
		exp := now.UTC().Add(expiresIn)
		rec.ExpiresAt = &exp
	}
	return rawKey, rec
}

// Validate checks a stored record at the given time.
// This is a PURE function - no side effects, deterministic.
func Validate(rec Record, now time.Time) Validation {
	if !rec.IsActive {
		return Validation{Valid: false, Tier: tier.Free, Reason: ReasonInactive}
	}
	if rec.ExpiresAt != nil && now.After(*rec.ExpiresAt) {
		return Validation{Valid: false, Tier: tier.Free, Reason: ReasonExpired}
	}
	return Validation{
		Valid:          true,
		Tier:           rec.Tier,
		Identity:       rec.UserID,
		ExpiresAt:      rec.ExpiresAt,
		RemainingQuota: rec.RemainingQuota,
	}
}

// Invalid builds a failed validation with the lowest tier.
// This is a PURE function.
func Invalid(reason string) Validation {
	return Validation{Valid: false, Tier: tier.Free, Reason: reason}
}

// MockValidation derives a deterministic validation from the key prefix.
// Used when the document store is unavailable in non-production modes.
// This is a PURE function.
func MockValidation(rawKey string) Validation {
	t := tier.FromPrefix(rawKey)
	return Validation{
		Valid:    true,
		Tier:     t,
		Identity: "mock_" + t.String() + "_user",
	}
}
