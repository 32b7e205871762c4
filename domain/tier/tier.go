// Package tier defines the subscription tier table and pure access rules.
// This package has NO dependencies on I/O or external packages.
package tier

import (
	"strings"
	"time"
)

// Tier is an ordered subscription level. Higher values carry strictly
// higher priority and larger quotas.
type Tier int

const (
	Free Tier = iota
	Premium
	Business
	Enterprise
)

// Unlimited marks a quota field as having no sustained ceiling.
const Unlimited = -1

// BurstWindow is the short fixed window applied to unlimited tiers.
const BurstWindow = 5 * time.Second

// Policy is a static rule row for a tier (immutable value type).
type Policy struct {
	Name              string
	Priority          int
	RequestsPerMinute int   // -1 = unlimited
	RequestsPerDay    int64 // -1 = unlimited
	BurstLimit        int   // ceiling inside BurstWindow, unlimited tiers only
	KeyPrefix         string
	IncludedUnits     int64 // usage units included per billing period
	OverageCentsPer   int64 // cents charged per unit over IncludedUnits
}

// policies is the static tier table. Priority is strictly increasing
// with capability.
var policies = map[Tier]Policy{
	Free: {
		Name:              "free",
		Priority:          0,
		RequestsPerMinute: 60,
		RequestsPerDay:    1000,
		BurstLimit:        10,
		KeyPrefix:         "free",
		IncludedUnits:     10000,
		OverageCentsPer:   0, // free tier is hard-capped, never billed
	},
	Premium: {
		Name:              "premium",
		Priority:          1,
		RequestsPerMinute: 300,
		RequestsPerDay:    20000,
		BurstLimit:        50,
		KeyPrefix:         "prem",
		IncludedUnits:     100000,
		OverageCentsPer:   1,
	},
	Business: {
		Name:              "business",
		Priority:          2,
		RequestsPerMinute: 1200,
		RequestsPerDay:    200000,
		BurstLimit:        200,
		KeyPrefix:         "biz",
		IncludedUnits:     1000000,
		OverageCentsPer:   1,
	},
	Enterprise: {
		Name:              "enterprise",
		Priority:          3,
		RequestsPerMinute: Unlimited,
		RequestsPerDay:    Unlimited,
		BurstLimit:        500,
		KeyPrefix:         "ent",
		IncludedUnits:     10000000,
		OverageCentsPer:   2,
	},
}

// All returns every tier in ascending priority order.
// This is a PURE function.
func All() []Tier {
	return []Tier{Free, Premium, Business, Enterprise}
}

// Lookup returns the policy row for a tier. Unknown tiers get a
// zero-quota policy so callers can deny rather than error.
// This is a PURE function.
func Lookup(t Tier) Policy {
	if p, ok := policies[t]; ok {
		return p
	}
	return Policy{Name: "unknown", Priority: -1, RequestsPerMinute: 0, RequestsPerDay: 0}
}

// FromName resolves a tier by its policy name.
// This is a PURE function.
func FromName(name string) (Tier, bool) {
	for _, t := range All() {
		if policies[t].Name == strings.ToLower(strings.TrimSpace(name)) {
			return t, true
		}
	}
	return Free, false
}

// FromPrefix derives a tier from a credential's key prefix.
// Used by the mock fallback and by rate limiting in isolation;
// unrecognized prefixes map to the lowest tier.
// This is a PURE function.
func FromPrefix(rawCredential string) Tier {
	idx := strings.IndexByte(rawCredential, '_')
	if idx <= 0 {
		return Free
	}
	prefix := rawCredential[:idx]
	for _, t := range All() {
		if policies[t].KeyPrefix == prefix {
			return t
		}
	}
	return Free
}

// CanAccess reports whether a caller of tier t may use an endpoint
// requiring the given tier.
// This is a PURE function.
func (t Tier) CanAccess(required Tier) bool {
	return Lookup(t).Priority >= Lookup(required).Priority
}

// IsUnlimited reports whether the tier has no sustained quota.
// This is a PURE function.
func (t Tier) IsUnlimited() bool {
	return Lookup(t).RequestsPerMinute < 0
}

// String returns the policy name.
func (t Tier) String() string {
	return Lookup(t).Name
}
