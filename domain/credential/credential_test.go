package credential_test

import (
	"strings"
	"testing"
	"time"

	"github.com/linkside/gateway/domain/credential"
	"github.com/linkside/gateway/domain/tier"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestValidFormat(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid free key", "free_" + strings.Repeat("a", 32), true},
		{"valid premium key", "prem_" + strings.Repeat("B", 32), true},
		{"valid mixed suffix", "ent_" + strings.Repeat("aB9", 10) + "xY", true},
		{"unknown prefix", "pro_" + strings.Repeat("a", 32), false},
		{"suffix too short", "free_" + strings.Repeat("a", 31), false},
		{"suffix too long", "free_" + strings.Repeat("a", 33), false},
		{"suffix with symbols", "free_" + strings.Repeat("a", 31) + "!", false},
		{"empty", "", false},
		{"no separator", "free" + strings.Repeat("a", 32), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := credential.ValidFormat(tt.key); got != tt.want {
				t.Errorf("ValidFormat(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	quota := int64(500)
	raw, rec := credential.Generate(tier.Premium, "user_1", baseTime, time.Hour, &quota)

	if !credential.ValidFormat(raw) {
		t.Errorf("generated key %q fails format check", raw)
	}
	if !strings.HasPrefix(raw, "prem_") {
		t.Errorf("key %q missing tier prefix", raw)
	}
	if rec.APIKey != raw {
		t.Error("record should carry the raw key")
	}
	if !rec.IsActive {
		t.Error("new key should be active")
	}
	if rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("expiresAt = %v, want %v", rec.ExpiresAt, baseTime.Add(time.Hour))
	}
	if rec.RemainingQuota == nil || *rec.RemainingQuota != 500 {
		t.Errorf("remainingQuota = %v, want 500", rec.RemainingQuota)
	}
}

func TestGenerate_NoExpiry(t *testing.T) {
	_, rec := credential.Generate(tier.Free, "user_1", baseTime, 0, nil)

	if rec.ExpiresAt != nil {
		t.Errorf("expiresAt = %v, want nil", rec.ExpiresAt)
	}
	if rec.RemainingQuota != nil {
		t.Errorf("remainingQuota = %v, want nil", rec.RemainingQuota)
	}
}

func TestGenerate_UniqueKeys(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		raw, _ := credential.Generate(tier.Free, "user_1", baseTime, 0, nil)
		if seen[raw] {
			t.Fatalf("duplicate key generated: %s", raw)
		}
		seen[raw] = true
	}
}

func TestValidate(t *testing.T) {
	expired := baseTime.Add(-time.Hour)
	future := baseTime.Add(time.Hour)

	tests := []struct {
		name       string
		rec        credential.Record
		wantValid  bool
		wantReason string
	}{
		{
			name:      "active key without expiry",
			rec:       credential.Record{Tier: tier.Premium, UserID: "u1", IsActive: true},
			wantValid: true,
		},
		{
			name:      "active key before expiry",
			rec:       credential.Record{Tier: tier.Free, UserID: "u1", IsActive: true, ExpiresAt: &future},
			wantValid: true,
		},
		{
			name:       "inactive key",
			rec:        credential.Record{Tier: tier.Premium, UserID: "u1", IsActive: false},
			wantValid:  false,
			wantReason: credential.ReasonInactive,
		},
		{
			name:       "expired key",
			rec:        credential.Record{Tier: tier.Premium, UserID: "u1", IsActive: true, ExpiresAt: &expired},
			wantValid:  false,
			wantReason: credential.ReasonExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := credential.Validate(tt.rec, baseTime)
			if v.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", v.Valid, tt.wantValid)
			}
			if v.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", v.Reason, tt.wantReason)
			}
			if !tt.wantValid && v.Tier != tier.Free {
				t.Errorf("invalid credential tier = %v, want free", v.Tier)
			}
		})
	}
}

func TestValidate_ExpiryIsInclusive(t *testing.T) {
	// A key checked exactly at its expiry instant is still valid;
	// only strictly-after fails.
	exp := baseTime
	rec := credential.Record{Tier: tier.Free, UserID: "u1", IsActive: true, ExpiresAt: &exp}

	if v := credential.Validate(rec, baseTime); !v.Valid {
		t.Error("key at exact expiry instant should be valid")
	}
	if v := credential.Validate(rec, baseTime.Add(time.Nanosecond)); v.Valid {
		t.Error("key past expiry should be invalid")
	}
}

func TestMockValidation(t *testing.T) {
	v := credential.MockValidation("biz_" + strings.Repeat("a", 32))

	if !v.Valid {
		t.Error("mock validation should be valid")
	}
	if v.Tier != tier.Business {
		t.Errorf("tier = %v, want business", v.Tier)
	}
	if v.Identity != "mock_business_user" {
		t.Errorf("identity = %q", v.Identity)
	}

	// Deterministic for the same key.
	if v2 := credential.MockValidation("biz_" + strings.Repeat("a", 32)); v2 != v {
		t.Error("mock validation should be deterministic")
	}
}
