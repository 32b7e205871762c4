package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/linkside/gateway/adapters/metrics"
	"github.com/linkside/gateway/domain/credential"
	"github.com/linkside/gateway/domain/tier"
	"github.com/linkside/gateway/pkg/ttlcache"
	"github.com/linkside/gateway/ports"
)

// ErrUnknownProvider is returned for OAuth tokens naming a provider the
// gateway has no adapter for. Unknown tokens fail closed.
var ErrUnknownProvider = errors.New("unknown oauth provider")

// CredentialDeps contains dependencies for CredentialService. Metrics
// may be nil.
type CredentialDeps struct {
	Store     ports.DocumentStore
	Clock     ports.Clock
	Providers []ports.OAuthProvider
	Logger    zerolog.Logger
	Metrics   *metrics.Collector
}

// CredentialConfig contains configuration for CredentialService.
type CredentialConfig struct {
	CacheTTL     time.Duration // validation cache TTL (default 5m)
	CacheSize    int           // bounded entry count (default 10000)
	EvictEvery   time.Duration // background eviction interval (default 1m)
	StoreTimeout time.Duration // per-lookup store deadline (default 2s)
	TokenSecret  []byte        // HMAC secret for session tokens
	UseMocks     bool          // degrade to prefix-derived results on store failure
}

// CredentialService resolves raw credentials to identities and tiers,
// caching results with a bounded TTL.
type CredentialService struct {
	store     ports.DocumentStore
	clock     ports.Clock
	logger    zerolog.Logger
	metrics   *metrics.Collector
	cache     *ttlcache.Cache[credential.Validation]
	providers map[string]ports.OAuthProvider
	cfg       CredentialConfig

	stopCh    chan struct{}
	closeOnce func()
}

// NewCredentialService creates a credential service and starts its
// background cache eviction.
func NewCredentialService(deps CredentialDeps, cfg CredentialConfig) *CredentialService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if cfg.EvictEvery <= 0 {
		cfg.EvictEvery = time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}

	providers := make(map[string]ports.OAuthProvider, len(deps.Providers))
	for _, p := range deps.Providers {
		providers[p.Name()] = p
	}

	s := &CredentialService{
		store:     deps.Store,
		clock:     deps.Clock,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		cache:     ttlcache.New[credential.Validation](cfg.CacheTTL, cfg.CacheSize, deps.Clock.Now),
		providers: providers,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}

	go s.evictLoop()
	s.closeOnce = func() { close(s.stopCh) }

	return s
}

// Validate resolves a raw credential.
//
// Malformed credentials short-circuit to invalid without a store round
// trip. Cache hits within TTL skip the store entirely. The computed
// result is cached regardless of validity (negative caching). A store
// failure degrades to a deterministic prefix-derived mock when UseMocks
// is set; otherwise it surfaces as an error (AuthenticationFailed at
// the dispatcher).
func (s *CredentialService) Validate(ctx context.Context, rawCredential string) (credential.Validation, error) {
	if !credential.ValidFormat(rawCredential) {
		return credential.Invalid(credential.ReasonBadFormat), nil
	}

	if v, ok := s.cache.Get(rawCredential); ok {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		return v, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	docs, err := s.store.Find(ctx, ports.CollectionAPIKeys, ports.Filter{"api_key": rawCredential})
	if err != nil {
		if s.metrics != nil {
			s.metrics.StoreErrors.WithLabelValues("find").Inc()
		}
		if s.cfg.UseMocks {
			s.logger.Warn().Err(err).Msg("credential store unavailable, using mock validation")
			v := credential.MockValidation(rawCredential)
			s.cache.Set(rawCredential, v)
			return v, nil
		}
		return credential.Validation{}, fmt.Errorf("credential lookup: %w", err)
	}

	var v credential.Validation
	if len(docs) == 0 {
		v = credential.Invalid(credential.ReasonNotFound)
	} else {
		v = credential.Validate(recordFromDocument(docs[0]), s.clock.Now())
	}

	s.cache.Set(rawCredential, v)
	return v, nil
}

// IssueKey generates and persists a new API key for a user.
// Returns the raw key, which is never stored outside the api_keys record.
func (s *CredentialService) IssueKey(ctx context.Context, userID string, t tier.Tier, expiresIn time.Duration, quota *int64) (string, error) {
	raw, rec := credential.Generate(t, userID, s.clock.Now(), expiresIn, quota)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if _, err := s.store.Create(ctx, ports.CollectionAPIKeys, recordToDocument(rec)); err != nil {
		return "", fmt.Errorf("persist key: %w", err)
	}
	return raw, nil
}

// RevokeKey deactivates a stored API key and drops any cached result.
func (s *CredentialService) RevokeKey(ctx context.Context, rawCredential string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	docs, err := s.store.Find(ctx, ports.CollectionAPIKeys, ports.Filter{"api_key": rawCredential})
	if err != nil {
		return fmt.Errorf("find key: %w", err)
	}
	if len(docs) == 0 {
		return errors.New("key not found")
	}

	id, _ := docs[0]["id"].(string)
	if err := s.store.Update(ctx, ports.CollectionAPIKeys, id, ports.Document{"is_active": false}); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}

	s.cache.Delete(rawCredential)
	return nil
}

// IssueSessionToken mints a signed, time-boxed developer-portal token.
func (s *CredentialService) IssueSessionToken(subject string, t tier.Tier, ttl time.Duration) string {
	now := s.clock.Now().UTC()
	return credential.SignToken(credential.Claims{
		Subject:   subject,
		Tier:      t.String(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}, s.cfg.TokenSecret)
}

// VerifySessionToken checks a portal token's signature and expiry.
func (s *CredentialService) VerifySessionToken(token string) (credential.Claims, error) {
	return credential.VerifyToken(token, s.cfg.TokenSecret, s.clock.Now())
}

// ValidateOAuth dispatches a third-party token to the named provider's
// introspection endpoint. Unknown providers fail closed; timeouts
// convert into the same error class as other store failures.
func (s *CredentialService) ValidateOAuth(ctx context.Context, provider, token string) (ports.OAuthValidation, error) {
	p, ok := s.providers[provider]
	if !ok {
		return ports.OAuthValidation{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	v, err := p.Introspect(ctx, token)
	if err != nil {
		return ports.OAuthValidation{}, fmt.Errorf("oauth introspection (%s): %w", provider, err)
	}
	v.Provider = provider
	return v, nil
}

// CacheLen returns the validation cache entry count (for testing).
func (s *CredentialService) CacheLen() int {
	return s.cache.Len()
}

// Close stops background eviction.
func (s *CredentialService) Close() error {
	s.closeOnce()
	return nil
}

func (s *CredentialService) evictLoop() {
	ticker := time.NewTicker(s.cfg.EvictEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.cache.Purge(); n > 0 {
				s.logger.Debug().Int("evicted", n).Msg("credential cache eviction")
			}
		case <-s.stopCh:
			return
		}
	}
}

// recordFromDocument maps an api_keys document to the domain record.
// Stores differ in how they round-trip numbers and times, so parsing
// is tolerant.
func recordFromDocument(doc ports.Document) credential.Record {
	rec := credential.Record{
		ID:     docString(doc, "id"),
		APIKey: docString(doc, "api_key"),
		UserID: docString(doc, "user_id"),
	}
	if t, ok := tier.FromName(docString(doc, "tier")); ok {
		rec.Tier = t
	}
	if b, ok := doc["is_active"].(bool); ok {
		rec.IsActive = b
	}
	if ts, ok := docTime(doc, "created_at"); ok {
		rec.CreatedAt = ts
	}
	if ts, ok := docTime(doc, "expires_at"); ok {
		rec.ExpiresAt = &ts
	}
	if n, ok := docInt(doc, "remaining_quota"); ok {
		rec.RemainingQuota = &n
	}
	return rec
}

func recordToDocument(rec credential.Record) ports.Document {
	doc := ports.Document{
		"api_key":    rec.APIKey,
		"user_id":    rec.UserID,
		"tier":       rec.Tier.String(),
		"is_active":  rec.IsActive,
		"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
	}
	if rec.ExpiresAt != nil {
		doc["expires_at"] = rec.ExpiresAt.Format(time.RFC3339Nano)
	}
	if rec.RemainingQuota != nil {
		doc["remaining_quota"] = *rec.RemainingQuota
	}
	return doc
}

func docString(doc ports.Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docTime(doc ports.Document, key string) (time.Time, bool) {
	switch v := doc[key].(type) {
	case time.Time:
		return v, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func docInt(doc ports.Document, key string) (int64, bool) {
	switch v := doc[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
