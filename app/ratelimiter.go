package app

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/linkside/gateway/domain/gateway"
	"github.com/linkside/gateway/domain/ratelimit"
	"github.com/linkside/gateway/domain/tier"
	"github.com/linkside/gateway/ports"
)

// burstTag replaces the endpoint key for unlimited tiers, whose burst
// window is per-credential and endpoint-independent.
const burstTag = "burst"

// windowKeySep joins credential and endpoint into a shard map key. The
// credential alphabet cannot contain it, so prefix scans are safe.
const windowKeySep = "|"

type rlShard struct {
	mu      sync.Mutex
	windows map[string]ratelimit.WindowState
}

// RateLimitDeps contains dependencies for RateLimitService.
type RateLimitDeps struct {
	Clock  ports.Clock
	Stats  ports.RateLimitStatsStore // optional, best-effort
	Logger zerolog.Logger
}

// RateLimitConfig contains configuration for RateLimitService.
type RateLimitConfig struct {
	NumShards     int           // default 32
	Window        time.Duration // sustained window (default 1m)
	PruneInterval time.Duration // expired-entry sweep (default 5m)
	StatsTimeout  time.Duration // deadline for best-effort stats writes (default 2s)
}

// RateLimitService owns the window cache and applies tier quotas per
// (credential, endpoint). Window replacement on expiry and the
// subsequent increment happen atomically under one shard lock.
type RateLimitService struct {
	shards []*rlShard
	clock  ports.Clock
	stats  ports.RateLimitStatsStore
	logger zerolog.Logger
	cfg    RateLimitConfig

	stopCh chan struct{}
}

// NewRateLimitService creates a rate limit service and starts its
// background pruning.
func NewRateLimitService(deps RateLimitDeps, cfg RateLimitConfig) *RateLimitService {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = 5 * time.Minute
	}
	if cfg.StatsTimeout <= 0 {
		cfg.StatsTimeout = 2 * time.Second
	}

	s := &RateLimitService{
		shards: make([]*rlShard, cfg.NumShards),
		clock:  deps.Clock,
		stats:  deps.Stats,
		logger: deps.Logger,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &rlShard{windows: make(map[string]ratelimit.WindowState)}
	}

	go s.pruneLoop()
	return s
}

// Check decides whether a request may proceed. The tier comes from the
// credential validator earlier in the pipeline; this service never
// resolves credentials itself.
//
// Unlimited tiers get burst-only protection: a short fixed window with
// the tier's burst ceiling, independent of endpoint cost. Unknown tiers
// resolve to a zero-quota policy and are denied rather than erroring.
// The counter increments only on allow.
func (s *RateLimitService) Check(ctx context.Context, credentialKey string, t tier.Tier, endpoint gateway.Endpoint) ratelimit.Decision {
	key, cfg := s.windowFor(credentialKey, t, endpoint)
	now := s.clock.Now()

	shard := s.shard(key)
	shard.mu.Lock()
	decision, next := ratelimit.Check(shard.windows[key], cfg, now)
	shard.windows[key] = next
	shard.mu.Unlock()

	s.recordStats(credentialKey, endpoint.RegistryKey(), decision.Allowed, now)
	return decision
}

// CheckByCredential derives the tier from the key prefix. Intended for
// isolated use where no validator ran (tests, admin probes).
func (s *RateLimitService) CheckByCredential(ctx context.Context, credentialKey string, endpoint gateway.Endpoint) ratelimit.Decision {
	return s.Check(ctx, credentialKey, tier.FromPrefix(credentialKey), endpoint)
}

// Status reconstructs the current decision without consuming a slot.
func (s *RateLimitService) Status(credentialKey string, t tier.Tier, endpoint gateway.Endpoint) ratelimit.Decision {
	key, cfg := s.windowFor(credentialKey, t, endpoint)

	shard := s.shard(key)
	shard.mu.Lock()
	state := shard.windows[key]
	shard.mu.Unlock()

	return ratelimit.Status(state, cfg, s.clock.Now())
}

// Reset clears the window for one (credential, endpoint) pair.
func (s *RateLimitService) Reset(credentialKey string, t tier.Tier, endpoint gateway.Endpoint) {
	key, _ := s.windowFor(credentialKey, t, endpoint)
	shard := s.shard(key)
	shard.mu.Lock()
	delete(shard.windows, key)
	shard.mu.Unlock()
}

// ResetAll clears every window held for a credential.
func (s *RateLimitService) ResetAll(credentialKey string) {
	prefix := credentialKey + windowKeySep
	for _, shard := range s.shards {
		shard.mu.Lock()
		for k := range shard.windows {
			if strings.HasPrefix(k, prefix) {
				delete(shard.windows, k)
			}
		}
		shard.mu.Unlock()
	}
}

// Len returns the total number of tracked windows (for testing).
func (s *RateLimitService) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.windows)
		shard.mu.Unlock()
	}
	return total
}

// Close stops background pruning.
func (s *RateLimitService) Close() error {
	close(s.stopCh)
	return nil
}

func (s *RateLimitService) windowFor(credentialKey string, t tier.Tier, endpoint gateway.Endpoint) (string, ratelimit.Config) {
	policy := tier.Lookup(t)

	if policy.RequestsPerMinute < 0 {
		return credentialKey + windowKeySep + burstTag, ratelimit.Config{
			Limit:  policy.BurstLimit,
			Window: tier.BurstWindow,
		}
	}

	limit := ratelimit.EffectiveLimit(policy.RequestsPerMinute, endpoint.CostMultiplier)
	return credentialKey + windowKeySep + endpoint.RegistryKey(), ratelimit.Config{
		Limit:  limit,
		Window: s.cfg.Window,
	}
}

func (s *RateLimitService) shard(key string) *rlShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// recordStats mirrors the decision to the stats sink off the request
// path. Failures are logged at debug and never affect the decision.
func (s *RateLimitService) recordStats(credentialKey, endpointKey string, allowed bool, at time.Time) {
	if s.stats == nil {
		return
	}
	ev := ports.StatsEvent{
		Credential: credentialKey,
		Endpoint:   endpointKey,
		Allowed:    allowed,
		At:         at,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StatsTimeout)
		defer cancel()
		if err := s.stats.Record(ctx, ev); err != nil {
			s.logger.Debug().Err(err).Msg("rate limit stats write failed")
		}
	}()
}

func (s *RateLimitService) pruneLoop() {
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.prune()
		case <-s.stopCh:
			return
		}
	}
}

// prune drops windows that expired more than an hour ago.
func (s *RateLimitService) prune() {
	cutoff := s.clock.Now().Add(-time.Hour)
	for _, shard := range s.shards {
		shard.mu.Lock()
		for k, state := range shard.windows {
			if !state.WindowStart.IsZero() && state.WindowStart.Add(state.Window).Before(cutoff) {
				delete(shard.windows, k)
			}
		}
		shard.mu.Unlock()
	}
}
