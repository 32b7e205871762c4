// Package redis provides the Redis implementation of the rate limit
// stats port.
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkside/gateway/ports"
)

// StatsStore mirrors rate limit decisions into Redis hashes: a
// cumulative total, per-minute buckets, per-endpoint counters, and
// optionally per-credential counters. Time-series keys expire; the
// total does not.
type StatsStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration

	trackCredentials bool
}

// StatsOption customizes a StatsStore.
type StatsOption func(*StatsStore)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) StatsOption {
	return func(s *StatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTTL overrides the expiry applied to bucketed keys.
func WithTTL(d time.Duration) StatsOption {
	return func(s *StatsStore) { s.ttl = d }
}

// WithCredentialTracking enables per-credential counters. Off by
// default; key cardinality grows with the credential population.
func WithCredentialTracking(track bool) StatsOption {
	return func(s *StatsStore) { s.trackCredentials = track }
}

// NewStatsStore creates a Redis-backed stats store.
func NewStatsStore(rdb *redis.Client, opts ...StatsOption) *StatsStore {
	s := &StatsStore{
		rdb:    rdb,
		prefix: "gateway:ratelimit",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record writes one decision. All counters go in a single pipeline.
func (s *StatsStore) Record(ctx context.Context, ev ports.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := s.prefix + ":minute:" + at.UTC().Format("200601021504")
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if ev.Endpoint != "" {
		pipe.HIncrBy(ctx, s.prefix+":endpoint", ev.Endpoint+":"+field, 1)
	}

	if s.trackCredentials && ev.Credential != "" {
		credKey := s.prefix + ":credential:" + ev.Credential
		pipe.HIncrBy(ctx, credKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, credKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Ensure interface compliance.
var _ ports.RateLimitStatsStore = (*StatsStore)(nil)
