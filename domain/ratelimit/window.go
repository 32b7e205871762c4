// Package ratelimit provides pure sliding-window rate limiting.
// All functions are deterministic - same input always produces same output.
package ratelimit

import "time"

// WindowState is the counter for one (credential, endpoint) window
// (immutable value type - updates replace the whole value).
type WindowState struct {
	Count       int           // Allowed requests in current window
	WindowStart time.Time     // When current window opened
	Limit       int           // Effective limit configured for the window
	Window      time.Duration // Window duration
}

// Config holds the limit applied to a window (value type).
type Config struct {
	Limit  int           // Requests per window; <= 0 denies everything
	Window time.Duration // Window duration
}

// Decision is the outcome of a rate limit check (value type).
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Window    time.Duration
	ResetAt   time.Time // windowStart + window, regardless of outcome
}

// EffectiveLimit computes the per-window ceiling for a tier quota and an
// endpoint cost multiplier. Multipliers below 0.1 are clamped; expensive
// endpoints consume the quota faster. Unlimited quotas pass through.
// This is a PURE function.
func EffectiveLimit(perWindowQuota int, costMultiplier float64) int {
	if perWindowQuota < 0 {
		return perWindowQuota
	}
	if costMultiplier < 0.1 {
		costMultiplier = 0.1
	}
	limit := int(float64(perWindowQuota) / costMultiplier)
	if limit < 0 {
		return 0
	}
	return limit
}

// expired reports whether now falls at or past the window's reset point.
// A request arriving exactly at resetAt starts a new window.
func expired(state WindowState, now time.Time) bool {
	if state.WindowStart.IsZero() {
		return true
	}
	return !now.Before(state.WindowStart.Add(state.Window))
}

// Check performs a rate limit check.
// This is a PURE function - no side effects, deterministic.
//
// An expired window is replaced with a fresh zero-count window rather
// than reset in place. The counter increments only on allow; a denial
// leaves the stored state untouched.
//
// Returns the decision and the state the caller must store.
func Check(state WindowState, cfg Config, now time.Time) (Decision, WindowState) {
	if expired(state, now) {
		state = WindowState{
			Count:       0,
			WindowStart: now,
			Limit:       cfg.Limit,
			Window:      cfg.Window,
		}
	}

	allowed := state.Count < cfg.Limit
	if allowed {
		state.Count++
	}

	return Decision{
		Allowed:   allowed,
		Limit:     cfg.Limit,
		Remaining: remaining(cfg.Limit, state.Count),
		Window:    cfg.Window,
		ResetAt:   state.WindowStart.Add(cfg.Window),
	}, state
}

// Status reconstructs the current decision from stored state without
// consuming a slot.
// This is a PURE function.
func Status(state WindowState, cfg Config, now time.Time) Decision {
	if expired(state, now) {
		return Decision{
			Allowed:   cfg.Limit > 0,
			Limit:     cfg.Limit,
			Remaining: cfg.Limit,
			Window:    cfg.Window,
			ResetAt:   now.Add(cfg.Window),
		}
	}
	return Decision{
		Allowed:   state.Count < cfg.Limit,
		Limit:     cfg.Limit,
		Remaining: remaining(cfg.Limit, state.Count),
		Window:    cfg.Window,
		ResetAt:   state.WindowStart.Add(cfg.Window),
	}
}

// RetryAfter returns how long to wait before the window resets.
// This is a PURE function.
func RetryAfter(d Decision, now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func remaining(limit, count int) int {
	r := limit - count
	if r < 0 {
		return 0
	}
	return r
}
