package app_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/linkside/gateway/adapters/clock"
	"github.com/linkside/gateway/adapters/idgen"
	"github.com/linkside/gateway/adapters/memory"
	"github.com/linkside/gateway/app"
	"github.com/linkside/gateway/domain/gateway"
	"github.com/linkside/gateway/domain/tier"
)

type gatewayFixture struct {
	store       *memory.DocStore
	clk         *clock.Fake
	registry    *app.EndpointRegistry
	credentials *app.CredentialService
	rateLimits  *app.RateLimitService
	usage       *app.UsageService
	svc         *app.GatewayService
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	f := &gatewayFixture{
		store:    memory.NewDocStore(),
		clk:      clock.NewFake(baseTime),
		registry: app.NewEndpointRegistry(),
	}
	f.credentials = app.NewCredentialService(app.CredentialDeps{
		Store:  f.store,
		Clock:  f.clk,
		Logger: zerolog.Nop(),
	}, app.CredentialConfig{})
	f.rateLimits = app.NewRateLimitService(app.RateLimitDeps{
		Clock:  f.clk,
		Logger: zerolog.Nop(),
	}, app.RateLimitConfig{})
	f.usage = app.NewUsageService(app.UsageDeps{
		Store:  f.store,
		Clock:  f.clk,
		IDGen:  idgen.NewSequential("rec-"),
		Logger: zerolog.Nop(),
	}, app.UsageConfig{})
	f.svc = app.NewGatewayService(app.GatewayDeps{
		Credentials: f.credentials,
		RateLimits:  f.rateLimits,
		Usage:       f.usage,
		Registry:    f.registry,
		Clock:       f.clk,
		Logger:      zerolog.Nop(),
	})

	t.Cleanup(func() {
		f.usage.Close()
		f.rateLimits.Close()
		f.credentials.Close()
	})
	return f
}

func (f *gatewayFixture) registerEcho(path string, required tier.Tier) {
	f.registry.Register(gateway.Endpoint{
		Path:              path,
		Version:           "v1",
		RequiredTier:      required,
		BaseUnits:         10,
		CostMultiplier:    1,
		PremiumMultiplier: 1,
		Handler: func(ctx context.Context, req gateway.Request) (any, error) {
			return map[string]string{"path": req.Path}, nil
		},
	})
}

func (f *gatewayFixture) request(rawKey, path string) gateway.Request {
	return gateway.Request{
		ID:         "req-1",
		Path:       path,
		Method:     "GET",
		Version:    "v1",
		Credential: rawKey,
		ReceivedAt: f.clk.Now(),
	}
}

func TestDispatch_Success(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	resp := f.svc.Dispatch(context.Background(), f.request(key, "/courses"))

	if resp.Err != nil {
		t.Fatalf("unexpected failure: %v", resp.Err)
	}
	if resp.Status != 200 {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	payload, ok := resp.Payload.(map[string]string)
	if !ok || payload["path"] != "/courses" {
		t.Errorf("payload = %v", resp.Payload)
	}
	if resp.Headers["X-API-Version"] != "v1" {
		t.Errorf("X-API-Version = %q", resp.Headers["X-API-Version"])
	}
	if resp.Headers["X-RateLimit-Limit"] != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want 60", resp.Headers["X-RateLimit-Limit"])
	}
	if resp.Headers["X-RateLimit-Remaining"] != "59" {
		t.Errorf("X-RateLimit-Remaining = %q, want 59", resp.Headers["X-RateLimit-Remaining"])
	}

	if f.usage.BufferLen() != 1 {
		t.Errorf("usage buffer = %d, want exactly one record", f.usage.BufferLen())
	}
	if st := f.svc.Stats(); st.Requests != 1 || st.Failures != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDispatch_InvalidCredential(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)

	resp := f.svc.Dispatch(context.Background(), f.request(testKey("free"), "/courses"))

	if resp.Err == nil || resp.Err.Kind != gateway.FailInvalidCredential {
		t.Fatalf("err = %v, want invalid credential", resp.Err)
	}
	if resp.Status != 401 {
		t.Errorf("status = %d, want 401", resp.Status)
	}
	if resp.Headers["X-Error"] != "invalid_credential" {
		t.Errorf("X-Error = %q", resp.Headers["X-Error"])
	}
	// Failures still produce exactly one usage record.
	if f.usage.BufferLen() != 1 {
		t.Errorf("usage buffer = %d, want 1", f.usage.BufferLen())
	}
}

func TestDispatch_ValidatorErrorBecomesAuthFailure(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)
	f.store.SetError(errors.New("store down"))

	resp := f.svc.Dispatch(context.Background(), f.request(testKey("free"), "/courses"))

	if resp.Err == nil || resp.Err.Kind != gateway.FailAuthentication {
		t.Fatalf("err = %v, want authentication failure", resp.Err)
	}
	if resp.Status != 401 {
		t.Errorf("status = %d, want 401", resp.Status)
	}
}

func TestDispatch_EndpointNotFound(t *testing.T) {
	f := newGatewayFixture(t)
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	resp := f.svc.Dispatch(context.Background(), f.request(key, "/nowhere"))

	if resp.Err == nil || resp.Err.Kind != gateway.FailEndpointNotFound {
		t.Fatalf("err = %v, want not found", resp.Err)
	}
	if resp.Status != 404 {
		t.Errorf("status = %d, want 404", resp.Status)
	}
}

func TestDispatch_NilHandlerNotImplemented(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(gateway.Endpoint{Path: "/stub", Version: "v1", CostMultiplier: 1})
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	resp := f.svc.Dispatch(context.Background(), f.request(key, "/stub"))

	if resp.Err == nil || resp.Err.Kind != gateway.FailEndpointNotImplemented {
		t.Fatalf("err = %v, want not implemented", resp.Err)
	}
	if resp.Status != 501 {
		t.Errorf("status = %d, want 501", resp.Status)
	}
}

func TestDispatch_InsufficientTier(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/analytics", tier.Business)
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	resp := f.svc.Dispatch(context.Background(), f.request(key, "/analytics"))

	if resp.Err == nil || resp.Err.Kind != gateway.FailInsufficientTier {
		t.Fatalf("err = %v, want insufficient tier", resp.Err)
	}
	if resp.Status != 403 {
		t.Errorf("status = %d, want 403", resp.Status)
	}
	if resp.Err.RequiredTier != tier.Business || resp.Err.CurrentTier != tier.Free {
		t.Errorf("tiers = %v/%v", resp.Err.RequiredTier, resp.Err.CurrentTier)
	}
}

func TestDispatch_RateLimited(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	var resp gateway.Response
	for i := 0; i < 61; i++ {
		resp = f.svc.Dispatch(context.Background(), f.request(key, "/courses"))
	}

	if resp.Err == nil || resp.Err.Kind != gateway.FailRateLimitExceeded {
		t.Fatalf("err = %v, want rate limited", resp.Err)
	}
	if resp.Status != 429 {
		t.Errorf("status = %d, want 429", resp.Status)
	}
	if resp.Headers["Retry-After"] == "" {
		t.Error("Retry-After header missing")
	}
	if resp.Headers["X-RateLimit-Remaining"] != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", resp.Headers["X-RateLimit-Remaining"])
	}
	if wait, err := strconv.Atoi(resp.Headers["Retry-After"]); err != nil || wait <= 0 || wait > 60 {
		t.Errorf("Retry-After = %q, want 1..60 seconds", resp.Headers["Retry-After"])
	}
}

func TestDispatch_UnlimitedTierSkipsEndpointWindow(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)
	key := testKey("ent")
	seedKey(t, f.store, key, "user_1", "enterprise", true)

	// Each dispatch must consume exactly one burst slot, not two.
	burst := tier.Lookup(tier.Enterprise).BurstLimit
	for i := 0; i < burst; i++ {
		resp := f.svc.Dispatch(context.Background(), f.request(key, "/courses"))
		if resp.Err != nil {
			t.Fatalf("request %d failed: %v", i+1, resp.Err)
		}
	}

	resp := f.svc.Dispatch(context.Background(), f.request(key, "/courses"))
	if resp.Err == nil || resp.Err.Kind != gateway.FailRateLimitExceeded {
		t.Fatalf("request %d: err = %v, want burst denial", burst+1, resp.Err)
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(gateway.Endpoint{
		Path:           "/broken",
		Version:        "v1",
		CostMultiplier: 1,
		Handler: func(ctx context.Context, req gateway.Request) (any, error) {
			return nil, errors.New("downstream timeout")
		},
	})
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	resp := f.svc.Dispatch(context.Background(), f.request(key, "/broken"))

	if resp.Err == nil || resp.Err.Kind != gateway.FailInternal {
		t.Fatalf("err = %v, want internal", resp.Err)
	}
	if resp.Status != 500 {
		t.Errorf("status = %d, want 500", resp.Status)
	}
	if resp.Err.Detail != "downstream timeout" {
		t.Errorf("detail = %q", resp.Err.Detail)
	}
}

func TestDispatch_HandlerFailurePassthrough(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(gateway.Endpoint{
		Path:           "/guarded",
		Version:        "v1",
		CostMultiplier: 1,
		Handler: func(ctx context.Context, req gateway.Request) (any, error) {
			return nil, gateway.ErrInsufficientTier(tier.Enterprise, tier.Free)
		},
	})
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	resp := f.svc.Dispatch(context.Background(), f.request(key, "/guarded"))

	if resp.Status != 403 {
		t.Errorf("status = %d, want 403 (typed failure passed through)", resp.Status)
	}
}

func TestDispatch_HandlerPanicRecovered(t *testing.T) {
	f := newGatewayFixture(t)
	f.registry.Register(gateway.Endpoint{
		Path:           "/panics",
		Version:        "v1",
		CostMultiplier: 1,
		Handler: func(ctx context.Context, req gateway.Request) (any, error) {
			panic("boom")
		},
	})
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	resp := f.svc.Dispatch(context.Background(), f.request(key, "/panics"))

	if resp.Err == nil || resp.Err.Kind != gateway.FailInternal {
		t.Fatalf("err = %v, want internal after panic", resp.Err)
	}
	if resp.Status != 500 {
		t.Errorf("status = %d, want 500", resp.Status)
	}
}

func TestDispatch_StatsTrackFailures(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	f.svc.Dispatch(context.Background(), f.request(key, "/courses"))
	f.svc.Dispatch(context.Background(), f.request(key, "/nowhere"))

	st := f.svc.Stats()
	if st.Requests != 2 {
		t.Errorf("requests = %d, want 2", st.Requests)
	}
	if st.Failures != 1 {
		t.Errorf("failures = %d, want 1", st.Failures)
	}
}

func TestStatus_NonConsuming(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	for i := 0; i < 5; i++ {
		d, err := f.svc.Status(context.Background(), key, "/courses", "v1")
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if d.Remaining != 60 {
			t.Errorf("remaining = %d, want 60 (nothing consumed)", d.Remaining)
		}
	}
}

func TestStatus_InvalidCredential(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)

	_, err := f.svc.Status(context.Background(), testKey("free"), "/courses", "v1")
	var failure *gateway.Failure
	if !errors.As(err, &failure) || failure.Kind != gateway.FailInvalidCredential {
		t.Errorf("error = %v, want invalid credential failure", err)
	}
}

func TestEndpoints_FiltersByCallerTier(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)
	f.registerEcho("/analytics", tier.Business)
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	endpoints, err := f.svc.Endpoints(context.Background(), key)
	if err != nil {
		t.Fatalf("Endpoints() error = %v", err)
	}
	if len(endpoints) != 1 || endpoints[0].Path != "/courses" {
		t.Errorf("endpoints = %+v", endpoints)
	}
}

func TestDispatch_EveryOutcomeRecordsUsage(t *testing.T) {
	f := newGatewayFixture(t)
	f.registerEcho("/courses", tier.Free)
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)

	f.svc.Dispatch(context.Background(), f.request(key, "/courses"))       // success
	f.svc.Dispatch(context.Background(), f.request(key, "/nowhere"))       // 404
	f.svc.Dispatch(context.Background(), f.request("garbage", "/courses")) // 401

	if f.usage.BufferLen() != 3 {
		t.Errorf("usage buffer = %d, want 3 (one record per request)", f.usage.BufferLen())
	}
}

func TestDispatch_LatencyUsesClock(t *testing.T) {
	f := newGatewayFixture(t)
	key := testKey("free")
	seedKey(t, f.store, key, "user_1", "free", true)
	f.registry.Register(gateway.Endpoint{
		Path:           "/slow",
		Version:        "v1",
		CostMultiplier: 1,
		Handler: func(ctx context.Context, req gateway.Request) (any, error) {
			f.clk.Advance(250 * time.Millisecond)
			return "ok", nil
		},
	})

	resp := f.svc.Dispatch(context.Background(), f.request(key, "/slow"))

	if resp.Duration != 250*time.Millisecond {
		t.Errorf("duration = %v, want 250ms", resp.Duration)
	}
}
