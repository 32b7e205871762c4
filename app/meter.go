package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/linkside/gateway/adapters/metrics"
	"github.com/linkside/gateway/domain/gateway"
	"github.com/linkside/gateway/domain/tier"
	"github.com/linkside/gateway/domain/usage"
	"github.com/linkside/gateway/ports"
)

// UsageDeps contains dependencies for UsageService. Ledger and Billing
// may be nil to disable overage billing; Metrics may be nil.
type UsageDeps struct {
	Store   ports.DocumentStore
	Ledger  ports.RevenueLedger
	Billing ports.BillingService
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Logger  zerolog.Logger
	Metrics *metrics.Collector
}

// UsageConfig contains configuration for UsageService.
type UsageConfig struct {
	BufferSize      int           // flush threshold (default 100)
	FlushInterval   time.Duration // periodic flush (default 10s)
	PruneInterval   time.Duration // aggregate sweep (default 10m)
	InactiveAfter   time.Duration // aggregate inactivity cutoff (default 1h)
	SlowThresholdMs int64         // latency above this pays the premium multiplier (default 1000)
	StoreTimeout    time.Duration // per-record persistence deadline (default 5s)
}

// UsageService computes request cost, keeps realtime aggregates,
// buffers durable usage records, and triggers best-effort billing.
type UsageService struct {
	store   ports.DocumentStore
	ledger  ports.RevenueLedger
	billing ports.BillingService
	clock   ports.Clock
	idGen   ports.IDGenerator
	logger  zerolog.Logger
	metrics *metrics.Collector
	cfg     UsageConfig

	mu     sync.Mutex
	buffer []usage.Record

	aggMu      sync.Mutex
	aggregates map[string]usage.Aggregate

	stopCh    chan struct{}
	wg        sync.WaitGroup
	jobs      sync.WaitGroup // per-request background flush and billing work
	closeOnce sync.Once
}

// NewUsageService creates a usage service and starts its flush and
// prune timers.
func NewUsageService(deps UsageDeps, cfg UsageConfig) *UsageService {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = 10 * time.Minute
	}
	if cfg.InactiveAfter <= 0 {
		cfg.InactiveAfter = time.Hour
	}
	if cfg.SlowThresholdMs <= 0 {
		cfg.SlowThresholdMs = 1000
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}

	s := &UsageService{
		store:      deps.Store,
		ledger:     deps.Ledger,
		billing:    deps.Billing,
		clock:      deps.Clock,
		idGen:      deps.IDGen,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		cfg:        cfg,
		buffer:     make([]usage.Record, 0, cfg.BufferSize),
		aggregates: make(map[string]usage.Aggregate),
		stopCh:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.timerLoop()

	return s
}

// NoteArrival counts a request the moment it arrives, before processing
// completes, so requests that start but never finish are detectable.
func (s *UsageService) NoteArrival(credentialKey string) {
	now := s.clock.Now()
	s.aggMu.Lock()
	defer s.aggMu.Unlock()

	agg := s.aggregates[credentialKey]
	if agg.WindowStart.IsZero() {
		agg.WindowStart = now
	}
	agg.Incoming++
	agg.LastSeen = now
	s.aggregates[credentialKey] = agg
}

// Record meters one completed request. Cost is computed from the
// endpoint's declared units, realtime aggregates are updated, and the
// durable record is buffered. Billing thresholds are checked on a
// background goroutine: billing side effects are best-effort, failures
// are logged, and the response already returned to the caller is never
// blocked on a billing collaborator.
func (s *UsageService) Record(ctx context.Context, req gateway.Request, resp gateway.Response, endpoint *gateway.Endpoint, t tier.Tier) {
	now := s.clock.Now()

	in := usage.CostInput{
		BaseUnits:         1,
		PremiumMultiplier: 1,
		LatencyMs:         resp.Duration.Milliseconds(),
		SlowThresholdMs:   s.cfg.SlowThresholdMs,
		StatusCode:        resp.Status,
	}
	endpointKey := gateway.Key(req.Version, req.Path)
	if endpoint != nil {
		in.BaseUnits = endpoint.BaseUnits
		in.PremiumMultiplier = endpoint.PremiumMultiplier
		endpointKey = endpoint.RegistryKey()
	}
	if resp.Err != nil {
		in.GatewayRejected = resp.Err.GatewayRejected()
	}
	units, cents := usage.Cost(in)
	if s.metrics != nil && units > 0 {
		s.metrics.UsageUnits.WithLabelValues(t.String()).Add(float64(units))
	}

	rec := usage.Record{
		ID:         s.idGen.New(),
		Credential: req.Credential,
		Endpoint:   endpointKey,
		Method:     req.Method,
		Version:    req.Version,
		StatusCode: resp.Status,
		LatencyMs:  resp.Duration.Milliseconds(),
		CostUnits:  units,
		CostCents:  cents,
		Timestamp:  now,
		Metadata: usage.Metadata{
			UserAgent: req.Headers["User-Agent"],
			SizeBytes: int64(len(req.Body)),
		},
	}

	s.aggMu.Lock()
	agg := s.aggregates[req.Credential]
	if agg.WindowStart.IsZero() {
		agg.WindowStart = now
	}
	agg.Processed++
	agg.TotalUnits += units
	agg.LastSeen = now
	s.aggregates[req.Credential] = agg
	s.aggMu.Unlock()

	s.mu.Lock()
	s.buffer = append(s.buffer, rec)
	var toFlush []usage.Record
	if len(s.buffer) >= s.cfg.BufferSize {
		toFlush = s.drainLocked()
	}
	s.mu.Unlock()

	if toFlush != nil {
		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			s.persist(toFlush)
		}()
	}

	if s.ledger != nil && s.billing != nil {
		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			s.checkBilling(req.Credential, t, now)
		}()
	}
}

// Flush persists all buffered records synchronously.
func (s *UsageService) Flush(ctx context.Context) {
	s.mu.Lock()
	toFlush := s.drainLocked()
	s.mu.Unlock()
	if toFlush != nil {
		s.persist(toFlush)
	}
}

// Aggregate returns the realtime counters for a credential.
func (s *UsageService) Aggregate(credentialKey string) (usage.Aggregate, bool) {
	s.aggMu.Lock()
	defer s.aggMu.Unlock()
	agg, ok := s.aggregates[credentialKey]
	return agg, ok
}

// Report aggregates historical records for a credential over a period,
// flushing the buffer first so recent requests are included.
func (s *UsageService) Report(ctx context.Context, credentialKey string, start, end time.Time) (usage.Report, error) {
	s.Flush(ctx)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	docs, err := s.store.Find(ctx, ports.CollectionUsageRecords, ports.Filter{"credential": credentialKey})
	if err != nil {
		return usage.Report{}, err
	}

	records := make([]usage.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, usageRecordFromDocument(doc))
	}
	return usage.BuildReport(records, credentialKey, start, end), nil
}

// BufferLen returns the current buffer size (for testing).
func (s *UsageService) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Sync waits for in-flight background flush and billing work (for
// testing).
func (s *UsageService) Sync() {
	s.jobs.Wait()
}

// Close stops the timers, waits for in-flight background work, and
// drains the buffer.
func (s *UsageService) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.jobs.Wait()
		s.Flush(context.Background())
	})
	return nil
}

// drainLocked copies and clears the buffer. Callers hold s.mu; the
// returned slice is persisted after the lock is released.
func (s *UsageService) drainLocked() []usage.Record {
	if len(s.buffer) == 0 {
		return nil
	}
	out := make([]usage.Record, len(s.buffer))
	copy(out, s.buffer)
	s.buffer = s.buffer[:0]
	return out
}

// persist writes records individually; one failure is logged and must
// not abort the rest.
func (s *UsageService) persist(records []usage.Record) {
	if s.metrics != nil {
		s.metrics.UsageFlushes.Inc()
	}
	for _, rec := range records {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
		_, err := s.store.Create(ctx, ports.CollectionUsageRecords, usageRecordToDocument(rec))
		cancel()
		if err != nil {
			s.logger.Error().Err(err).Str("record_id", rec.ID).Msg("usage record persistence failed")
			if s.metrics != nil {
				s.metrics.UsageFlushErrors.Inc()
				s.metrics.StoreErrors.WithLabelValues("create").Inc()
			}
		}
	}
}

// checkBilling compares current-period usage against tier thresholds
// and emits one ledger event per overage charge type plus an invoice.
// Reads go straight to the durable store; buffered records not yet
// flushed show up on a later check (bounded staleness).
func (s *UsageService) checkBilling(credentialKey string, t tier.Tier, now time.Time) {
	if s.ledger == nil || s.billing == nil {
		return
	}

	policy := tier.Lookup(t)
	if policy.OverageCentsPer <= 0 {
		return
	}

	fetchCtx, fetchCancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	docs, err := s.store.Find(fetchCtx, ports.CollectionUsageRecords, ports.Filter{"credential": credentialKey})
	fetchCancel()
	if err != nil {
		s.logger.Warn().Err(err).Msg("billing usage fetch failed")
		return
	}

	start, end := usage.PeriodBounds(now)
	records := make([]usage.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, usageRecordFromDocument(doc))
	}
	report := usage.BuildReport(records, credentialKey, start, end)

	includedRequests := int64(tier.Unlimited)
	if policy.RequestsPerDay >= 0 {
		includedRequests = policy.RequestsPerDay * 30
	}
	charges := usage.OverageCharges(report.TotalUnits, policy.IncludedUnits, policy.OverageCentsPer, report.TotalRequests, includedRequests)
	if len(charges) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	invoiceCharges := make([]ports.InvoiceCharge, 0, len(charges))
	for _, c := range charges {
		if err := s.ledger.RecordEvent(ctx, ports.LedgerEvent{
			TenantID:  credentialKey,
			EventType: c.Kind,
			Cents:     c.Cents,
			Currency:  "USD",
			Timestamp: now,
			Metadata:  map[string]string{"tier": t.String()},
		}); err != nil {
			s.logger.Warn().Err(err).Str("charge", c.Kind).Msg("ledger event failed")
		}
		invoiceCharges = append(invoiceCharges, ports.InvoiceCharge{Kind: c.Kind, Units: c.Units, Cents: c.Cents})
	}

	if err := s.billing.CreateOverageInvoice(ctx, ports.OverageInvoice{
		TenantID:    credentialKey,
		PeriodStart: start,
		PeriodEnd:   end,
		Charges:     invoiceCharges,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("overage invoice failed")
	}
}

func (s *UsageService) timerLoop() {
	defer s.wg.Done()
	flush := time.NewTicker(s.cfg.FlushInterval)
	prune := time.NewTicker(s.cfg.PruneInterval)
	defer flush.Stop()
	defer prune.Stop()

	for {
		select {
		case <-flush.C:
			s.Flush(context.Background())
		case <-prune.C:
			s.pruneAggregates()
		case <-s.stopCh:
			return
		}
	}
}

// pruneAggregates drops realtime counters idle past the cutoff.
func (s *UsageService) pruneAggregates() {
	cutoff := s.clock.Now().Add(-s.cfg.InactiveAfter)
	s.aggMu.Lock()
	defer s.aggMu.Unlock()
	for k, agg := range s.aggregates {
		if agg.LastSeen.Before(cutoff) {
			delete(s.aggregates, k)
		}
	}
}

func usageRecordToDocument(rec usage.Record) ports.Document {
	return ports.Document{
		"record_id":   rec.ID,
		"credential":  rec.Credential,
		"endpoint":    rec.Endpoint,
		"method":      rec.Method,
		"version":     rec.Version,
		"status_code": rec.StatusCode,
		"latency_ms":  rec.LatencyMs,
		"cost_units":  rec.CostUnits,
		"cost_cents":  rec.CostCents,
		"timestamp":   rec.Timestamp.Format(time.RFC3339Nano),
		"user_agent":  rec.Metadata.UserAgent,
		"size_bytes":  rec.Metadata.SizeBytes,
		"cache_hit":   rec.Metadata.CacheHit,
		"region":      rec.Metadata.Region,
	}
}

func usageRecordFromDocument(doc ports.Document) usage.Record {
	rec := usage.Record{
		ID:         docString(doc, "record_id"),
		Credential: docString(doc, "credential"),
		Endpoint:   docString(doc, "endpoint"),
		Method:     docString(doc, "method"),
		Version:    docString(doc, "version"),
		Metadata: usage.Metadata{
			UserAgent: docString(doc, "user_agent"),
			Region:    docString(doc, "region"),
		},
	}
	if n, ok := docInt(doc, "status_code"); ok {
		rec.StatusCode = int(n)
	}
	if n, ok := docInt(doc, "latency_ms"); ok {
		rec.LatencyMs = n
	}
	if n, ok := docInt(doc, "cost_units"); ok {
		rec.CostUnits = n
	}
	if n, ok := docInt(doc, "cost_cents"); ok {
		rec.CostCents = n
	}
	if n, ok := docInt(doc, "size_bytes"); ok {
		rec.Metadata.SizeBytes = n
	}
	if b, ok := doc["cache_hit"].(bool); ok {
		rec.Metadata.CacheHit = b
	}
	if ts, ok := docTime(doc, "timestamp"); ok {
		rec.Timestamp = ts
	}
	return rec
}
