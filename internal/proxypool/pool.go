package proxypool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/geo"
	"github.com/xkilldash9x/mimic/internal/store"
)

// Pool owns the proxy records. The map is replaced copy-then-swap by Refresh
// and Verify, so readers holding a snapshot never observe a partial update.
type Pool struct {
	cfg     config.ProxyConfig
	sources []Source
	prober  Prober
	geo     geo.Resolver
	store   store.DocumentStore
	log     *zap.Logger
	now     func() time.Time

	mu           sync.RWMutex
	records      map[string]Record
	lastRotation time.Time
	current      *Record

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option customizes a Pool.
type Option func(*Pool)

// WithClock replaces time.Now, used by rotation and probe timestamps.
func WithClock(now func() time.Time) Option { return func(p *Pool) { p.now = now } }

// WithRand sets the source used for picking among the best proxies.
func WithRand(rng *rand.Rand) Option { return func(p *Pool) { p.rng = rng } }

// WithProber replaces the HTTP prober.
func WithProber(pr Prober) Option { return func(p *Pool) { p.prober = pr } }

// WithGeoResolver enables country lookup for verified proxies.
func WithGeoResolver(r geo.Resolver) Option { return func(p *Pool) { p.geo = r } }

// WithStore enables Load and Save.
func WithStore(st store.DocumentStore) Option { return func(p *Pool) { p.store = st } }

// New creates an empty pool over the given sources.
func New(cfg config.ProxyConfig, sources []Source, logger *zap.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		cfg:     cfg,
		sources: sources,
		log:     logger.Named("proxypool"),
		now:     time.Now,
		records: make(map[string]Record),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.prober == nil {
		p.prober = &HTTPProber{EchoURL: cfg.EchoURL, Timeout: cfg.ProbeTimeout}
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	// The rotation clock starts at construction.
	p.lastRotation = p.now()
	return p
}

// Add merges records into the pool, keeping existing statistics for known keys.
func (p *Pool) Add(records ...Record) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, added := mergeRecords(p.records, records)
	p.records = next
	return added
}

// mergeRecords returns a copy of existing with unseen records appended.
func mergeRecords(existing map[string]Record, incoming []Record) (map[string]Record, int) {
	next := make(map[string]Record, len(existing)+len(incoming))
	for k, v := range existing {
		next[k] = v
	}
	added := 0
	for _, rec := range incoming {
		key := rec.Key()
		if _, ok := next[key]; ok {
			continue
		}
		if rec.Anonymity == "" {
			rec.Anonymity = AnonymityUnknown
		}
		next[key] = rec
		added++
	}
	return next, added
}

// Refresh fetches every source concurrently and merges the results. A failing
// source is logged and skipped; an error is returned only if every source failed.
func (p *Pool) Refresh(ctx context.Context) (int, error) {
	if len(p.sources) == 0 {
		return 0, nil
	}

	results := make([][]Record, len(p.sources))
	failures := make([]error, len(p.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range p.sources {
		i, src := i, src
		g.Go(func() error {
			recs, err := src.Fetch(gctx)
			if err != nil {
				if !errors.Is(err, ErrSourceUnavailable) {
					err = fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src.Name(), err)
				}
				p.log.Warn("Proxy source unavailable; skipping.", zap.String("source", src.Name()), zap.Error(err))
				failures[i] = err
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var incoming []Record
	failed := 0
	for i := range p.sources {
		if failures[i] != nil {
			failed++
			continue
		}
		incoming = append(incoming, results[i]...)
	}
	added := p.Add(incoming...)

	p.log.Info("Proxy sources refreshed.",
		zap.Int("sources", len(p.sources)),
		zap.Int("failed", failed),
		zap.Int("added", added),
		zap.Int("total", p.Len()))

	if failed == len(p.sources) {
		return 0, fmt.Errorf("all %d proxy sources failed: %w", failed, errors.Join(failures...))
	}
	return added, nil
}

// VerifyReport summarizes a Verify pass.
type VerifyReport struct {
	Probed int `json:"probed"`
	Alive  int `json:"alive"`
	High   int `json:"high"`
	Failed int `json:"failed"`
}

// Verify probes every record concurrently, bounded by ProbeConcurrency and
// paced by ProbesPerSecond. Each probe updates only its own record; the
// results are swapped into the pool after all probes join.
func (p *Pool) Verify(ctx context.Context) (VerifyReport, error) {
	snapshot := p.Snapshot()
	var report VerifyReport
	if len(snapshot) == 0 {
		return report, nil
	}

	limit := p.cfg.ProbeConcurrency
	if limit <= 0 {
		limit = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.cfg.ProbesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.cfg.ProbesPerSecond), 1)
	}

	ok := make([]bool, len(snapshot))
	var g errgroup.Group
	g.SetLimit(limit)
	launched := 0
	var waitErr error
	for i := range snapshot {
		if waitErr = limiter.Wait(ctx); waitErr != nil {
			break
		}
		i := i
		launched++
		g.Go(func() error {
			snapshot[i], ok[i] = p.probeOne(ctx, snapshot[i])
			return nil
		})
	}
	_ = g.Wait()
	probed := snapshot[:launched]

	p.mu.Lock()
	next := make(map[string]Record, len(p.records))
	for k, v := range p.records {
		next[k] = v
	}
	for _, rec := range probed {
		if _, exists := next[rec.Key()]; exists {
			next[rec.Key()] = rec
		}
	}
	p.records = next
	p.mu.Unlock()

	for i, rec := range probed {
		report.Probed++
		if !ok[i] {
			report.Failed++
			continue
		}
		report.Alive++
		if rec.Anonymity == AnonymityHigh {
			report.High++
		}
	}
	p.log.Info("Proxy verification finished.",
		zap.Int("probed", report.Probed),
		zap.Int("alive", report.Alive),
		zap.Int("high", report.High),
		zap.Int("failed", report.Failed))

	if waitErr != nil {
		return report, fmt.Errorf("verification interrupted after %d of %d probes: %w", launched, len(snapshot), waitErr)
	}
	return report, nil
}

// probeOne verifies rec with a bounded timeout and returns its updated copy.
func (p *Pool) probeOne(ctx context.Context, rec Record) (Record, bool) {
	timeout := p.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := p.prober.Probe(probeCtx, rec)
	if err != nil {
		if !errors.Is(err, ErrVerificationFailure) {
			err = fmt.Errorf("%w: %v", ErrVerificationFailure, err)
		}
		rec.FailCount++
		p.log.Debug("Proxy probe failed.", zap.String("proxy", rec.Key()), zap.Int("fail_count", rec.FailCount), zap.Error(err))
		return rec, false
	}

	rec.Latency = res.Latency
	rec.SuccessCount++
	rec.LastChecked = p.now()
	if res.EchoedIP != rec.Host {
		rec.Anonymity = AnonymityHigh
	} else {
		rec.Anonymity = AnonymityTransparent
	}
	if rec.Country == "" && p.geo != nil {
		if country, err := p.geo.Country(rec.Host); err == nil {
			rec.Country = country
		} else {
			p.log.Debug("GeoIP lookup failed.", zap.String("host", rec.Host), zap.Error(err))
		}
	}
	return rec, true
}

// Select returns a uniformly random pick among the five best eligible records,
// ranked by latency ascending then success count descending.
func (p *Pool) Select() (Record, error) {
	p.mu.RLock()
	candidates := make([]Record, 0, len(p.records))
	for _, rec := range p.records {
		if rec.Eligible() {
			candidates = append(candidates, rec)
		}
	}
	p.mu.RUnlock()

	if len(candidates) == 0 {
		return Record{}, ErrNoProxyAvailable
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Latency != b.Latency {
			return a.Latency < b.Latency
		}
		if a.SuccessCount != b.SuccessCount {
			return a.SuccessCount > b.SuccessCount
		}
		return a.Key() < b.Key()
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	p.rngMu.Lock()
	idx := p.rng.Intn(len(candidates))
	p.rngMu.Unlock()
	return candidates[idx], nil
}

// ShouldRotate reports whether the rotation interval has elapsed since the last rotation.
func (p *Pool) ShouldRotate() bool {
	p.mu.RLock()
	last := p.lastRotation
	p.mu.RUnlock()
	return p.now().After(last.Add(p.cfg.RotationInterval))
}

// Rotate selects a new proxy and resets the rotation clock. It does not check
// the interval; callers gate it with ShouldRotate.
func (p *Pool) Rotate() (Record, error) {
	rec, err := p.Select()
	if err != nil {
		return Record{}, err
	}
	p.mu.Lock()
	p.lastRotation = p.now()
	p.current = &rec
	p.mu.Unlock()
	p.log.Info("Rotated proxy.", zap.String("proxy", rec.Key()), zap.Duration("latency", rec.Latency))
	return rec, nil
}

// Current returns the proxy chosen by the last successful Rotate.
func (p *Pool) Current() (Record, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return Record{}, false
	}
	return *p.current, true
}

// Len returns the number of records.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

// Snapshot returns value copies of every record sorted by key.
func (p *Pool) Snapshot() []Record {
	p.mu.RLock()
	out := make([]Record, 0, len(p.records))
	for _, rec := range p.records {
		out = append(out, rec)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// persistedPool is the stored document shape.
type persistedPool struct {
	Records      []Record  `json:"records"`
	LastRotation time.Time `json:"lastRotation"`
}

// Load replaces the pool with the persisted document. A missing document
// leaves the pool empty and is not an error.
func (p *Pool) Load(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	var doc persistedPool
	if err := p.store.Load(ctx, store.KeyProxies, &doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.log.Debug("No persisted proxy pool found.")
			return nil
		}
		return fmt.Errorf("loading proxy pool: %w", err)
	}

	next, _ := mergeRecords(nil, doc.Records)
	p.mu.Lock()
	p.records = next
	if !doc.LastRotation.IsZero() {
		p.lastRotation = doc.LastRotation
	}
	p.mu.Unlock()
	p.log.Info("Loaded persisted proxy pool.", zap.Int("records", len(next)))
	return nil
}

// Save writes the pool wholesale.
func (p *Pool) Save(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	p.mu.RLock()
	last := p.lastRotation
	p.mu.RUnlock()
	doc := persistedPool{Records: p.Snapshot(), LastRotation: last}
	if err := p.store.Save(ctx, store.KeyProxies, doc); err != nil {
		return fmt.Errorf("saving proxy pool: %w", err)
	}
	return nil
}
