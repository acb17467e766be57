package cookies

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/store"
)

// ErrNoJars is returned when a domain has no jars to rotate.
var ErrNoJars = errors.New("no cookie jars for domain")

// Strategy names how the rotator moves between a domain's jars.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyRandom     Strategy = "random"
	StrategyWeighted   Strategy = "weighted"
)

// JarStats counts outcomes observed while a jar was active.
type JarStats struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// Weight is the Laplace-smoothed success ratio (s+1)/(s+f+2).
func (s JarStats) Weight() float64 {
	return float64(s.Success+1) / float64(s.Success+s.Failure+2)
}

// domainState is the rotation cursor of one registrable domain.
type domainState struct {
	Jars       []Jar         `json:"jars"`
	Stats      []JarStats    `json:"stats"`
	Index      int           `json:"index"`
	LastSwitch time.Time     `json:"lastSwitch"`
	Interval   time.Duration `json:"interval"`
}

// Rotator holds jars per registrable domain and hands out the active one.
type Rotator struct {
	cfg      config.CookieConfig
	strategy Strategy
	store    store.DocumentStore
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	domains map[string]*domainState
}

// NewRotator creates a rotator. st may be nil when persistence is not needed.
func NewRotator(cfg config.CookieConfig, st store.DocumentStore, rng *rand.Rand, logger *zap.Logger) *Rotator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	strategy := Strategy(cfg.Strategy)
	if strategy == "" {
		strategy = StrategySequential
	}
	return &Rotator{
		cfg:      cfg,
		strategy: strategy,
		store:    st,
		log:      logger.Named("cookies"),
		now:      time.Now,
		rng:      rng,
		domains:  make(map[string]*domainState),
	}
}

// SetClock replaces time.Now.
func (r *Rotator) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Put adds a jar under the registrable domain of domain and returns its index.
func (r *Rotator) Put(domain string, jar Jar) int {
	key := DomainKey(domain)
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.domains[key]
	if !ok {
		st = &domainState{}
		r.domains[key] = st
	}
	st.Jars = append(st.Jars, jar.Clone())
	st.Stats = append(st.Stats, JarStats{})
	return len(st.Jars) - 1
}

// PutWithVariants adds jar plus k derived siblings and returns how many jars were added.
func (r *Rotator) PutWithVariants(domain string, jar Jar, k int) int {
	r.mu.Lock()
	variants := DeriveVariants(r.rng, jar, k)
	r.mu.Unlock()

	r.Put(domain, jar)
	for _, v := range variants {
		r.Put(domain, v)
	}
	return 1 + len(variants)
}

// Jars returns copies of every jar stored for the domain.
func (r *Rotator) Jars(domain string) []Jar {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.domains[DomainKey(domain)]
	if !ok {
		return nil
	}
	out := make([]Jar, len(st.Jars))
	for i, j := range st.Jars {
		out[i] = j.Clone()
	}
	return out
}

// Domains lists the registrable domains that have jars, sorted.
func (r *Rotator) Domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.domains))
	for d := range r.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Next returns the active jar for domain and its index. The active jar only
// changes once the strategy interval has elapsed since the last switch.
func (r *Rotator) Next(domain string) (Jar, int, error) {
	key := DomainKey(domain)
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.domains[key]
	if !ok || len(st.Jars) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrNoJars, key)
	}
	now := r.now()

	if st.LastSwitch.IsZero() {
		st.Index = r.initialIndex(st)
		st.LastSwitch = now
		st.Interval = r.interval()
	} else if now.Sub(st.LastSwitch) >= st.Interval {
		prev := st.Index
		st.Index = r.advance(st)
		st.LastSwitch = now
		st.Interval = r.interval()
		r.log.Debug("Rotated cookie jar.",
			zap.String("domain", key),
			zap.String("strategy", string(r.strategy)),
			zap.Int("from", prev),
			zap.Int("to", st.Index))
	}
	if st.Index >= len(st.Jars) {
		st.Index = 0
	}
	return st.Jars[st.Index].Clone(), st.Index, nil
}

// RecordOutcome feeds the weighted strategy with the result of a session that used the jar.
func (r *Rotator) RecordOutcome(domain string, index int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, exists := r.domains[DomainKey(domain)]
	if !exists || index < 0 || index >= len(st.Stats) {
		return
	}
	if ok {
		st.Stats[index].Success++
	} else {
		st.Stats[index].Failure++
	}
}

// Stats returns the outcome counters for the domain's jars.
func (r *Rotator) Stats(domain string) []JarStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.domains[DomainKey(domain)]
	if !ok {
		return nil
	}
	return append([]JarStats(nil), st.Stats...)
}

// interval draws the dwell time for the next active jar. Caller holds r.mu.
func (r *Rotator) interval() time.Duration {
	switch r.strategy {
	case StrategyRandom:
		lo, hi := r.cfg.RandomIntervalMin, r.cfg.RandomIntervalMax
		if hi <= lo {
			return lo
		}
		return lo + time.Duration(r.rng.Int63n(int64(hi-lo)+1))
	case StrategyWeighted:
		return r.cfg.WeightedInterval
	default:
		return r.cfg.SequentialInterval
	}
}

// initialIndex picks the first active jar. Caller holds r.mu.
func (r *Rotator) initialIndex(st *domainState) int {
	switch r.strategy {
	case StrategyRandom:
		return r.rng.Intn(len(st.Jars))
	case StrategyWeighted:
		return r.pickWeighted(st.Stats)
	default:
		return 0
	}
}

// advance picks the next active jar. Caller holds r.mu.
func (r *Rotator) advance(st *domainState) int {
	switch r.strategy {
	case StrategyRandom:
		return r.rng.Intn(len(st.Jars))
	case StrategyWeighted:
		return r.pickWeighted(st.Stats)
	default:
		return (st.Index + 1) % len(st.Jars)
	}
}

// pickWeighted draws an index with probability proportional to its weight.
func (r *Rotator) pickWeighted(stats []JarStats) int {
	total := 0.0
	for _, s := range stats {
		total += s.Weight()
	}
	x := r.rng.Float64() * total
	for i, s := range stats {
		x -= s.Weight()
		if x < 0 {
			return i
		}
	}
	return len(stats) - 1
}

// Load replaces the in-memory jars with the persisted document. A missing
// document is not an error.
func (r *Rotator) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	var doc map[string]*domainState
	if err := r.store.Load(ctx, store.KeyCookies, &doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("loading cookie jars: %w", err)
	}
	for key, st := range doc {
		if st == nil {
			delete(doc, key)
			continue
		}
		// Keep stats aligned with jars even if the document was edited by hand.
		for len(st.Stats) < len(st.Jars) {
			st.Stats = append(st.Stats, JarStats{})
		}
		st.Stats = st.Stats[:len(st.Jars)]
	}
	if doc == nil {
		doc = make(map[string]*domainState)
	}

	r.mu.Lock()
	r.domains = doc
	r.mu.Unlock()
	r.log.Info("Loaded cookie jars.", zap.Int("domains", len(doc)))
	return nil
}

// Save writes every domain's jars and rotation state.
func (r *Rotator) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	doc := make(map[string]domainState, len(r.domains))
	for k, st := range r.domains {
		c := *st
		c.Jars = make([]Jar, len(st.Jars))
		for i, j := range st.Jars {
			c.Jars[i] = j.Clone()
		}
		c.Stats = append([]JarStats(nil), st.Stats...)
		doc[k] = c
	}
	r.mu.Unlock()

	if err := r.store.Save(ctx, store.KeyCookies, doc); err != nil {
		return fmt.Errorf("saving cookie jars: %w", err)
	}
	return nil
}
