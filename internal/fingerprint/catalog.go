package fingerprint

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/store"
)

// ErrEmptyCatalog is returned by Pick when the catalog holds no fingerprints.
var ErrEmptyCatalog = errors.New("fingerprint catalog is empty")

// Catalog owns the pool of fingerprints. Readers see an immutable snapshot;
// Load and Replace swap in a freshly built map under the write lock.
type Catalog struct {
	store store.DocumentStore
	size  int
	log   *zap.Logger

	// genMu guards rng, which regeneration draws from.
	genMu sync.Mutex
	rng   *rand.Rand

	mu      sync.RWMutex
	entries map[string]Fingerprint
	ids     []string
}

// NewCatalog creates an empty catalog that regenerates size entries from rng when needed.
func NewCatalog(st store.DocumentStore, size int, rng *rand.Rand, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		store:   st,
		size:    size,
		rng:     rng,
		log:     logger.Named("fingerprint"),
		entries: map[string]Fingerprint{},
	}
}

// Load reads the persisted catalog. Missing, corrupt or empty data triggers a
// full regeneration followed by a best-effort save. Load never fails the caller.
func (c *Catalog) Load(ctx context.Context) {
	var persisted []Fingerprint
	err := c.store.Load(ctx, store.KeyFingerprints, &persisted)
	if err == nil {
		valid := verified(persisted)
		if dropped := len(persisted) - len(valid); dropped > 0 {
			c.log.Warn("Dropped fingerprints whose id does not match their content.", zap.Int("dropped", dropped))
		}
		if len(valid) > 0 {
			c.Replace(valid)
			c.log.Info("Fingerprint catalog loaded.", zap.Int("count", len(valid)))
			return
		}
	}

	if errors.Is(err, store.ErrNotFound) {
		c.log.Info("No persisted fingerprint catalog; generating a new one.", zap.Int("size", c.size))
	} else {
		c.log.Warn("Persisted fingerprint catalog unusable; regenerating.", zap.Error(err), zap.Int("size", c.size))
	}

	c.genMu.Lock()
	generated := Generate(c.rng, c.size)
	c.genMu.Unlock()
	c.Replace(generated)

	if err := c.Save(ctx); err != nil {
		c.log.Warn("Failed to persist regenerated fingerprint catalog; continuing in memory.", zap.Error(err))
	}
}

// Save rewrites the persisted catalog wholesale.
func (c *Catalog) Save(ctx context.Context) error {
	return c.store.Save(ctx, store.KeyFingerprints, c.All())
}

// Replace swaps the catalog contents for fps.
func (c *Catalog) Replace(fps []Fingerprint) {
	entries := make(map[string]Fingerprint, len(fps))
	for _, f := range fps {
		entries[f.ID] = f
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	c.mu.Lock()
	c.entries, c.ids = entries, ids
	c.mu.Unlock()
}

// Pick returns a uniformly random fingerprint.
func (c *Catalog) Pick(rng *rand.Rand) (Fingerprint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.ids) == 0 {
		return Fingerprint{}, ErrEmptyCatalog
	}
	return c.entries[c.ids[rng.Intn(len(c.ids))]], nil
}

// Get looks up a fingerprint by id.
func (c *Catalog) Get(id string) (Fingerprint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.entries[id]
	return f, ok
}

// Len reports the number of fingerprints held.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// All returns the fingerprints ordered by id.
func (c *Catalog) All() []Fingerprint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Fingerprint, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.entries[id]
	}
	return out
}

// verified keeps only the entries whose stored id still matches their content.
func verified(fps []Fingerprint) []Fingerprint {
	out := fps[:0:0]
	for _, f := range fps {
		if id, err := ComputeID(f); err == nil && id == f.ID {
			out = append(out, f)
		}
	}
	return out
}
