package service

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/browser"
	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/cookies"
	"github.com/xkilldash9x/mimic/internal/evasion"
	"github.com/xkilldash9x/mimic/internal/fingerprint"
	"github.com/xkilldash9x/mimic/internal/proxypool"
	"github.com/xkilldash9x/mimic/internal/store"
)

// Components holds the shared pools and the backends behind them. Pools are
// shared by every coordinator created from the same Components.
type Components struct {
	Config       config.Interface
	Store        store.DocumentStore
	Fingerprints *fingerprint.Catalog
	// Proxies is nil when proxy use is disabled.
	Proxies  *proxypool.Pool
	Cookies  *cookies.Rotator
	Launcher *browser.Launcher

	geo    io.Closer
	logger *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewCoordinator creates a coordinator for one session, seeded from the
// component-wide source.
func (c *Components) NewCoordinator() *evasion.Coordinator {
	c.rngMu.Lock()
	seed := c.rng.Int63()
	c.rngMu.Unlock()

	opts := []evasion.Option{
		evasion.WithRand(rand.New(rand.NewSource(seed))),
		evasion.WithCookies(c.Cookies),
	}
	if c.Proxies != nil {
		opts = append(opts, evasion.WithProxies(c.Proxies))
	}
	var picker evasion.FingerprintPicker
	if c.Fingerprints != nil {
		picker = c.Fingerprints
	}
	return evasion.New(picker, c.Config.Behavior(), c.logger, opts...)
}

// PrepareSession prepares a session on a fresh coordinator. It satisfies
// api.SessionFunc.
func (c *Components) PrepareSession(ctx context.Context) (*evasion.SessionConfig, error) {
	return c.NewCoordinator().PrepareSession(ctx)
}

// Save persists the proxy pool and the cookie jars. The catalog is saved
// when it is (re)generated and is not touched here.
func (c *Components) Save(ctx context.Context) error {
	var errs []error
	if c.Proxies != nil {
		if err := c.Proxies.Save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Cookies != nil {
		if err := c.Cookies.Save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown persists state and releases the backends in reverse order of
// creation. It is safe on partially initialized components.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.Store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Save(saveCtx); err != nil {
			logger.Warn("Failed to persist pools during shutdown.", zap.Error(err))
		}
	}

	if c.geo != nil {
		if err := c.geo.Close(); err != nil {
			logger.Warn("Error closing GeoIP database.", zap.Error(err))
		}
		c.geo = nil
	}

	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Error closing document store.", zap.Error(err))
		} else {
			logger.Debug("Document store closed.")
		}
		c.Store = nil
	}
	logger.Debug("All components shut down.")
}
