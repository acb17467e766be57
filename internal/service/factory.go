package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/browser"
	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/cookies"
	"github.com/xkilldash9x/mimic/internal/fingerprint"
	"github.com/xkilldash9x/mimic/internal/proxypool"
	"github.com/xkilldash9x/mimic/internal/store"
)

// ComponentFactory creates the shared components every command builds on.
// Commands depend on the interface so tests can substitute components.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create opens the store and loads every pool from it. Load failures of the
// pools degrade to empty or regenerated state; only backend failures abort.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := NewRand(cfg.Fingerprint().Seed)
	components := &Components{
		Config: cfg,
		logger: logger,
		rng:    rng,
	}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Store
	st, err := store.Open(ctx, cfg.Store(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open %s store: %w", cfg.Store().Type, err)
		return nil, initializationErr
	}
	components.Store = st
	logger.Debug("Document store opened.", zap.String("type", cfg.Store().Type))

	// 2. Fingerprint catalog. Load regenerates on its own and never fails.
	catalog := fingerprint.NewCatalog(st, cfg.Fingerprint().CatalogSize, NewRand(rng.Int63()), logger)
	catalog.Load(ctx)
	components.Fingerprints = catalog

	// 3. Cookie jars
	jars := cookies.NewRotator(cfg.Cookies(), st, NewRand(rng.Int63()), logger)
	if err := jars.Load(ctx); err != nil {
		logger.Warn("Persisted cookie jars unusable; starting empty.", zap.Error(err))
	}
	components.Cookies = jars

	// 4. Proxy pool
	if cfg.Proxy().Enabled {
		opts := []proxypool.Option{
			proxypool.WithStore(st),
			proxypool.WithRand(NewRand(rng.Int63())),
		}
		resolver, err := InitializeGeoResolver(cfg.Proxy().GeoIPDatabase, logger)
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		if resolver != nil {
			components.geo = resolver
			opts = append(opts, proxypool.WithGeoResolver(resolver))
		}

		sources := InitializeProxySources(cfg.Proxy(), cfg.Network())
		pool := proxypool.New(cfg.Proxy(), sources, logger, opts...)
		if err := pool.Load(ctx); err != nil {
			logger.Warn("Persisted proxy pool unusable; starting empty.", zap.Error(err))
		}
		components.Proxies = pool
		logger.Debug("Proxy pool initialized.", zap.Int("sources", len(sources)), zap.Int("records", pool.Len()))
	} else {
		logger.Debug("Proxy use disabled.")
	}

	// 5. Browser launcher
	components.Launcher = browser.NewLauncher(cfg.Browser(), logger)

	logger.Info("All components initialized successfully.",
		zap.Int("fingerprints", catalog.Len()),
		zap.Int("cookie_domains", len(jars.Domains())),
		zap.Bool("proxies", components.Proxies != nil),
	)
	return components, nil
}
