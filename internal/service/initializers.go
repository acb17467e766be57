package service

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/geo"
	"github.com/xkilldash9x/mimic/internal/network"
	"github.com/xkilldash9x/mimic/internal/proxypool"
)

// NewRand returns a source seeded with seed, or with the clock when seed is 0.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// InitializeProxySources builds one HTTP source per configured listing,
// sharing a single client tuned by the network settings.
func InitializeProxySources(cfg config.ProxyConfig, netCfg config.NetworkConfig) []proxypool.Source {
	if len(cfg.Sources) == 0 {
		return nil
	}
	client := network.NewClient(network.ClientConfigFromNetwork(netCfg))
	sources := make([]proxypool.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sources = append(sources, proxypool.NewHTTPSource(src, client.Client))
	}
	return sources
}

// InitializeGeoResolver opens the GeoIP database at path. An empty path
// disables country lookup and returns a nil resolver.
func InitializeGeoResolver(path string, logger *zap.Logger) (*geo.MaxMindResolver, error) {
	if path == "" {
		logger.Debug("No GeoIP database configured; proxy countries stay as reported by sources.")
		return nil, nil
	}
	r, err := geo.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	logger.Info("GeoIP database opened.", zap.String("path", path))
	return r, nil
}
