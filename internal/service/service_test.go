package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/cookies"
	"github.com/xkilldash9x/mimic/internal/proxypool"
	"github.com/xkilldash9x/mimic/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.StoreCfg.Dir = t.TempDir()
	cfg.FingerprintCfg.CatalogSize = 8
	cfg.FingerprintCfg.Seed = 42
	return cfg
}

func TestCreate_FileStore(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Shutdown()

	assert.Equal(t, 8, c.Fingerprints.Len())
	assert.Nil(t, c.Proxies, "proxies are disabled by default")
	assert.NotNil(t, c.Cookies)
	assert.NotNil(t, c.Launcher)

	// The regenerated catalog is persisted right away.
	_, err = os.Stat(filepath.Join(cfg.StoreCfg.Dir, store.KeyFingerprints+".json"))
	assert.NoError(t, err)
}

func TestCreate_ReloadsPersistedCatalog(t *testing.T) {
	cfg := testConfig(t)
	factory := NewComponentFactory()

	first, err := factory.Create(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, fp := range first.Fingerprints.All() {
		ids[fp.ID] = true
	}
	first.Shutdown()

	cfg.FingerprintCfg.Seed = 7
	second, err := factory.Create(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer second.Shutdown()
	for _, fp := range second.Fingerprints.All() {
		assert.True(t, ids[fp.ID], "catalog should be loaded, not regenerated")
	}
}

func TestCreate_Errors(t *testing.T) {
	t.Run("UnknownStore", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SetStoreType("carrier-pigeon")
		_, err := NewComponentFactory().Create(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "carrier-pigeon")
	})

	t.Run("MissingGeoIPDatabase", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SetProxyEnabled(true)
		cfg.ProxyCfg.GeoIPDatabase = filepath.Join(t.TempDir(), "missing.mmdb")

		core, logs := observer.New(zapcore.WarnLevel)
		_, err := NewComponentFactory().Create(context.Background(), cfg, zap.New(core))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GeoIP")
		assert.Equal(t, 1, logs.FilterMessage("Initialization failed, shutting down partially created components.").Len())
	})
}

func TestCreate_ProxyPool(t *testing.T) {
	cfg := testConfig(t)
	cfg.SetProxyEnabled(true)
	cfg.ProxyCfg.Sources = []config.ProxySourceConfig{
		{Name: "a", URL: "http://127.0.0.1:1/a.json", Format: "json"},
		{Name: "b", URL: "http://127.0.0.1:1/b.txt", Format: "text", Protocol: "socks5"},
	}

	c, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, c.Proxies)

	c.Proxies.Add(proxypool.Record{
		Host: "203.0.113.7", Port: 8080, Protocol: proxypool.ProtocolHTTP,
		Anonymity: proxypool.AnonymityHigh, Latency: 300 * time.Millisecond,
	})
	c.Shutdown()

	reopened, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reopened.Shutdown()
	assert.Equal(t, 1, reopened.Proxies.Len(), "pool should be persisted on shutdown")

	sc, err := reopened.PrepareSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://203.0.113.7:8080", sc.ProxyAddress)
}

func TestNewCoordinator(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Shutdown()

	a, err := c.NewCoordinator().PrepareSession(context.Background())
	require.NoError(t, err)
	b, err := c.NewCoordinator().PrepareSession(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Empty(t, a.ProxyAddress)
	_, ok := c.Fingerprints.Get(a.Fingerprint.ID)
	assert.True(t, ok, "session fingerprint comes from the catalog")

	_, err = c.NewCoordinator().GetBestProxy()
	assert.ErrorIs(t, err, proxypool.ErrNoProxyAvailable)
}

func TestSave_PersistsCookieJars(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	c.Cookies.Put("example.com", cookies.Jar{{Name: "sid", Value: "abcdef123456", Domain: ".example.com", Path: "/"}})
	require.NoError(t, c.Save(context.Background()))
	c.Shutdown()

	reopened, err := NewComponentFactory().Create(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reopened.Shutdown()
	assert.Equal(t, []string{"example.com"}, reopened.Cookies.Domains())
}

func TestShutdown_Idempotent(t *testing.T) {
	c, err := NewComponentFactory().Create(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	c.Shutdown()
	assert.NotPanics(t, c.Shutdown)
	assert.NotPanics(t, (&Components{}).Shutdown)
}

func TestInitializers(t *testing.T) {
	t.Run("NewRandSeeded", func(t *testing.T) {
		assert.Equal(t, NewRand(9).Int63(), NewRand(9).Int63())
		assert.NotNil(t, NewRand(0))
	})

	t.Run("ProxySources", func(t *testing.T) {
		assert.Nil(t, InitializeProxySources(config.ProxyConfig{}, config.NetworkConfig{}))
		sources := InitializeProxySources(config.ProxyConfig{Sources: []config.ProxySourceConfig{
			{Name: "one", URL: "http://a"}, {URL: "http://b"},
		}}, config.NetworkConfig{Timeout: time.Second})
		require.Len(t, sources, 2)
		assert.Equal(t, "one", sources[0].Name())
		assert.Equal(t, "http://b", sources[1].Name())
	})

	t.Run("GeoResolverDisabled", func(t *testing.T) {
		r, err := InitializeGeoResolver("", zap.NewNop())
		assert.NoError(t, err)
		assert.Nil(t, r)
	})
}
