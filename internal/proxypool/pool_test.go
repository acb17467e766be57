package proxypool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/store"
)

// -- Fakes --

type fakeSource struct {
	name    string
	records []Record
	err     error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) ([]Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

// fakeProber answers from a table keyed by host.
type fakeProber struct {
	results  map[string]ProbeResult
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeProber) Probe(ctx context.Context, rec Record) (ProbeResult, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	res, ok := f.results[rec.Host]
	if !ok {
		return ProbeResult{}, fmt.Errorf("%w: connection refused", ErrVerificationFailure)
	}
	return res, nil
}

type fakeGeo struct{}

func (fakeGeo) Country(host string) (string, error) { return "NL", nil }

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testProxyConfig() config.ProxyConfig {
	return config.ProxyConfig{
		Enabled:          true,
		ProbeTimeout:     time.Second,
		ProbeConcurrency: 2,
		RotationInterval: 10 * time.Minute,
	}
}

func hostRecord(host string) Record {
	return Record{Host: host, Port: 8080, Protocol: ProtocolHTTP}
}

// -- Tests --

func TestRefresh_SkipsFailingSources(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sources := []Source{
		&fakeSource{name: "down-1", err: errors.New("dial tcp: connection refused")},
		&fakeSource{name: "good", records: []Record{hostRecord("10.0.0.1"), hostRecord("10.0.0.2"), hostRecord("10.0.0.1")}},
		&fakeSource{name: "down-2", err: fmt.Errorf("%w: down-2: status 503", ErrSourceUnavailable)},
	}
	pool := New(testProxyConfig(), sources, zap.New(core))

	added, err := pool.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added, "duplicates within a batch merge by host:port")
	assert.Equal(t, 2, pool.Len())

	warnings := logs.FilterMessage("Proxy source unavailable; skipping.").All()
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		err, ok := w.ContextMap()["error"].(string)
		require.True(t, ok)
		assert.Contains(t, err, ErrSourceUnavailable.Error())
	}

	t.Run("merge keeps existing statistics", func(t *testing.T) {
		pool.mu.Lock()
		rec := pool.records["10.0.0.1:8080"]
		rec.SuccessCount = 9
		pool.records["10.0.0.1:8080"] = rec
		pool.mu.Unlock()

		added, err := pool.Refresh(context.Background())
		require.NoError(t, err)
		assert.Zero(t, added)
		assert.Equal(t, 9, pool.Snapshot()[0].SuccessCount)
	})
}

func TestRefresh_AllSourcesFail(t *testing.T) {
	pool := New(testProxyConfig(), []Source{
		&fakeSource{name: "a", err: errors.New("boom")},
		&fakeSource{name: "b", err: errors.New("bang")},
	}, zaptest.NewLogger(t))

	_, err := pool.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Zero(t, pool.Len())
}

func TestVerifyAndSelect(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	prober := &fakeProber{results: map[string]ProbeResult{
		"10.0.0.1": {EchoedIP: "203.0.113.1", Latency: 300 * time.Millisecond},
		"10.0.0.2": {EchoedIP: "203.0.113.2", Latency: 800 * time.Millisecond},
		"10.0.0.3": {EchoedIP: "10.0.0.3", Latency: 100 * time.Millisecond}, // transparent
		"10.0.0.4": {EchoedIP: "203.0.113.4", Latency: 2500 * time.Millisecond},
	}}
	pool := New(testProxyConfig(), nil, zaptest.NewLogger(t),
		WithProber(prober), WithClock(clock.Now), WithRand(rand.New(rand.NewSource(1))), WithGeoResolver(fakeGeo{}))
	pool.Add(hostRecord("10.0.0.1"), hostRecord("10.0.0.2"), hostRecord("10.0.0.3"), hostRecord("10.0.0.4"), hostRecord("10.0.0.5"))

	report, err := pool.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VerifyReport{Probed: 5, Alive: 4, High: 3, Failed: 1}, report)
	assert.EqualValues(t, 5, prober.calls.Load())
	assert.LessOrEqual(t, prober.peak.Load(), int32(2), "concurrency limit must hold")

	byHost := map[string]Record{}
	for _, rec := range pool.Snapshot() {
		byHost[rec.Host] = rec
	}
	assert.Equal(t, AnonymityHigh, byHost["10.0.0.1"].Anonymity)
	assert.Equal(t, "NL", byHost["10.0.0.1"].Country)
	assert.Equal(t, clock.Now(), byHost["10.0.0.1"].LastChecked)
	assert.Equal(t, 1, byHost["10.0.0.1"].SuccessCount)
	assert.Equal(t, AnonymityTransparent, byHost["10.0.0.3"].Anonymity)
	assert.Equal(t, 1, byHost["10.0.0.5"].FailCount)
	assert.Zero(t, byHost["10.0.0.5"].SuccessCount)
	assert.True(t, byHost["10.0.0.5"].LastChecked.IsZero(), "a failed probe only bumps fail_count")

	// Only .1 and .2 qualify: .3 is transparent, .4 too slow, .5 never answered.
	seen := map[string]int{}
	for i := 0; i < 50; i++ {
		rec, err := pool.Select()
		require.NoError(t, err)
		require.True(t, rec.Eligible())
		seen[rec.Host]++
	}
	assert.Len(t, seen, 2)
	assert.Contains(t, seen, "10.0.0.1")
	assert.Contains(t, seen, "10.0.0.2")
}

func TestVerify_CancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := New(testProxyConfig(), nil, zaptest.NewLogger(t), WithProber(&fakeProber{}))
	pool.Add(hostRecord("10.0.0.1"), hostRecord("10.0.0.2"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := pool.Verify(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Probed)
}

func TestSelect(t *testing.T) {
	t.Run("empty pool", func(t *testing.T) {
		pool := New(testProxyConfig(), nil, zaptest.NewLogger(t))
		_, err := pool.Select()
		assert.ErrorIs(t, err, ErrNoProxyAvailable)
	})

	t.Run("thresholds", func(t *testing.T) {
		pool := New(testProxyConfig(), nil, zaptest.NewLogger(t))
		pool.Add(
			Record{Host: "1.0.0.1", Port: 1, Anonymity: AnonymityHigh, Latency: time.Second, FailCount: 3},
			Record{Host: "1.0.0.2", Port: 1, Anonymity: AnonymityHigh, Latency: 2 * time.Second},
			Record{Host: "1.0.0.3", Port: 1, Anonymity: AnonymityUnknown, Latency: time.Millisecond},
		)
		_, err := pool.Select()
		assert.ErrorIs(t, err, ErrNoProxyAvailable)
	})

	t.Run("picks among the top five", func(t *testing.T) {
		pool := New(testProxyConfig(), nil, zaptest.NewLogger(t), WithRand(rand.New(rand.NewSource(3))))
		for i := 1; i <= 8; i++ {
			pool.Add(Record{
				Host:         "2.0.0." + strconv.Itoa(i),
				Port:         80,
				Anonymity:    AnonymityHigh,
				Latency:      time.Duration(i) * 100 * time.Millisecond,
				SuccessCount: 1,
			})
		}
		// Same latency as .1 but more successes, so it ranks first.
		pool.Add(Record{Host: "2.0.0.99", Port: 80, Anonymity: AnonymityHigh, Latency: 100 * time.Millisecond, SuccessCount: 5})

		allowed := map[string]bool{"2.0.0.99": true, "2.0.0.1": true, "2.0.0.2": true, "2.0.0.3": true, "2.0.0.4": true}
		seen := map[string]bool{}
		for i := 0; i < 300; i++ {
			rec, err := pool.Select()
			require.NoError(t, err)
			assert.True(t, allowed[rec.Host], "unexpected pick %s", rec.Host)
			seen[rec.Host] = true
		}
		assert.Len(t, seen, 5, "every top-five record should be picked eventually")
	})
}

func TestRotation(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	pool := New(testProxyConfig(), nil, zaptest.NewLogger(t), WithClock(clock.Now))
	pool.Add(Record{Host: "3.0.0.1", Port: 1080, Protocol: ProtocolSOCKS5, Anonymity: AnonymityHigh, Latency: 50 * time.Millisecond})

	assert.False(t, pool.ShouldRotate(), "fresh pool")
	clock.Advance(10 * time.Minute)
	assert.False(t, pool.ShouldRotate(), "exactly at the interval is not past it")
	clock.Advance(time.Second)
	assert.True(t, pool.ShouldRotate())

	rec, err := pool.Rotate()
	require.NoError(t, err)
	assert.Equal(t, "socks5://3.0.0.1:1080", rec.Address())
	assert.False(t, pool.ShouldRotate(), "rotation resets the clock")
	current, ok := pool.Current()
	require.True(t, ok)
	assert.Equal(t, rec, current)

	t.Run("rotate ignores the interval", func(t *testing.T) {
		_, err := pool.Rotate()
		assert.NoError(t, err)
	})

	t.Run("failed rotate keeps the clock", func(t *testing.T) {
		empty := New(testProxyConfig(), nil, zaptest.NewLogger(t), WithClock(clock.Now))
		clock.Advance(11 * time.Minute)
		_, err := empty.Rotate()
		assert.ErrorIs(t, err, ErrNoProxyAvailable)
		assert.True(t, empty.ShouldRotate())
		_, ok := empty.Current()
		assert.False(t, ok)
	})
}

func TestLoadSave(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("missing document", func(t *testing.T) {
		pool := New(testProxyConfig(), nil, zaptest.NewLogger(t), WithStore(st))
		require.NoError(t, pool.Load(ctx))
		assert.Zero(t, pool.Len())
	})

	t.Run("round trip", func(t *testing.T) {
		pool := New(testProxyConfig(), nil, zaptest.NewLogger(t), WithStore(st))
		pool.Add(Record{Host: "4.0.0.1", Port: 3128, Protocol: ProtocolHTTPS, Anonymity: AnonymityHigh, Latency: 120 * time.Millisecond, SuccessCount: 4})
		require.NoError(t, pool.Save(ctx))

		reloaded := New(testProxyConfig(), nil, zaptest.NewLogger(t), WithStore(st))
		require.NoError(t, reloaded.Load(ctx))
		assert.Equal(t, pool.Snapshot(), reloaded.Snapshot())
	})
}

// -- Real probe through a forward proxy --

func TestHTTPProber_ThroughForwardProxy(t *testing.T) {
	echoed := "203.0.113.77"
	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ip":%q}`, echoed)
	}))
	defer echo.Close()

	var forwarded atomic.Int32
	forward := goproxy.NewProxyHttpServer()
	forward.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		forwarded.Add(1)
		return r, nil
	})
	proxySrv := httptest.NewServer(forward)
	defer proxySrv.Close()

	u, err := url.Parse(proxySrv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	rec := Record{Host: host, Port: port, Protocol: ProtocolHTTP}

	t.Run("probe succeeds", func(t *testing.T) {
		prober := &HTTPProber{EchoURL: echo.URL + "/ip", Timeout: 5 * time.Second}
		res, err := prober.Probe(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, echoed, res.EchoedIP)
		assert.Positive(t, res.Latency)
		assert.Positive(t, forwarded.Load(), "request must traverse the proxy")
	})

	t.Run("pool marks it high anonymity", func(t *testing.T) {
		cfg := testProxyConfig()
		cfg.EchoURL = echo.URL + "/ip"
		pool := New(cfg, nil, zaptest.NewLogger(t))
		pool.Add(rec)
		report, err := pool.Verify(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.High)
		best, err := pool.Select()
		require.NoError(t, err)
		assert.Equal(t, rec.Key(), best.Key())
	})

	t.Run("non-200 echo is a verification failure", func(t *testing.T) {
		prober := &HTTPProber{EchoURL: echo.URL + "/fail", Timeout: 5 * time.Second}
		_, err := prober.Probe(context.Background(), rec)
		assert.ErrorIs(t, err, ErrVerificationFailure)
	})

	t.Run("unreachable proxy", func(t *testing.T) {
		prober := &HTTPProber{EchoURL: echo.URL + "/ip", Timeout: time.Second}
		_, err := prober.Probe(context.Background(), Record{Host: "127.0.0.1", Port: 1, Protocol: ProtocolHTTP})
		assert.ErrorIs(t, err, ErrVerificationFailure)
	})
}
