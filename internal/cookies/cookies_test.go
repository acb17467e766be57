package cookies

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/chromedp/cdproto/network"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/store"
)

func sampleJar() Jar {
	return Jar{
		{Name: "sessionid", Value: "a1b2c3d4e5f6a7b8", Domain: ".example.co.uk", Path: "/", Secure: true, HTTPOnly: true, SameSite: "Lax"},
		{Name: "csrftoken", Value: "Zx9Yw8Vu7", Domain: "www.example.co.uk", Path: "/app"},
		{Name: "tz", Value: "UTC", Domain: "example.co.uk"},
	}
}

func TestDomainKey(t *testing.T) {
	tests := map[string]string{
		"www.example.com":     "example.com",
		".Shop.Example.COM":   "example.com",
		"a.b.example.co.uk":   "example.co.uk",
		"example.com:8443":    "example.com",
		"localhost":           "localhost",
		"192.168.1.10":        "192.168.1.10",
		"user.github.io":      "user.github.io",
		"deep.user.github.io": "user.github.io",
	}
	for in, want := range tests {
		assert.Equal(t, want, DomainKey(in), in)
	}
}

// assertVariant checks that every field except the value is preserved.
func assertVariant(t *testing.T, orig, got Cookie) {
	t.Helper()
	got.Value, orig.Value = "", ""
	require.Equal(t, orig, got, "only the value may change")
}

func TestDeriveVariants(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	jar := sampleJar()
	original := jar.Clone()

	variants := DeriveVariants(rng, jar, 4)
	require.Len(t, variants, 4)
	if diff := cmp.Diff(original, jar); diff != "" {
		t.Fatalf("input jar was mutated (-want +got):\n%s", diff)
	}

	for _, v := range variants {
		require.Len(t, v, len(jar))
		for i := range v {
			assertVariant(t, jar[i], v[i])
			checkMutation(t, jar[i].Value, v[i].Value)
		}
		assert.Equal(t, "UTC", v[2].Value, "short values are copied unchanged")
	}

	assert.Nil(t, DeriveVariants(rng, jar, 0))
}

// checkMutation asserts the mutation contract on a single value.
func checkMutation(t *testing.T, orig, mutated string) {
	t.Helper()
	require.Equal(t, len(orig), len(mutated))
	if len(orig) < minMutableLength {
		require.Equal(t, orig, mutated)
		return
	}
	first, last := -1, -1
	for i := 0; i < len(orig); i++ {
		if orig[i] != mutated[i] {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return // the random hex happened to match
	}
	require.Less(t, last-first, maxMutation, "changed bytes must fit in one run of up to three")
	for i := first; i <= last; i++ {
		if orig[i] != mutated[i] {
			require.True(t, strings.IndexByte(hexDigits, mutated[i]) >= 0, "replacement %q is not lowercase hex", mutated[i])
		}
	}
}

func FuzzDeriveVariants(f *testing.F) {
	f.Add([]byte("seed-corpus-entry-with-some-bytes"), int64(1))
	f.Fuzz(func(t *testing.T, data []byte, seed int64) {
		consumer := fuzz.NewConsumer(data)
		var c Cookie
		if err := consumer.GenerateStruct(&c); err != nil {
			return
		}
		rng := rand.New(rand.NewSource(seed))
		variants := DeriveVariants(rng, Jar{c}, 3)
		require.Len(t, variants, 3)
		for _, v := range variants {
			require.Len(t, v, 1)
			assertVariant(t, c, v[0])
			checkMutation(t, c.Value, v[0].Value)
		}
	})
}

func TestToCookieParams(t *testing.T) {
	expires := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	jar := Jar{
		{Name: "a", Value: "1", Domain: ".example.com", Secure: true, HTTPOnly: true, SameSite: "Strict", Expires: expires},
		{Name: "b", Value: "2", Domain: "example.com", Path: "/x", SameSite: "bogus"},
	}

	params := ToCookieParams(jar)
	require.Len(t, params, 2)

	assert.Equal(t, "/", params[0].Path, "path defaults to root")
	assert.Equal(t, network.CookieSameSiteStrict, params[0].SameSite)
	require.NotNil(t, params[0].Expires)
	assert.True(t, time.Time(*params[0].Expires).Equal(expires))
	assert.True(t, params[0].Secure)
	assert.True(t, params[0].HTTPOnly)

	assert.Equal(t, "/x", params[1].Path)
	assert.Empty(t, params[1].SameSite)
	assert.Nil(t, params[1].Expires)
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func defaultCookieConfig(strategy string) config.CookieConfig {
	cfg := config.NewDefaultConfig().Cookies()
	cfg.Strategy = strategy
	return cfg
}

func TestRotator_Sequential(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRotator(defaultCookieConfig("sequential"), nil, rand.New(rand.NewSource(1)), zaptest.NewLogger(t))
	r.SetClock(clock.Now)

	for i := 0; i < 3; i++ {
		r.Put("www.example.com", Jar{{Name: "id", Value: string(rune('a' + i))}})
	}
	assert.Equal(t, []string{"example.com"}, r.Domains())

	_, idx, err := r.Next("shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	clock.Advance(29 * time.Minute)
	_, idx, _ = r.Next("example.com")
	assert.Equal(t, 0, idx, "no switch before the interval")

	clock.Advance(time.Minute)
	jar, idx, _ := r.Next("example.com")
	assert.Equal(t, 1, idx)
	assert.Equal(t, "b", jar[0].Value)

	clock.Advance(30 * time.Minute)
	_, idx, _ = r.Next("example.com")
	assert.Equal(t, 2, idx)
	clock.Advance(30 * time.Minute)
	_, idx, _ = r.Next("example.com")
	assert.Equal(t, 0, idx, "sequential wraps around")

	t.Run("unknown domain", func(t *testing.T) {
		_, _, err := r.Next("other.org")
		assert.ErrorIs(t, err, ErrNoJars)
	})

	t.Run("returned jars are copies", func(t *testing.T) {
		jar, idx, _ := r.Next("example.com")
		jar[0].Value = "tampered"
		assert.NotEqual(t, "tampered", r.Jars("example.com")[idx][0].Value)
	})
}

func TestRotator_RandomInterval(t *testing.T) {
	cfg := defaultCookieConfig("random")
	r := NewRotator(cfg, nil, rand.New(rand.NewSource(2)), zaptest.NewLogger(t))
	for i := 0; i < 5; i++ {
		r.Put("example.com", Jar{{Name: "n", Value: "v"}})
	}

	for i := 0; i < 100; i++ {
		r.mu.Lock()
		d := r.interval()
		r.mu.Unlock()
		assert.GreaterOrEqual(t, d, 15*time.Minute)
		assert.LessOrEqual(t, d, 45*time.Minute)
	}

	_, idx, err := r.Next("example.com")
	require.NoError(t, err)
	assert.True(t, idx >= 0 && idx < 5)
}

func TestRotator_WeightedPrefersSuccessfulJars(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRotator(defaultCookieConfig("weighted"), nil, rand.New(rand.NewSource(3)), zaptest.NewLogger(t))
	r.SetClock(clock.Now)
	good := r.Put("example.com", Jar{{Name: "n", Value: "good"}})
	bad := r.Put("example.com", Jar{{Name: "n", Value: "bad"}})

	for i := 0; i < 20; i++ {
		r.RecordOutcome("example.com", good, true)
		r.RecordOutcome("example.com", bad, false)
	}
	r.RecordOutcome("example.com", 99, true) // ignored
	stats := r.Stats("example.com")
	assert.Equal(t, JarStats{Success: 20}, stats[good])
	assert.InDelta(t, 21.0/22.0, stats[good].Weight(), 1e-9)
	assert.InDelta(t, 1.0/22.0, stats[bad].Weight(), 1e-9)

	counts := map[int]int{}
	for i := 0; i < 400; i++ {
		_, idx, err := r.Next("example.com")
		require.NoError(t, err)
		counts[idx]++
		clock.Advance(20 * time.Minute)
	}
	assert.Greater(t, counts[good], counts[bad]*5)
}

func TestRotator_PutWithVariantsAndPersistence(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	r := NewRotator(defaultCookieConfig("sequential"), st, rand.New(rand.NewSource(4)), zaptest.NewLogger(t))
	require.NoError(t, r.Load(ctx), "missing document is not an error")

	added := r.PutWithVariants("www.example.co.uk", sampleJar(), 3)
	assert.Equal(t, 4, added)
	jars := r.Jars("example.co.uk")
	require.Len(t, jars, 4)
	assert.Equal(t, sampleJar(), jars[0])
	r.RecordOutcome("example.co.uk", 2, true)
	_, _, err = r.Next("example.co.uk")
	require.NoError(t, err)

	require.NoError(t, r.Save(ctx))

	reloaded := NewRotator(defaultCookieConfig("sequential"), st, nil, zaptest.NewLogger(t))
	require.NoError(t, reloaded.Load(ctx))
	if diff := cmp.Diff(r.Jars("example.co.uk"), reloaded.Jars("example.co.uk")); diff != "" {
		t.Errorf("jars differ after reload (-want +got):\n%s", diff)
	}
	assert.Equal(t, r.Stats("example.co.uk"), reloaded.Stats("example.co.uk"))
}
