// Package evasion composes fingerprints, proxies, cookie jars and synthesized
// behavior into the two hooks an automation driver calls: PrepareSession
// before launching a browser and BeforeAction before each interaction.
//
// Nothing here is fatal to the caller. Missing fingerprints fall back to a
// fixed identity, a missing proxy means a direct connection, and failures
// while acting are logged and swallowed.
package evasion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/api/schemas"
	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/cookies"
	"github.com/xkilldash9x/mimic/internal/fingerprint"
	"github.com/xkilldash9x/mimic/internal/humanoid"
	"github.com/xkilldash9x/mimic/internal/proxypool"
	"github.com/xkilldash9x/mimic/internal/stealth"
)

var (
	// ErrInjectionFailure marks an evasion script that could not be applied.
	ErrInjectionFailure = errors.New("evasion script injection failed")
	// ErrNoSession is returned when a session hook runs before PrepareSession.
	ErrNoSession = errors.New("no prepared session")
)

// WindowPresets are the resolutions a session window is drawn from.
var WindowPresets = []schemas.WindowSize{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1440, Height: 900},
	{Width: 1536, Height: 864},
	{Width: 1280, Height: 720},
}

// Browser is the browser-control capability the coordinator drives.
type Browser interface {
	humanoid.Executor
	// ExecuteScript evaluates script in the current document and returns its
	// JSON-encoded result.
	ExecuteScript(ctx context.Context, script string) ([]byte, error)
	// InjectScript arranges for script to run before page scripts in every
	// new document.
	InjectScript(ctx context.Context, script string) error
}

// CookieSetter is implemented by browsers that can install cookies.
type CookieSetter interface {
	SetCookies(ctx context.Context, cookies []*network.CookieParam) error
}

// FingerprintPicker hands out fingerprints.
type FingerprintPicker interface {
	Pick(rng *rand.Rand) (fingerprint.Fingerprint, error)
}

// ProxyPicker selects and rotates proxies.
type ProxyPicker interface {
	Select() (proxypool.Record, error)
	ShouldRotate() bool
	Rotate() (proxypool.Record, error)
}

// SessionConfig is everything needed to launch and disguise one session.
type SessionConfig struct {
	ID           string                  `json:"id"`
	UserAgent    string                  `json:"userAgent"`
	Window       schemas.WindowSize      `json:"window"`
	ProxyAddress string                  `json:"proxyAddress,omitempty"`
	Script       string                  `json:"script"`
	Fingerprint  fingerprint.Fingerprint `json:"fingerprint"`
	Proxy        *proxypool.Record       `json:"proxy,omitempty"`
	Profile      humanoid.Profile        `json:"profile"`
}

// LaunchOptions converts the session into browser launch options.
func (s *SessionConfig) LaunchOptions(headless bool) schemas.LaunchOptions {
	return schemas.LaunchOptions{
		UserAgent:    s.UserAgent,
		Platform:     s.Fingerprint.Platform,
		Window:       s.Window,
		ProxyAddress: s.ProxyAddress,
		Languages:    s.Fingerprint.Languages,
		Timezone:     s.Fingerprint.Timezone,
		Headless:     headless,
	}
}

// Coordinator drives exactly one session at a time. Pools passed to several
// coordinators are shared; everything else is owned.
type Coordinator struct {
	fingerprints FingerprintPicker
	proxies      ProxyPicker
	jars         *cookies.Rotator
	cfg          config.BehaviorConfig
	log          *zap.Logger
	now          func() time.Time

	mu         sync.Mutex
	rng        *rand.Rand
	session    *SessionConfig
	browser    Browser
	human      *humanoid.Humanoid
	lastAction time.Time
	activeJars map[string]int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRand seeds every random decision the coordinator makes.
func WithRand(rng *rand.Rand) Option { return func(c *Coordinator) { c.rng = rng } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithProxies enables proxy binding through p.
func WithProxies(p ProxyPicker) Option { return func(c *Coordinator) { c.proxies = p } }

// WithCookies enables cookie jar application through r.
func WithCookies(r *cookies.Rotator) Option { return func(c *Coordinator) { c.jars = r } }

// New creates a coordinator.
func New(fps FingerprintPicker, cfg config.BehaviorConfig, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		fingerprints: fps,
		cfg:          cfg,
		log:          logger.Named("evasion"),
		now:          time.Now,
		activeJars:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// PrepareSession picks the identity for a new session.
func (c *Coordinator) PrepareSession(ctx context.Context) (*SessionConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fp, err := c.pickFingerprint()
	if err != nil {
		c.log.Warn("Falling back to the default fingerprint.", zap.Error(err))
		fp = fingerprint.Default()
	}

	sc := &SessionConfig{
		ID:          uuid.New().String(),
		UserAgent:   fp.UserAgent,
		Window:      WindowPresets[c.rng.Intn(len(WindowPresets))],
		Fingerprint: fp,
		Profile:     humanoid.NewProfile(c.rng, c.cfg),
	}

	if c.proxies != nil {
		rec, err := c.proxies.Select()
		switch {
		case err == nil:
			c.bindProxy(sc, rec)
		case errors.Is(err, proxypool.ErrNoProxyAvailable):
			c.log.Warn("No qualifying proxy; the session will connect directly.")
		default:
			c.log.Warn("Proxy selection failed; the session will connect directly.", zap.Error(err))
		}
	}

	script, err := stealth.Script(fp)
	if err != nil {
		c.log.Error("Could not render evasion script; the session will run unprotected.",
			zap.Error(fmt.Errorf("%w: %v", ErrInjectionFailure, err)))
	}
	sc.Script = script

	c.session = sc
	c.browser, c.human = nil, nil
	c.lastAction = time.Time{}
	c.activeJars = make(map[string]int)

	c.log.Info("Prepared session.",
		zap.String("session_id", sc.ID),
		zap.String("fingerprint", fp.ID),
		zap.Int("width", sc.Window.Width),
		zap.Int("height", sc.Window.Height),
		zap.Bool("proxied", sc.Proxy != nil),
	)
	out := *sc
	return &out, nil
}

func (c *Coordinator) pickFingerprint() (fingerprint.Fingerprint, error) {
	if c.fingerprints == nil {
		return fingerprint.Fingerprint{}, fingerprint.ErrEmptyCatalog
	}
	return c.fingerprints.Pick(c.rng)
}

// bindProxy records rec as the session's egress. Caller holds c.mu.
func (c *Coordinator) bindProxy(sc *SessionConfig, rec proxypool.Record) {
	addr := rec.Address()
	if addr == "" {
		c.log.Warn("Ignoring proxy with an unusable address.", zap.String("proxy", rec.Key()))
		return
	}
	r := rec
	sc.Proxy = &r
	sc.ProxyAddress = addr
}

// Session returns a copy of the prepared session, if any.
func (c *Coordinator) Session() (SessionConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return SessionConfig{}, false
	}
	return *c.session, true
}

// webdriverProbe evaluates to true when the injected overrides are live.
const webdriverProbe = `navigator.webdriver === undefined && navigator.plugins.length > 0`

// Attach binds the prepared session to a launched browser: it injects the
// evasion script and creates the session's behavior synthesizer. Injection
// failures are logged and the session continues unprotected.
func (c *Coordinator) Attach(ctx context.Context, b Browser) error {
	c.mu.Lock()
	sc := c.session
	if sc == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	humanRng := rand.New(rand.NewSource(c.rng.Int63()))
	c.mu.Unlock()

	if err := c.inject(ctx, b, sc.Script); err != nil {
		c.log.Warn("Continuing without evasion script.", zap.String("session_id", sc.ID), zap.Error(err))
	}

	human := humanoid.New(b, sc.Profile, humanRng, c.log)
	c.mu.Lock()
	c.browser = b
	c.human = human
	// Setup counts as activity: an action right after attach cools down too.
	c.lastAction = c.now()
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) inject(ctx context.Context, b Browser, script string) error {
	if script == "" {
		return fmt.Errorf("%w: empty script", ErrInjectionFailure)
	}
	if err := b.InjectScript(ctx, script); err != nil {
		return fmt.Errorf("%w: %v", ErrInjectionFailure, err)
	}
	res, err := b.ExecuteScript(ctx, webdriverProbe)
	if err != nil {
		return fmt.Errorf("%w: verifying overrides: %v", ErrInjectionFailure, err)
	}
	if string(res) != "true" {
		return fmt.Errorf("%w: overrides not visible to the page (probe returned %s)", ErrInjectionFailure, res)
	}
	return nil
}

// ApplyCookies installs the active jar for domain into the attached browser.
// It is a no-op without a cookie rotator or a cookie-capable browser.
func (c *Coordinator) ApplyCookies(ctx context.Context, domain string) error {
	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()
	if c.jars == nil || b == nil {
		return nil
	}
	setter, ok := b.(CookieSetter)
	if !ok {
		return nil
	}

	jar, idx, err := c.jars.Next(domain)
	if err != nil {
		return err
	}
	if err := setter.SetCookies(ctx, cookies.ToCookieParams(jar)); err != nil {
		return fmt.Errorf("installing cookies for %s: %w", cookies.DomainKey(domain), err)
	}
	c.mu.Lock()
	c.activeJars[cookies.DomainKey(domain)] = idx
	c.mu.Unlock()
	c.log.Debug("Applied cookie jar.", zap.String("domain", cookies.DomainKey(domain)), zap.Int("jar", idx), zap.Int("cookies", len(jar)))
	return nil
}

// ReportOutcome feeds the result of work done under domain back into jar selection.
func (c *Coordinator) ReportOutcome(domain string, ok bool) {
	if c.jars == nil {
		return
	}
	key := cookies.DomainKey(domain)
	c.mu.Lock()
	idx, applied := c.activeJars[key]
	c.mu.Unlock()
	if applied {
		c.jars.RecordOutcome(key, idx, ok)
	}
}

// BeforeAction disguises the lead-up to an action: it enforces a minimum
// gap between actions, moves the pointer toward target, performs the action,
// scrolls a little and stamps the action time. action is "move", "click",
// "scroll" or "type:<text>". Failures are logged, never returned.
func (c *Coordinator) BeforeAction(ctx context.Context, action, target string) {
	c.mu.Lock()
	human, b := c.human, c.browser
	last := c.lastAction
	c.mu.Unlock()

	log := c.log.With(zap.String("action", action), zap.String("target", target))
	if human == nil {
		log.Debug("No browser attached; skipping behavior synthesis.")
		return
	}
	defer func() {
		c.mu.Lock()
		c.lastAction = c.now()
		c.mu.Unlock()
	}()

	act, err := ParseAction(action)
	if err != nil {
		log.Warn("Ignoring unparseable action.", zap.Error(err))
		return
	}

	if c.now().Sub(last) < c.cfg.MinActionGap {
		pause := c.actionPause()
		if err := b.Sleep(ctx, pause); err != nil {
			log.Warn("Pre-action pause interrupted.", zap.Error(err))
			return
		}
	}

	if !movesItself(act, target) {
		if err := c.approach(ctx, human, target); err != nil {
			log.Warn("Pointer approach failed.", zap.Error(err))
		}
	}

	if err := c.perform(ctx, human, act, target); err != nil {
		log.Warn("Action failed.", zap.Stringer("kind", act), zap.Error(err))
	}

	if c.cfg.ScrollAfterAct || act.Kind == schemas.ActionScroll {
		if err := human.Scroll(ctx); err != nil {
			log.Warn("Random scroll failed.", zap.Error(err))
		}
	}
}

// approach moves toward target, or to a random point in the window when
// there is no target.
func (c *Coordinator) approach(ctx context.Context, human *humanoid.Humanoid, target string) error {
	if target != "" {
		return human.MoveToSelector(ctx, target)
	}
	return human.MoveTo(ctx, c.randomPoint())
}

// movesItself reports whether performing act already walks the pointer onto target.
func movesItself(act Action, target string) bool {
	return target != "" && (act.Kind == schemas.ActionClick || act.Kind == schemas.ActionType)
}

func (c *Coordinator) perform(ctx context.Context, human *humanoid.Humanoid, act Action, target string) error {
	switch act.Kind {
	case schemas.ActionClick:
		if target == "" {
			return errors.New("click needs a target")
		}
		return human.Click(ctx, target)
	case schemas.ActionType:
		if target == "" {
			return errors.New("type needs a target")
		}
		return human.Type(ctx, target, act.Text)
	}
	// Move is complete after the approach; scroll happens afterwards.
	return nil
}

// actionPause draws the cooling pause inserted between rapid actions.
func (c *Coordinator) actionPause() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	lo, hi := c.cfg.ActionPauseMin, c.cfg.ActionPauseMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.rng.Int63n(int64(hi-lo)+1))
}

// randomPoint picks an idle pointer destination inside the session window.
func (c *Coordinator) randomPoint() humanoid.Vector2D {
	c.mu.Lock()
	defer c.mu.Unlock()
	maxX, maxY := 700, 500
	if c.session != nil {
		if w := c.session.Window.Width; w > 0 && w < maxX {
			maxX = w
		}
		if h := c.session.Window.Height; h > 0 && h < maxY {
			maxY = h
		}
	}
	return humanoid.Vector2D{
		X: float64(100 + c.rng.Intn(max(maxX-100, 1))),
		Y: float64(100 + c.rng.Intn(max(maxY-100, 1))),
	}
}

// GetBestProxy returns a qualifying proxy without binding it.
func (c *Coordinator) GetBestProxy() (proxypool.Record, error) {
	if c.proxies == nil {
		return proxypool.Record{}, proxypool.ErrNoProxyAvailable
	}
	return c.proxies.Select()
}

// ShouldRotate reports whether the proxy rotation interval has elapsed.
func (c *Coordinator) ShouldRotate() bool {
	return c.proxies != nil && c.proxies.ShouldRotate()
}

// RotateProxy selects a new proxy and rebinds the session to it. The running
// browser keeps its old egress; callers relaunch with the new LaunchOptions.
func (c *Coordinator) RotateProxy() (proxypool.Record, error) {
	if c.proxies == nil {
		return proxypool.Record{}, proxypool.ErrNoProxyAvailable
	}
	rec, err := c.proxies.Rotate()
	if err != nil {
		return proxypool.Record{}, err
	}
	c.mu.Lock()
	if c.session != nil {
		c.bindProxy(c.session, rec)
	}
	c.mu.Unlock()
	return rec, nil
}
