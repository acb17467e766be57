package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/api/schemas"
	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/stealth"
)

// Launcher starts Chrome processes configured for a session.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewLauncher creates a launcher.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger.Named("browser")}
}

// Launch starts a browser with opts and returns its first tab. The browser
// process lives until the session is closed or ctx is canceled.
func (l *Launcher) Launch(ctx context.Context, opts schemas.LaunchOptions) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(l.cfg, opts)...)
	sugar := l.logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	release := func() {
		tabCancel()
		allocCancel()
	}

	l.logger.Info("Launching browser.",
		zap.Bool("headless", opts.Headless || l.cfg.Headless),
		zap.Int("width", opts.Window.Width),
		zap.Int("height", opts.Window.Height),
		zap.Bool("proxied", opts.ProxyAddress != ""),
	)
	// The first Run starts the process and attaches to the initial tab.
	if err := chromedp.Run(tabCtx, EmulationTasks(opts, l.logger)); err != nil {
		release()
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	return newSession(tabCtx, release, l.logger), nil
}

// EmulationTasks applies the protocol-level half of a persona: user agent,
// platform, timezone, locale and a matching Accept-Language header.
func EmulationTasks(opts schemas.LaunchOptions, logger *zap.Logger) chromedp.Tasks {
	tasks := chromedp.Tasks{}
	acceptLanguage := stealth.AcceptLanguage(opts.Languages)

	if opts.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(opts.UserAgent).WithAcceptLanguage(acceptLanguage)
		if opts.Platform != "" {
			ua = ua.WithPlatform(opts.Platform)
		}
		tasks = append(tasks, ua)
	}
	if opts.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(opts.Timezone))
	}
	if len(opts.Languages) > 0 {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(opts.Languages[0]))
	}
	tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(network.Headers{
		"Accept-Language": acceptLanguage,
	}))

	logger.Debug("Prepared persona emulation.",
		zap.String("userAgent", opts.UserAgent),
		zap.String("timezone", opts.Timezone),
		zap.Int("tasks", len(tasks)),
	)
	return tasks
}
