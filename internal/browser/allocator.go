// Package browser drives Chrome over the DevTools protocol. It is the only
// package that depends on chromedp; everything above it talks to a Session
// through the narrow interfaces declared by its callers.
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/mimic/api/schemas"
	"github.com/xkilldash9x/mimic/internal/config"
)

// LaunchFlags computes the command-line switches for a disguised session on
// top of chromedp's defaults. Launch options win over configuration, and
// explicit extra flags win over both.
func LaunchFlags(cfg config.BrowserConfig, opts schemas.LaunchOptions) map[string]interface{} {
	flags := map[string]interface{}{
		"headless": opts.Headless || cfg.Headless,
		// Removes the navigator.webdriver hint Blink sets for automated sessions.
		"disable-blink-features":    "AutomationControlled",
		"enable-automation":         false,
		"disable-infobars":          true,
		"webrtc-ip-handling-policy": "disable_non_proxied_udp",
	}

	for _, arg := range cfg.Args {
		name, value := splitFlag(arg)
		if name != "" {
			flags[name] = value
		}
	}

	if opts.Window.Width > 0 && opts.Window.Height > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", opts.Window.Width, opts.Window.Height)
	}
	if opts.UserAgent != "" {
		flags["user-agent"] = opts.UserAgent
	}
	if opts.ProxyAddress != "" {
		flags["proxy-server"] = opts.ProxyAddress
	}
	if len(opts.Languages) > 0 {
		flags["lang"] = opts.Languages[0]
	}

	for name, value := range opts.ExtraFlags {
		if name = strings.TrimLeft(name, "-"); name != "" {
			flags[name] = flagValue(value)
		}
	}
	return flags
}

// AllocatorOptions turns the launch flags into exec-allocator options.
func AllocatorOptions(cfg config.BrowserConfig, opts schemas.LaunchOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.ExecPath))
	}
	for name, value := range LaunchFlags(cfg, opts) {
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}
	return allocOpts
}

// splitFlag turns "--name=value" or "--name" into a flag pair.
func splitFlag(arg string) (string, interface{}) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	name, value, found := strings.Cut(arg, "=")
	if !found {
		return name, true
	}
	return name, flagValue(value)
}

func flagValue(v string) interface{} {
	switch strings.ToLower(v) {
	case "", "true":
		return true
	case "false":
		return false
	}
	return v
}
