package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/cookies"
	"github.com/xkilldash9x/mimic/internal/observability"
	"github.com/xkilldash9x/mimic/internal/service"
)

// scriptedAction is one --action flag: "<action>@<selector>" or a bare action.
type scriptedAction struct {
	Action string
	Target string
}

// parseScriptedAction splits at the last "@" so typed text may contain one.
func parseScriptedAction(s string) scriptedAction {
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return scriptedAction{Action: s}
	}
	return scriptedAction{Action: s[:i], Target: s[i+1:]}
}

func newLaunchCmd() *cobra.Command {
	var (
		headless bool
		hold     time.Duration
		actions  []string
	)
	cmd := &cobra.Command{
		Use:   "launch <url>",
		Short: "Launch a disguised browser session and open url",
		Long: `Launch prepares a session identity, starts the browser with it, injects the
evasion script, installs the active cookie jar for the site and navigates.

Actions run in order after navigation, for example:
  mimic launch https://example.com --action 'click@#accept' --action 'type:hello@input[name=q]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			target, err := url.Parse(args[0])
			if err != nil || target.Hostname() == "" {
				return fmt.Errorf("invalid url %q", args[0])
			}
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			scripted := make([]scriptedAction, len(actions))
			for i, a := range actions {
				scripted[i] = parseScriptedAction(a)
			}
			return withComponents(cmd.Context(), cfg, func(c *service.Components) error {
				return runLaunch(cmd.Context(), c, target, scripted, hold)
			})
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser headless (default browser.headless)")
	cmd.Flags().DurationVar(&hold, "hold", 0, "keep the session open this long (0 waits for interrupt)")
	cmd.Flags().StringArrayVar(&actions, "action", nil, "action to perform after navigation, repeatable")
	return cmd
}

func runLaunch(ctx context.Context, c *service.Components, target *url.URL, actions []scriptedAction, hold time.Duration) error {
	logger := observability.GetLogger().Named("launch")
	coord := c.NewCoordinator()

	sc, err := coord.PrepareSession(ctx)
	if err != nil {
		return fmt.Errorf("preparing session: %w", err)
	}
	session, err := c.Launcher.Launch(ctx, sc.LaunchOptions(c.Config.Browser().Headless))
	if err != nil {
		return err
	}
	defer session.Close()

	if err := coord.Attach(ctx, session); err != nil {
		return err
	}

	domain := target.Hostname()
	if err := coord.ApplyCookies(ctx, domain); err != nil && !errors.Is(err, cookies.ErrNoJars) {
		logger.Warn("Could not install cookie jar.", zap.String("domain", domain), zap.Error(err))
	}

	navErr := session.Navigate(ctx, target.String(), c.Config.Browser().NavigationTimeout)
	coord.ReportOutcome(domain, navErr == nil)
	if navErr != nil {
		return navErr
	}
	logger.Info("Session ready.", zap.String("session_id", sc.ID), zap.String("url", target.String()), zap.String("proxy", sc.ProxyAddress))

	for _, a := range actions {
		coord.BeforeAction(ctx, a.Action, a.Target)
	}

	if hold > 0 {
		select {
		case <-time.After(hold):
		case <-ctx.Done():
		}
		return nil
	}
	<-ctx.Done()
	return nil
}
