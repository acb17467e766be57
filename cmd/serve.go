package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mimic/internal/api"
	"github.com/xkilldash9x/mimic/internal/observability"
	"github.com/xkilldash9x/mimic/internal/service"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session and proxy control API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SetAPIAddr(addr)
			}
			return withComponents(cmd.Context(), cfg, func(c *service.Components) error {
				var proxies api.ProxyRotator
				if c.Proxies != nil {
					proxies = c.NewCoordinator()
				}
				srv := api.NewServer(cfg.API(), c.PrepareSession, proxies, observability.GetLogger())
				return srv.Run(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default api.addr)")
	cmd.AddCommand(newTokenCmd())
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			token, err := api.IssueToken([]byte(cfg.API().JWTSecret), subject, ttl)
			if err != nil {
				return fmt.Errorf("%w (hint: MIMIC_API_JWT_SECRET)", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "driver", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
