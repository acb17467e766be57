package cmd

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mimic/internal/proxypool"
	"github.com/xkilldash9x/mimic/internal/service"
)

func newProxiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Discover, verify and inspect egress proxies",
	}
	cmd.AddCommand(
		newProxiesRefreshCmd(),
		newProxiesVerifyCmd(),
		newProxiesListCmd(),
		newProxiesBestCmd(),
	)
	return cmd
}

// withProxyPool runs fn against the proxy pool regardless of proxy.enabled,
// which only governs whether sessions use proxies.
func withProxyPool(cmd *cobra.Command, fn func(*proxypool.Pool) error) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	cfg.SetProxyEnabled(true)
	return withComponents(cmd.Context(), cfg, func(c *service.Components) error {
		if c.Proxies == nil {
			return errors.New("proxy pool unavailable")
		}
		return fn(c.Proxies)
	})
}

func newProxiesRefreshCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch every configured proxy source and merge the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProxyPool(cmd, func(pool *proxypool.Pool) error {
				added, err := pool.Refresh(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %d proxies (%d total)\n", added, pool.Len())
				if !verify {
					return nil
				}
				return runVerify(cmd, pool)
			})
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "verify the pool after refreshing")
	return cmd
}

func newProxiesVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Probe every proxy through the echo endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProxyPool(cmd, func(pool *proxypool.Pool) error {
				return runVerify(cmd, pool)
			})
		},
	}
}

func runVerify(cmd *cobra.Command, pool *proxypool.Pool) error {
	report, err := pool.Verify(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "probed %d: %d alive, %d high anonymity, %d failed\n",
		report.Probed, report.Alive, report.High, report.Failed)
	return nil
}

func newProxiesListCmd() *cobra.Command {
	var eligibleOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the proxies in the pool, fastest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProxyPool(cmd, func(pool *proxypool.Pool) error {
				records := pool.Snapshot()
				if eligibleOnly {
					kept := records[:0]
					for _, rec := range records {
						if rec.Eligible() {
							kept = append(kept, rec)
						}
					}
					records = kept
				}
				sort.Slice(records, func(i, j int) bool {
					if records[i].Latency != records[j].Latency {
						return records[i].Latency < records[j].Latency
					}
					return records[i].Key() < records[j].Key()
				})
				return printProxies(cmd, records)
			})
		},
	}
	cmd.Flags().BoolVar(&eligibleOnly, "eligible", false, "only list proxies that sessions may use")
	return cmd
}

func newProxiesBestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "best",
		Short: "Print the address of a proxy a session would use now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProxyPool(cmd, func(pool *proxypool.Pool) error {
				rec, err := pool.Select()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rec.Address())
				return nil
			})
		},
	}
}

func printProxies(cmd *cobra.Command, records []proxypool.Record) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tCOUNTRY\tANONYMITY\tLATENCY\tOK\tFAIL\tSOURCE")
	for _, rec := range records {
		country := rec.Country
		if country == "" {
			country = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%d\t%s\n",
			rec.Address(), country, rec.Anonymity, rec.Latency, rec.SuccessCount, rec.FailCount, rec.Source)
	}
	return w.Flush()
}
