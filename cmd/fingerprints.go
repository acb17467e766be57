package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic/internal/fingerprint"
	"github.com/xkilldash9x/mimic/internal/observability"
	"github.com/xkilldash9x/mimic/internal/service"
)

func newFingerprintsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fingerprints",
		Aliases: []string{"fp"},
		Short:   "Inspect or regenerate the fingerprint catalog",
	}
	cmd.AddCommand(newFingerprintsListCmd(), newFingerprintsGenerateCmd())
	return cmd
}

func newFingerprintsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the fingerprints in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return withComponents(cmd.Context(), cfg, func(c *service.Components) error {
				return printFingerprints(cmd, c.Fingerprints.All())
			})
		},
	}
}

func newFingerprintsGenerateCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Replace the catalog with freshly generated fingerprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if count <= 0 {
				count = cfg.Fingerprint().CatalogSize
			}
			return withComponents(cmd.Context(), cfg, func(c *service.Components) error {
				generated := fingerprint.Generate(service.NewRand(cfg.Fingerprint().Seed), count)
				c.Fingerprints.Replace(generated)
				if err := c.Fingerprints.Save(cmd.Context()); err != nil {
					return fmt.Errorf("saving fingerprint catalog: %w", err)
				}
				observability.GetLogger().Info("Fingerprint catalog regenerated.", zap.Int("count", c.Fingerprints.Len()))
				fmt.Fprintf(cmd.OutOrStdout(), "generated %d fingerprints\n", c.Fingerprints.Len())
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of fingerprints (default fingerprint.catalog_size)")
	return cmd
}

func printFingerprints(cmd *cobra.Command, fps []fingerprint.Fingerprint) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLATFORM\tSCREEN\tCORES\tMEMORY\tTIMEZONE\tUSER AGENT")
	for _, fp := range fps {
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\t%d\t%s\t%s\n",
			shortID(fp.ID), fp.Platform, fp.Screen.Width, fp.Screen.Height,
			fp.Hardware.HardwareConcurrency, fp.Hardware.DeviceMemory, fp.Timezone, fp.UserAgent)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
