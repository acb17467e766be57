package cmd

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mimic/internal/cookies"
	"github.com/xkilldash9x/mimic/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newCookiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Manage rotated cookie jars",
	}
	cmd.AddCommand(newCookiesImportCmd(), newCookiesListCmd())
	return cmd
}

// exportedCookie accepts both the native jar format and the common browser
// extension export, which carries expirationDate in unix seconds.
type exportedCookie struct {
	Name           string    `json:"name"`
	Value          string    `json:"value"`
	Domain         string    `json:"domain"`
	Path           string    `json:"path"`
	Expires        time.Time `json:"expires"`
	ExpirationDate float64   `json:"expirationDate"`
	Secure         bool      `json:"secure"`
	HTTPOnly       bool      `json:"httpOnly"`
	SameSite       string    `json:"sameSite"`
}

func (e exportedCookie) cookie() cookies.Cookie {
	c := cookies.Cookie{
		Name:     e.Name,
		Value:    e.Value,
		Domain:   e.Domain,
		Path:     e.Path,
		Expires:  e.Expires,
		Secure:   e.Secure,
		HTTPOnly: e.HTTPOnly,
		SameSite: e.SameSite,
	}
	if c.Expires.IsZero() && e.ExpirationDate > 0 {
		sec, frac := math.Modf(e.ExpirationDate)
		c.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

// parseCookieExport groups the cookies of an export by registrable domain.
// Cookies without a domain are assigned to fallback.
func parseCookieExport(data []byte, fallback string) (map[string]cookies.Jar, error) {
	var exported []exportedCookie
	if err := json.Unmarshal(data, &exported); err != nil {
		return nil, fmt.Errorf("decoding cookie export: %w", err)
	}
	jars := make(map[string]cookies.Jar)
	for _, e := range exported {
		if e.Name == "" {
			continue
		}
		c := e.cookie()
		if c.Domain == "" {
			if fallback == "" {
				return nil, fmt.Errorf("cookie %q has no domain; pass --domain", c.Name)
			}
			c.Domain = fallback
		}
		key := cookies.DomainKey(c.Domain)
		jars[key] = append(jars[key], c)
	}
	if len(jars) == 0 {
		return nil, errors.New("cookie export contains no cookies")
	}
	return jars, nil
}

func newCookiesImportCmd() *cobra.Command {
	var (
		domain   string
		variants int
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an exported cookie jar and derive variants of it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading cookie export: %w", err)
			}
			jars, err := parseCookieExport(data, domain)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("variants") {
				variants = cfg.Cookies().VariantsPerCookie
			}
			return withComponents(cmd.Context(), cfg, func(c *service.Components) error {
				keys := make([]string, 0, len(jars))
				for k := range jars {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, key := range keys {
					added := c.Cookies.PutWithVariants(key, jars[key], variants)
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d cookies, %d jars added\n", key, len(jars[key]), added)
				}
				return c.Cookies.Save(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "domain for cookies that do not carry one")
	cmd.Flags().IntVar(&variants, "variants", 0, "variants derived per imported jar (default cookies.variants_per_cookie)")
	return cmd
}

func newCookiesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List domains with their jars and observed outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return withComponents(cmd.Context(), cfg, func(c *service.Components) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "DOMAIN\tJAR\tCOOKIES\tOK\tFAIL\tWEIGHT")
				for _, d := range c.Cookies.Domains() {
					jars := c.Cookies.Jars(d)
					stats := c.Cookies.Stats(d)
					for i, jar := range jars {
						var st cookies.JarStats
						if i < len(stats) {
							st = stats[i]
						}
						fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%.2f\n",
							d, i, cookieNames(jar), st.Success, st.Failure, st.Weight())
					}
				}
				return w.Flush()
			})
		},
	}
}

func cookieNames(jar cookies.Jar) string {
	names := make([]string, len(jar))
	for i, c := range jar {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}
