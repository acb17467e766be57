// Package cookies keeps per-site cookie jars, derives near-duplicate variants
// of them and rotates between jars on a schedule.
package cookies

import (
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"golang.org/x/net/publicsuffix"
)

// Cookie is a single browser cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"httpOnly"`
	SameSite string    `json:"sameSite,omitempty"`
}

// Jar is one coherent set of cookies for a site.
type Jar []Cookie

// Clone returns a deep copy of the jar.
func (j Jar) Clone() Jar {
	if j == nil {
		return nil
	}
	out := make(Jar, len(j))
	copy(out, j)
	return out
}

// DomainKey reduces a host or cookie domain to its registrable domain
// (eTLD+1). Hosts without a public suffix, such as IPs and "localhost", are
// returned lowercased as-is.
func DomainKey(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, ".")
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	if net.ParseIP(d) != nil {
		return d
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(d); err == nil {
		return etld1
	}
	return d
}

const (
	minMutableLength = 5
	maxMutation      = 3
	hexDigits        = "0123456789abcdef"
)

// DeriveVariants creates k sibling jars. In each sibling every cookie value
// has a random contiguous run of one to three bytes replaced with lowercase
// hex; all other fields and the value length are preserved. Values shorter
// than five bytes are copied unchanged.
func DeriveVariants(rng *rand.Rand, jar Jar, k int) []Jar {
	if k <= 0 {
		return nil
	}
	variants := make([]Jar, k)
	for i := range variants {
		v := jar.Clone()
		for j := range v {
			v[j].Value = mutateValue(rng, v[j].Value)
		}
		variants[i] = v
	}
	return variants
}

func mutateValue(rng *rand.Rand, value string) string {
	if len(value) < minMutableLength {
		return value
	}
	offset := rng.Intn(len(value))
	length := 1 + rng.Intn(maxMutation)
	if offset+length > len(value) {
		length = len(value) - offset
	}
	b := []byte(value)
	for i := offset; i < offset+length; i++ {
		b[i] = hexDigits[rng.Intn(len(hexDigits))]
	}
	return string(b)
}

// ToCookieParams converts a jar into CDP cookie parameters for the browser.
func ToCookieParams(jar Jar) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(jar))
	for _, c := range jar {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if !c.Expires.IsZero() {
			expires := cdp.TimeSinceEpoch(c.Expires)
			p.Expires = &expires
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax":
			p.SameSite = network.CookieSameSiteLax
		case "none":
			p.SameSite = network.CookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}
