// Package geo resolves proxy hosts to ISO country codes from a MaxMind database.
package geo

import (
	"fmt"
	"net/netip"

	"github.com/oschwald/geoip2-golang/v2"
)

// Resolver maps a host to an ISO 3166-1 alpha-2 country code.
type Resolver interface {
	Country(host string) (string, error)
}

// MaxMindResolver reads GeoLite2/GeoIP2 Country or City databases.
type MaxMindResolver struct {
	db *geoip2.Reader
}

// Open loads the database at path.
func Open(path string) (*MaxMindResolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database %q: %w", path, err)
	}
	return &MaxMindResolver{db: db}, nil
}

// Country returns the ISO code for host, or "" when the address is unknown to the database.
func (r *MaxMindResolver) Country(host string) (string, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "", fmt.Errorf("not an IP address %q: %w", host, err)
	}
	record, err := r.db.Country(addr)
	if err != nil {
		return "", fmt.Errorf("geoip lookup for %s failed: %w", host, err)
	}
	return record.Country.ISOCode, nil
}

// Close releases the memory-mapped database.
func (r *MaxMindResolver) Close() error {
	return r.db.Close()
}
