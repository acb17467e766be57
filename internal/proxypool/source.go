package proxypool

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/mimic/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxSourceBody caps how much of a source listing is read.
const maxSourceBody = 10 << 20

// Source yields candidate proxies.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Record, error)
}

// HTTPSource downloads a proxy listing in JSON, plain text or XML form.
type HTTPSource struct {
	name     string
	url      string
	format   string
	protocol Protocol
	client   *http.Client
}

// NewHTTPSource creates a source from its configuration. An empty format is
// detected from the body.
func NewHTTPSource(cfg config.ProxySourceConfig, client *http.Client) *HTTPSource {
	proto, ok := ParseProtocol(cfg.Protocol)
	if !ok {
		proto = ProtocolHTTP
	}
	name := cfg.Name
	if name == "" {
		name = cfg.URL
	}
	return &HTTPSource{
		name:     name,
		url:      cfg.URL,
		format:   strings.ToLower(cfg.Format),
		protocol: proto,
		client:   client,
	}
}

func (s *HTTPSource) Name() string { return s.name }

// Fetch downloads and parses the listing.
func (s *HTTPSource) Fetch(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.name, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: unexpected status %d", ErrSourceUnavailable, s.name, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %v", ErrSourceUnavailable, s.name, err)
	}

	records, err := ParseListing(body, s.format, s.protocol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.name, err)
	}
	for i := range records {
		records[i].Source = s.name
	}
	return records, nil
}

// ParseListing decodes a proxy listing. format is "json", "text", "xml", or
// empty to sniff the first non-space byte.
func ParseListing(body []byte, format string, fallback Protocol) ([]Record, error) {
	trimmed := bytes.TrimSpace(body)
	if format == "" {
		switch {
		case len(trimmed) == 0:
			format = "text"
		case trimmed[0] == '[' || trimmed[0] == '{':
			format = "json"
		case trimmed[0] == '<':
			format = "xml"
		default:
			format = "text"
		}
	}

	switch format {
	case "json":
		return parseJSONListing(trimmed, fallback)
	case "xml":
		return parseXMLListing(trimmed, fallback)
	case "text", "txt":
		return parseTextListing(trimmed, fallback), nil
	}
	return nil, fmt.Errorf("unknown listing format %q", format)
}

// flexInt accepts a JSON number or a numeric string. Anything else decodes
// to zero so one bad entry does not discard the whole listing.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	n, err := strconv.Atoi(strings.Trim(string(b), `"`))
	if err != nil {
		n = 0
	}
	*f = flexInt(n)
	return nil
}

type listingEntry struct {
	IP       string  `json:"ip"`
	Host     string  `json:"host"`
	Proxy    string  `json:"proxy"`
	Port     flexInt `json:"port"`
	Protocol string  `json:"protocol"`
	Country  string  `json:"country"`
	IPData   *struct {
		CountryCode string `json:"countryCode"`
	} `json:"ip_data"`
}

func (e listingEntry) record(fallback Protocol) (Record, bool) {
	proto := fallback
	if e.Protocol != "" {
		p, ok := ParseProtocol(e.Protocol)
		if !ok {
			return Record{}, false
		}
		proto = p
	}

	var rec Record
	var ok bool
	if e.Proxy != "" {
		rec, ok = parseHostPort(e.Proxy, proto)
	} else {
		host := e.IP
		if host == "" {
			host = e.Host
		}
		rec, ok = parseHostPort(net.JoinHostPort(host, strconv.Itoa(int(e.Port))), proto)
	}
	if !ok {
		return Record{}, false
	}

	rec.Country = strings.ToUpper(e.Country)
	if rec.Country == "" && e.IPData != nil {
		rec.Country = strings.ToUpper(e.IPData.CountryCode)
	}
	return rec, true
}

func parseJSONListing(body []byte, fallback Protocol) ([]Record, error) {
	var entries []listingEntry
	if len(body) > 0 && body[0] == '{' {
		var wrapped struct {
			Proxies []listingEntry `json:"proxies"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("decoding json listing: %w", err)
		}
		entries = wrapped.Proxies
	} else if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding json listing: %w", err)
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		if rec, ok := e.record(fallback); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func parseTextListing(body []byte, fallback Protocol) []Record {
	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Some lists append metadata after whitespace.
		if fields := strings.Fields(line); len(fields) > 0 {
			line = fields[0]
		}
		if rec, ok := parseHostPort(line, fallback); ok {
			records = append(records, rec)
		}
	}
	return records
}

// parseXMLListing reads <proxy> elements carrying host/ip, port, protocol and
// country as attributes or child elements.
func parseXMLListing(body []byte, fallback Protocol) ([]Record, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("decoding xml listing: %w", err)
	}

	var records []Record
	for _, el := range doc.FindElements("//proxy") {
		e := listingEntry{
			IP:       xmlValue(el, "ip"),
			Host:     xmlValue(el, "host"),
			Protocol: xmlValue(el, "protocol"),
			Country:  xmlValue(el, "country"),
		}
		if port, err := strconv.Atoi(xmlValue(el, "port")); err == nil {
			e.Port = flexInt(port)
		}
		if e.IP == "" && e.Host == "" {
			e.Proxy = strings.TrimSpace(el.Text())
		}
		if rec, ok := e.record(fallback); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func xmlValue(el *etree.Element, name string) string {
	if v := el.SelectAttrValue(name, ""); v != "" {
		return strings.TrimSpace(v)
	}
	if child := el.SelectElement(name); child != nil {
		return strings.TrimSpace(child.Text())
	}
	return ""
}
