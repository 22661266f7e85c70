package leakix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/leakctl/leakctl/internal/cache"
	"github.com/leakctl/leakctl/internal/metrics"
	"github.com/leakctl/leakctl/internal/record"
)

// ResourceDetails is a decoded host or domain lookup: the services
// exposed plus any recorded leaks. The API answers null for either
// side; both decode to empty.
type ResourceDetails struct {
	Services []record.Record `json:"services"`
	Leaks    []record.Record `json:"leaks"`
}

// Subdomain is one entry of a subdomain enumeration.
type Subdomain struct {
	Subdomain   string `json:"subdomain"`
	DistinctIPs int    `json:"distinct_ips"`
	LastSeen    string `json:"last_seen"`
}

// NormalizeDomain lowercases, strips the trailing dot and checks the
// shape. The API never matches uppercase or absolute forms.
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	if d == "" || !strings.Contains(d, ".") || strings.ContainsAny(d, " /:") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return d, nil
}

// HostDetails looks up everything indexed for one IP address.
func (c *Client) HostDetails(ctx context.Context, ip string) (*ResourceDetails, error) {
	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	payload, err := c.lookupPayload(ctx, "/host/"+ip, "host")
	if err != nil {
		return nil, err
	}
	return c.decodeDetails(payload)
}

// DomainDetails looks up everything indexed for one domain.
func (c *Client) DomainDetails(ctx context.Context, domain string) (*ResourceDetails, error) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	payload, err := c.lookupPayload(ctx, "/domain/"+d, "domain")
	if err != nil {
		return nil, err
	}
	return c.decodeDetails(payload)
}

// Subdomains enumerates recorded subdomains of domain.
func (c *Client) Subdomains(ctx context.Context, domain string) ([]Subdomain, error) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	payload, err := c.lookupPayload(ctx, "/api/subdomains/"+d, "subdomains")
	if err != nil {
		return nil, err
	}
	var subs []Subdomain
	if err := json.Unmarshal(bytes.TrimSpace(payload), &subs); err != nil {
		return nil, fmt.Errorf("leakix: decoding subdomains: %w", err)
	}
	return subs, nil
}

// lookupPayload answers a parameterless GET, memoized per process in
// front of the shared cache.
func (c *Client) lookupPayload(ctx context.Context, endpoint, label string) ([]byte, error) {
	key := cache.Fingerprint(endpoint, nil)
	if b, ok := c.lookups.Get(key); ok {
		return b, nil
	}
	payload, cached, err := c.fetchJSON(ctx, endpoint, nil, false)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(label, "error").Inc()
		return nil, err
	}
	if !cached {
		metrics.RequestsTotal.WithLabelValues(label, "ok").Inc()
	}
	c.lookups.Add(key, payload)
	return payload, nil
}

// decodeDetails decodes the capitalized Services/Leaks envelope.
func (c *Client) decodeDetails(payload []byte) (*ResourceDetails, error) {
	var raw struct {
		Services []any `json:"Services"`
		Leaks    []any `json:"Leaks"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(payload), &raw); err != nil {
		return nil, fmt.Errorf("leakix: decoding details: %w", err)
	}
	return &ResourceDetails{
		Services: c.wrapAll(raw.Services),
		Leaks:    c.wrapAll(raw.Leaks),
	}, nil
}
