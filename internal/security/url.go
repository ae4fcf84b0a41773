// Package security guards byte's outward-facing surfaces: the outbound
// HTTP requests its threat-intelligence capabilities make, and the inbound
// messages users feed the model.
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// URLGuard blocks requests to targets an attacker could abuse through the
// assistant's lookup capabilities: private networks, loopback, link-local
// ranges, and cloud metadata endpoints.
type URLGuard struct {
	allowedSchemes map[string]struct{}
	blockedHosts   map[string]struct{}
}

// NewURLGuard creates a guard with the default blocklist.
func NewURLGuard() *URLGuard {
	return &URLGuard{
		allowedSchemes: map[string]struct{}{
			"http":  {},
			"https": {},
		},
		blockedHosts: map[string]struct{}{
			"localhost":                {},
			"metadata.google.internal": {},
			"metadata.gce.internal":    {},
			"metadata.internal":        {},
		},
	}
}

// Validate statically checks one URL. DNS-time enforcement happens in
// Transport, which also covers rebinding.
func (g *URLGuard) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if _, ok := g.allowedSchemes[strings.ToLower(u.Scheme)]; !ok {
		return fmt.Errorf("unsupported scheme: %s (allowed: http, https)", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty hostname")
	}
	return g.validateHost(host)
}

func (g *URLGuard) validateHost(host string) error {
	if _, blocked := g.blockedHosts[strings.ToLower(host)]; blocked {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return g.checkIP(ip)
	}
	return nil
}

func (g *URLGuard) checkIP(ip net.IP) error {
	// Normalize IPv6-mapped IPv4 (::ffff:127.0.0.1 -> 127.0.0.1).
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address not allowed: %s", ip)
	case ip.IsPrivate():
		return fmt.Errorf("private IP not allowed: %s", ip)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address not allowed: %s", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address not allowed: %s", ip)
	}
	return nil
}

// Transport returns an http.Transport that re-validates every resolved IP
// before dialing, closing the DNS-rebinding hole static validation leaves.
func (g *URLGuard) Transport() *http.Transport {
	return &http.Transport{
		DialContext:         g.dialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func (g *URLGuard) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		port = ""
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("request blocked: %w", err)
		}
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup failed: %w", err)
	}
	for _, ip := range ips {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("request blocked (%s resolved to %s): %w", host, ip, err)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no IP addresses resolved for %s", host)
	}

	// Dial the validated IP directly to avoid a second, unchecked lookup.
	target := ips[0].String()
	if port != "" {
		target = net.JoinHostPort(target, port)
	}
	return (&net.Dialer{}).DialContext(ctx, network, target)
}

// CheckRedirect limits redirect chains and validates each hop, for use as
// an http.Client CheckRedirect function.
func (g *URLGuard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	return g.Validate(req.URL.String())
}
