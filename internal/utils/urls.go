package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"slices"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL    = errors.New("empty url")
	ErrMissingHost = errors.New("missing host")
)

// URLTools wraps a parsed URL normalized for comparison: no fragment,
// lowercase scheme and host, default ports and trailing slash removed.
type URLTools struct {
	URL *url.URL
}

func NewURLTools(raw string) (*URLTools, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("couldn't parse url %s: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %s: %w", raw, ErrMissingHost)
	}

	t := &URLTools{URL: u}
	t.normalize()
	return t, nil
}

func (u *URLTools) normalize() {
	u.URL.Fragment = ""
	u.URL.Scheme = strings.ToLower(u.URL.Scheme)
	u.URL.Host = strings.ToLower(u.URL.Host)

	if isDefaultPort(u.URL.Scheme, u.URL.Port()) {
		u.URL.Host = u.URL.Hostname()
	}

	u.URL.Path = strings.TrimRight(u.URL.Path, "/")
}

// HostKey identifies the rate-limit and robots bucket for a URL: lowercase
// host plus any non-default port.
func HostKey(raw string) (string, error) {
	t, err := NewURLTools(raw)
	if err != nil {
		return "", err
	}
	return t.URL.Host, nil
}

// RobotsURL returns the robots.txt location that governs raw.
func RobotsURL(raw string) (string, error) {
	t, err := NewURLTools(raw)
	if err != nil {
		return "", err
	}
	scheme := t.URL.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return (&url.URL{Scheme: scheme, Host: t.URL.Host, Path: "/robots.txt"}).String(), nil
}

// PathAndQuery is what robots.txt rules are matched against.
func PathAndQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "/"
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// CanonicalizeOptions controls optional canonicalization policies.
type CanonicalizeOptions struct {
	DropTrackingParams bool   // remove utm_*, gclid, fbclid and friends
	StripTrailingSlash bool   // "/a/" becomes "/a"; root stays "/"
	DefaultScheme      string // assumed for schemeless input; empty means the scheme is required
	// QueryAllowlist, when non-empty, keeps only these query keys.
	QueryAllowlist []string
}

var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "mc_cid": {}, "mc_eid": {}, "ref": {},
}

// Canonicalize returns a deterministic form of raw so the same competitor
// page configured twice maps to one page id.
func Canonicalize(raw string, opts CanonicalizeOptions) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if opts.DefaultScheme != "" && !strings.Contains(raw, "://") {
		raw = opts.DefaultScheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("canonicalize %s: %w", raw, ErrMissingHost)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	switch port := u.Port(); {
	case port == "" || isDefaultPort(u.Scheme, port):
		u.Host = host
	default:
		u.Host = net.JoinHostPort(host, port)
	}
	u.User = nil
	u.Fragment = ""

	p := path.Clean(u.Path)
	if p == "." {
		p = "/"
	}
	if !opts.StripTrailingSlash && strings.HasSuffix(u.Path, "/") && p != "/" {
		p += "/"
	}
	u.Path = p

	q := u.Query()
	for k := range q {
		switch {
		case len(opts.QueryAllowlist) > 0:
			if !slices.Contains(opts.QueryAllowlist, k) {
				q.Del(k)
			}
		case opts.DropTrackingParams:
			if _, ok := trackingParams[strings.ToLower(k)]; ok {
				q.Del(k)
			}
		}
	}
	for _, vs := range q {
		sort.Strings(vs)
	}
	// Encode sorts by key.
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}
