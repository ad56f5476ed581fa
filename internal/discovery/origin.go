package discovery

import (
	"net"
	"net/url"
	"strings"
)

// EnsureScheme prefixes https:// when rawURL carries no scheme.
// Password-manager exports and hand-typed entries often hold bare hostnames.
func EnsureScheme(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "https://" + rawURL
	}
	return rawURL
}

// NormalizeOrigin reduces rawURL to its scheme://host[:port] origin, dropping
// path, query and fragment. Input that does not parse as an absolute URL is
// returned unchanged so the failure surfaces at fetch time instead.
func NormalizeOrigin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// hasSubdomain reports whether the origin's hostname has more than two
// dot-separated labels. IP hosts are never subdomains.
func hasSubdomain(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" || net.ParseIP(host) != nil {
		return false
	}
	return len(strings.Split(host, ".")) > 2
}

// widenToParentDomain strips the leftmost hostname label, keeping the scheme.
// Returns "" when the hostname has two or fewer labels or the origin does not
// parse. There is no public-suffix lookup, so multi-label TLDs widen wrong
// (a.b.co.uk becomes b.co.uk); known limitation.
func widenToParentDomain(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" {
		return ""
	}
	host := u.Hostname()
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return ""
	}
	return u.Scheme + "://" + strings.Join(labels[1:], ".")
}
