package crawl

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/fwojciec/smartcrawl"
	"golang.org/x/net/idna"
)

// Normalize returns the canonical form of an absolute http(s) URL: scheme
// and host lowercased, host converted to its ASCII form, default port and
// fragment removed, empty path replaced by "/" and query parameters sorted.
// Returns EINVALID for anything that is not an absolute http(s) URL.
func Normalize(rawURL string) (string, error) {
	u, err := parseHTTPURL(rawURL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// hostProfile is the lookup mapping without STD3 rules, which reject
// underscores in hostnames.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.Transitional(false),
)

// asciiHost returns the lowercased ASCII form of a hostname.
func asciiHost(host string) (string, error) {
	return hostProfile.ToASCII(strings.ToLower(host))
}

func parseHTTPURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "malformed url %q", rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "unsupported url scheme %q", rawURL)
	}
	host := u.Hostname()
	if host == "" {
		return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "url %q has no host", rawURL)
	}
	if net.ParseIP(host) == nil {
		host, err = asciiHost(host)
		if err != nil {
			return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "invalid host in url %q", rawURL)
		}
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return nil, smartcrawl.Errorf(smartcrawl.EINVALID, "invalid port in url %q", rawURL)
		}
		host += ":" + port
	}

	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	u.ForceQuery = false
	return u, nil
}

// dedupKey returns the uniqueness key of a URL within a session. A page
// number only contributes when paginated entries are not deduplicated by URL.
func dedupKey(normalized string, page int, dedupPaginated bool) string {
	if page == 0 || dedupPaginated {
		return normalized
	}
	// Fragments are stripped by Normalize so the suffix cannot collide.
	return normalized + "#page=" + strconv.Itoa(page)
}
