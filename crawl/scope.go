package crawl

import (
	"net"
	"net/url"
	"strings"

	"github.com/fwojciec/smartcrawl"
	"golang.org/x/net/publicsuffix"
)

// Scope decides whether a URL belongs to a session's domain scope.
type Scope struct {
	mode      smartcrawl.DomainScope
	roots     map[string]struct{}
	whitelist []string
}

// NewScope builds a scope from the policy and the session seeds. Seeds that
// cannot be parsed are ignored.
func NewScope(policy smartcrawl.Policy, seeds []string) *Scope {
	s := &Scope{
		mode:  policy.DomainScope,
		roots: make(map[string]struct{}),
	}
	for _, d := range policy.Whitelist {
		d = strings.ToLower(strings.TrimPrefix(d, "."))
		if a, err := asciiHost(d); err == nil {
			d = a
		}
		s.whitelist = append(s.whitelist, d)
	}
	for _, seed := range seeds {
		u, err := parseHTTPURL(seed)
		if err != nil {
			continue
		}
		s.roots[s.rootOf(u.Hostname())] = struct{}{}
	}
	return s
}

// Allowed reports whether u is inside the scope.
func (s *Scope) Allowed(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	switch s.mode {
	case smartcrawl.ScopeAny:
		return true
	case smartcrawl.ScopeWhitelist:
		for _, d := range s.whitelist {
			if host == d || strings.HasSuffix(host, "."+d) {
				return true
			}
		}
		return false
	default:
		_, ok := s.roots[s.rootOf(host)]
		return ok
	}
}

func (s *Scope) rootOf(host string) string {
	host = strings.ToLower(host)
	if s.mode != smartcrawl.ScopeSameDomain || net.ParseIP(host) != nil {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}
