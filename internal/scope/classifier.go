// Package scope decides which outgoing calls target the protected API surface.
package scope

import (
	"fmt"
	"net/url"
	"strings"
)

// APIPrefix is the path prefix of the protected API surface.
const APIPrefix = "/api/"

// Classifier resolves call targets against the page origin and reports whether
// they fall under APIPrefix. A single Classifier is shared by every transport
// so all of them classify identically.
type Classifier struct {
	origin *url.URL
}

// NewClassifier creates a Classifier resolving relative targets against origin,
// which must be an absolute URL.
func NewClassifier(origin string) (*Classifier, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be an absolute URL", origin)
	}

	return &Classifier{origin: &url.URL{Scheme: u.Scheme, Host: u.Host}}, nil
}

// Origin returns the origin relative targets are resolved against.
func (c *Classifier) Origin() *url.URL {
	u := *c.origin
	return &u
}

// IsProtected reports whether raw, after resolution against the origin, has a
// path under APIPrefix. Malformed targets are never protected.
func (c *Classifier) IsProtected(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return c.IsProtectedURL(u)
}

// IsProtectedURL is IsProtected for an already parsed target.
func (c *Classifier) IsProtectedURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.HasPrefix(c.origin.ResolveReference(u).EscapedPath(), APIPrefix)
}

// Path returns the escaped path of raw resolved against the origin, or "" if
// raw is malformed.
func (c *Classifier) Path(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return c.origin.ResolveReference(u).EscapedPath()
}
