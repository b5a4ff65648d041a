// Package fetch models the single-call request primitive: one function call
// per HTTP exchange, taking a target and optional call options.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Target is the destination of a call. It is one of String, URL or Request.
type Target interface {
	isTarget()
}

// String is a target given as a URL string, absolute or relative to the origin.
type String string

// URL is a target given as a parsed URL.
type URL struct {
	*url.URL
}

// Request is a target given as a prepared request object. Its method, headers
// and body act as defaults that Init may override.
type Request struct {
	*http.Request
}

func (String) isTarget()  {}
func (URL) isTarget()     {}
func (Request) isTarget() {}

// Init holds per-call options. Zero fields keep the target's defaults.
type Init struct {
	Method string
	// Header, when non-nil, replaces the headers of a Request target.
	Header http.Header
	Body   io.Reader
}

// Func issues a single call.
type Func func(ctx context.Context, target Target, init *Init) (*http.Response, error)

// New returns a Func that issues calls with client, resolving relative targets
// against origin.
func New(origin *url.URL, client *http.Client) Func {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, target Target, init *Init) (*http.Response, error) {
		req, err := NewRequest(ctx, origin, target, init)
		if err != nil {
			return nil, err
		}
		return client.Do(req)
	}
}

// NewRequest builds the request a call with target and init would send.
func NewRequest(ctx context.Context, origin *url.URL, target Target, init *Init) (*http.Request, error) {
	if init == nil {
		init = &Init{}
	}

	var req *http.Request
	switch t := target.(type) {
	case Request:
		if t.Request == nil {
			return nil, errors.New("fetch: nil request target")
		}
		req = t.Request.Clone(ctx)
	case String, URL:
		u, err := Resolve(origin, target)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("fetch: unsupported target %T", target)
	}

	if init.Method != "" {
		req.Method = init.Method
	}
	if init.Body != nil {
		// Let net/http derive ContentLength and GetBody from the body type.
		withBody, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), init.Body)
		if err != nil {
			return nil, err
		}
		req.Body = withBody.Body
		req.GetBody = withBody.GetBody
		req.ContentLength = withBody.ContentLength
	}
	if init.Header != nil {
		req.Header = init.Header.Clone()
	}

	return req, nil
}

// Resolve returns the absolute URL of a String or URL target.
func Resolve(origin *url.URL, target Target) (*url.URL, error) {
	var u *url.URL
	switch t := target.(type) {
	case String:
		parsed, err := url.Parse(string(t))
		if err != nil {
			return nil, fmt.Errorf("fetch: invalid URL: %w", err)
		}
		u = parsed
	case URL:
		if t.URL == nil {
			return nil, errors.New("fetch: nil URL target")
		}
		u = t.URL
	case Request:
		if t.Request == nil || t.Request.URL == nil {
			return nil, errors.New("fetch: request target without URL")
		}
		u = t.Request.URL
	default:
		return nil, fmt.Errorf("fetch: unsupported target %T", target)
	}

	if u.IsAbs() {
		return u, nil
	}
	if origin == nil {
		return nil, fmt.Errorf("fetch: relative URL %q without origin", u)
	}
	return origin.ResolveReference(u), nil
}
