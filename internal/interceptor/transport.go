package interceptor

import (
	"net/http"
)

// Transport is an http.RoundTripper applying the interceptor to every request
// sent through it.
type Transport struct {
	Base        http.RoundTripper
	Interceptor *Interceptor
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip implements http.RoundTripper interface.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if t.Interceptor == nil || !t.Interceptor.classifier.IsProtectedURL(req.URL) {
		return base.RoundTrip(req)
	}

	// RoundTrippers must not modify the request they are given.
	out := req.Clone(req.Context())
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	t.Interceptor.authorize(out.Header)

	resp, err := base.RoundTrip(out)
	if err == nil && resp != nil {
		t.Interceptor.observe(req.Context(), req.URL.String(), resp)
	}
	return resp, err
}

// InstallDefaultTransport wraps http.DefaultTransport so that existing
// http.Client users are intercepted. It must run once at process start,
// before any client uses the default transport. Returns false if the default
// transport is already wrapped.
func (i *Interceptor) InstallDefaultTransport() bool {
	if _, ok := http.DefaultTransport.(*Transport); ok {
		return false
	}
	http.DefaultTransport = &Transport{Base: http.DefaultTransport, Interceptor: i}
	return true
}
