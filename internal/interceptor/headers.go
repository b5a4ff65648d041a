package interceptor

import (
	"net/http"
	"slices"

	"github.com/florianilch/authshim/internal/fetch"
)

// target is a call target normalized once at interceptor entry.
type target struct {
	url string
	// req is set when the caller passed a request object.
	req *http.Request
}

func describe(t fetch.Target) target {
	switch t := t.(type) {
	case fetch.String:
		return target{url: string(t)}
	case fetch.URL:
		if t.URL != nil {
			return target{url: t.URL.String()}
		}
	case fetch.Request:
		if t.Request != nil && t.Request.URL != nil {
			return target{url: t.Request.URL.String(), req: t.Request}
		}
	}
	return target{}
}

// mergeHeaders starts from the request object's headers and overlays the
// call options per key, so explicit options win over object defaults.
func mergeHeaders(req *http.Request, init *fetch.Init) http.Header {
	merged := make(http.Header)
	if req != nil {
		for key, values := range req.Header {
			merged[http.CanonicalHeaderKey(key)] = slices.Clone(values)
		}
	}
	if init != nil {
		for key, values := range init.Header {
			merged[http.CanonicalHeaderKey(key)] = slices.Clone(values)
		}
	}
	return merged
}
