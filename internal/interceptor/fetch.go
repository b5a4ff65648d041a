package interceptor

import (
	"context"
	"net/http"

	"github.com/florianilch/authshim/internal/fetch"
)

// WrapFetch returns a fetch.Func that authenticates in-scope calls before
// delegating to next. Out-of-scope calls reach next unchanged.
func (i *Interceptor) WrapFetch(next fetch.Func) fetch.Func {
	return func(ctx context.Context, t fetch.Target, init *fetch.Init) (*http.Response, error) {
		desc := describe(t)
		if !i.classifier.IsProtected(desc.url) {
			return next(ctx, t, init)
		}

		header := mergeHeaders(desc.req, init)
		i.authorize(header)

		out := &fetch.Init{Header: header}
		if init != nil {
			out.Method = init.Method
			out.Body = init.Body
		}
		if desc.req != nil {
			// Rebuild rather than mutate the caller's request object.
			clone := desc.req.Clone(ctx)
			clone.Header = header
			t = fetch.Request{Request: clone}
		}

		resp, err := next(ctx, t, out)
		if err == nil && resp != nil {
			i.observe(ctx, desc.url, resp)
		}
		return resp, err
	}
}
