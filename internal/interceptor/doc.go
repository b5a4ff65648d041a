// Package interceptor adds bearer authentication to calls issued through the
// process's request primitives without callers being aware of it.
//
// Three calling conventions are covered, all sharing one scope.Classifier and
// one credential store:
//   - WrapFetch decorates a single-call fetch.Func
//   - WrapXHR decorates the two-phase xhr.Request produced by an xhr.Factory
//   - Transport is an http.RoundTripper for plain http.Client users
//
// For in-scope calls an Authorization header is injected unless the caller
// already supplied one (the caller always wins). Completed in-scope calls are
// handed to the extractor, which captures the token from login responses and
// clears it on logout or on any 401.
//
// # Installation
//
// Host holds the process-wide primitives. Install wraps them exactly once:
//
//	host := interceptor.NewHost(fetch.New(origin, client), xhr.NewFactory(origin, client))
//	host.Install(interceptor.New(classifier, store))
//	resp, err := host.Fetch(ctx, fetch.String("/api/widgets"), nil)
//
// Code that only has plain http.Client values can call InstallDefaultTransport
// once at startup instead; `authshim fetch --transport` does this.
package interceptor
