package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/florianilch/authshim/internal/interceptor"
	"github.com/florianilch/authshim/internal/observability/middleware"
)

// DefaultBaseURL is the upstream used when no WithBaseURL option is given.
const DefaultBaseURL = "http://localhost:8080"

// Proxy represents the local reverse proxy server
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

type options struct {
	baseURL    string
	transport  http.RoundTripper
	debugStore CredentialStore
}

// Option configures a Proxy.
type Option func(*options)

// WithBaseURL sets the upstream the proxy forwards to. Only scheme and host
// are used; request paths are forwarded unchanged.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithTransport sets the transport used for upstream calls before the
// interceptor is applied. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithDebugStore exposes get/set/clear of the credential under DebugTokenPath.
func WithDebugStore(store CredentialStore) Option {
	return func(o *options) {
		o.debugStore = store
	}
}

// New creates a reverse proxy forwarding every request to the upstream
// through the interceptor.
func New(i *interceptor.Interceptor, opts ...Option) (*Proxy, error) {
	o := options{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&o)
	}

	upstream, err := url.Parse(o.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream URL %q must be absolute", o.baseURL)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = upstream.Scheme
			pr.Out.URL.Host = upstream.Host
			pr.Out.Host = upstream.Host
		},
		// FlushInterval: -1 disables automatic periodic flushing, flushing only when the backend flushes.
		FlushInterval: -1,
		Transport:     &interceptor.Transport{Base: o.transport, Interceptor: i},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.ErrorContext(r.Context(), "upstream request failed", "error", err)
			writeJSONError(r.Context(), w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}

	logger := slog.Default()

	mux := http.NewServeMux()

	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		middleware.Logging(logger),
		Recovery,
	))

	if o.debugStore != nil {
		d := &debugHandler{store: o.debugStore}
		mux.Handle("GET "+DebugTokenPath, applyMiddlewares(http.HandlerFunc(d.get), middleware.Logging(logger), Recovery))
		mux.Handle("PUT "+DebugTokenPath, applyMiddlewares(http.HandlerFunc(d.set), middleware.Logging(logger), Recovery))
		mux.Handle("DELETE "+DebugTokenPath, applyMiddlewares(http.HandlerFunc(d.clear), middleware.Logging(logger), Recovery))
	}

	return &Proxy{mux: mux}, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request (DoS protection against slow clients)
		WriteTimeout: 5 * time.Minute,  // Inbound: Write entire response to client
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
