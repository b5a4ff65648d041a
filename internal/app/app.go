package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/authshim/internal/credential"
	"github.com/florianilch/authshim/internal/fetch"
	"github.com/florianilch/authshim/internal/interceptor"
	"github.com/florianilch/authshim/internal/proxy"
	"github.com/florianilch/authshim/internal/scope"
	"github.com/florianilch/authshim/internal/tokenstore"
	"github.com/florianilch/authshim/internal/xhr"
)

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg     *Config
	backend tokenstore.TokenStore
	proxy   *proxy.Proxy
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, backend, err := NewCredentialStore(cfg)
	if err != nil {
		return nil, err
	}

	i, err := NewInterceptor(cfg, store)
	if err != nil {
		closeBackend(backend)
		return nil, err
	}

	opts := []proxy.Option{proxy.WithBaseURL(cfg.Upstream.BaseURL)}
	if cfg.Debug.Enabled {
		opts = append(opts, proxy.WithDebugStore(store))
	}

	proxyServer, err := proxy.New(i, opts...)
	if err != nil {
		closeBackend(backend)
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:     cfg,
		backend: backend,
		proxy:   proxyServer,
	}, nil
}

// NewCredentialStore creates the credential store for the configured upstream
// origin. The returned backend must be passed to Close when done.
func NewCredentialStore(cfg *Config) (*credential.Store, tokenstore.TokenStore, error) {
	origin, err := cfg.Upstream.Origin()
	if err != nil {
		return nil, nil, err
	}

	backend, err := cfg.Storage.NewTokenStore(origin)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token store: %w", err)
	}

	return credential.New(backend), backend, nil
}

// NewInterceptor creates an Interceptor scoped to the configured upstream origin.
func NewInterceptor(cfg *Config, store *credential.Store) (*interceptor.Interceptor, error) {
	origin, err := cfg.Upstream.Origin()
	if err != nil {
		return nil, err
	}

	classifier, err := scope.NewClassifier(origin)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	return interceptor.New(classifier, store), nil
}

// NewHost creates a Host with both request primitives bound to the upstream
// origin and installs i into it.
func NewHost(cfg *Config, i *interceptor.Interceptor) (*interceptor.Host, error) {
	origin, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	client := &http.Client{Timeout: cfg.Upstream.Timeout}
	host := interceptor.NewHost(fetch.New(origin, client), xhr.NewFactory(origin, client))
	host.Install(i)

	return host, nil
}

// Close releases the storage backend if it holds resources.
func Close(backend tokenstore.TokenStore) error {
	if c, ok := backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func closeBackend(backend tokenstore.TokenStore) {
	if err := Close(backend); err != nil {
		slog.Warn("failed to close token store", "error", err)
	}
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	shutdownFuncs := []func(context.Context) error{
		func(context.Context) error { return Close(a.backend) },
	}

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "address", address, "upstream", a.cfg.Upstream.BaseURL)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		closeBackend(a.backend)
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

