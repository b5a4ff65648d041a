package interceptor

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/florianilch/authshim/internal/fetch"
	"github.com/florianilch/authshim/internal/xhr"
)

// Host holds the process-wide request primitives application code calls
// through. Installing an Interceptor replaces them with wrappers that keep a
// reference to the originals.
type Host struct {
	mu        sync.RWMutex
	fetch     fetch.Func
	newXHR    xhr.Factory
	installed bool
}

// NewHost creates a Host over the original primitives.
func NewHost(fetchFunc fetch.Func, newXHR xhr.Factory) *Host {
	return &Host{
		fetch:  fetchFunc,
		newXHR: newXHR,
	}
}

// Install wraps both primitives with i. Only the first call has an effect;
// later calls return false so that calls are never wrapped twice.
func (h *Host) Install(i *Interceptor) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.installed {
		return false
	}
	h.fetch = i.WrapFetch(h.fetch)
	h.newXHR = i.WrapXHR(h.newXHR)
	h.installed = true

	slog.Debug("interceptor installed")
	return true
}

// Fetch issues a single call through the current primitive.
func (h *Host) Fetch(ctx context.Context, target fetch.Target, init *fetch.Init) (*http.Response, error) {
	h.mu.RLock()
	call := h.fetch
	h.mu.RUnlock()

	return call(ctx, target, init)
}

// NewXHR creates a two-phase call through the current primitive.
func (h *Host) NewXHR(ctx context.Context) xhr.Request {
	h.mu.RLock()
	factory := h.newXHR
	h.mu.RUnlock()

	return factory(ctx)
}
