package interceptor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/florianilch/authshim/internal/credential"
	"github.com/florianilch/authshim/internal/fetch"
	"github.com/florianilch/authshim/internal/scope"
	"github.com/florianilch/authshim/internal/tokenstore"
	"github.com/florianilch/authshim/internal/xhr"
)

// largeBodySize exceeds maxInspectedBody so the extractor sees a truncated body.
const largeBodySize = maxInspectedBody + 512

// testAPI is a fake API server recording the Authorization header of each call.
type testAPI struct {
	server *httptest.Server
	origin *url.URL

	mu           sync.Mutex
	auth         map[string][]string
	unauthorized bool
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	api := &testAPI{auth: make(map[string][]string)}
	api.server = httptest.NewServer(http.HandlerFunc(api.serveHTTP))
	t.Cleanup(api.server.Close)

	origin, err := url.Parse(api.server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	api.origin = origin
	return api
}

func (a *testAPI) serveHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.auth[r.URL.Path] = append(a.auth[r.URL.Path], r.Header.Get("Authorization"))
	unauthorized := a.unauthorized
	a.mu.Unlock()

	switch r.URL.Path {
	case "/api/auth/login":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"auth_token":"abc123"}}`))
	case "/api/big/api/auth/login":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pad":"` + strings.Repeat("x", largeBodySize) + `","data":{"auth_token":"big"}}`))
	case "/api/auth/logout":
		w.WriteHeader(http.StatusNoContent)
	case "/api/legacy/login":
		http.Redirect(w, r, "/api/auth/login", http.StatusFound)
	case "/static/denied":
		w.WriteHeader(http.StatusUnauthorized)
	default:
		if unauthorized {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}
}

func (a *testAPI) setUnauthorized(v bool) {
	a.mu.Lock()
	a.unauthorized = v
	a.mu.Unlock()
}

// lastAuth returns the Authorization header of the latest call to path.
func (a *testAPI) lastAuth(t *testing.T, path string) string {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()

	calls := a.auth[path]
	if len(calls) == 0 {
		t.Fatalf("no call to %s recorded", path)
	}
	return calls[len(calls)-1]
}

func newTestInterceptor(t *testing.T, api *testAPI) (*Interceptor, *credential.Store) {
	t.Helper()

	classifier, err := scope.NewClassifier(api.server.URL)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	store := credential.New(tokenstore.NewMemoryStore())
	return New(classifier, store), store
}

func newTestHost(t *testing.T, api *testAPI, responseType string) (*Host, *credential.Store) {
	t.Helper()

	i, store := newTestInterceptor(t, api)
	client := api.server.Client()
	host := NewHost(
		fetch.New(api.origin, client),
		func(ctx context.Context) xhr.Request {
			call := xhr.New(ctx, api.origin, client)
			call.ResponseType = responseType
			return call
		},
	)
	if !host.Install(i) {
		t.Fatal("Install() = false on fresh host")
	}
	return host, store
}

// doFetch issues a call through the host and drains the response.
func doFetch(t *testing.T, host *Host, target fetch.Target, init *fetch.Init) (int, string) {
	t.Helper()

	resp, err := host.Fetch(context.Background(), target, init)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body strings.Builder
	if _, err := io.Copy(&body, resp.Body); err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return resp.StatusCode, body.String()
}

// doXHR opens and sends a call through the host and waits for completion.
func doXHR(t *testing.T, host *Host, method, rawURL string, headers map[string]string) xhr.Request {
	t.Helper()

	call := host.NewXHR(context.Background())
	if err := call.Open(method, rawURL); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	for name, value := range headers {
		if err := call.SetRequestHeader(name, value); err != nil {
			t.Fatalf("SetRequestHeader() error = %v", err)
		}
	}
	if err := call.Send(nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case <-call.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call did not complete")
	}
	if err := call.Err(); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	return call
}
