package interceptor

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestTransport(t *testing.T) {
	api := newTestAPI(t)
	i, store := newTestInterceptor(t, api)
	ctx := context.Background()

	client := &http.Client{Transport: &Transport{Base: api.server.Client().Transport, Interceptor: i}}

	get := func(path string, header http.Header) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, api.server.URL+path, nil)
		if err != nil {
			t.Fatalf("failed to create request: %v", err)
		}
		for k, v := range header {
			req.Header[k] = v
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		return resp
	}

	resp, err := client.Post(api.server.URL+"/api/auth/login", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != `{"data":{"auth_token":"abc123"}}` {
		t.Errorf("login body = %q, want full body", body)
	}
	if got := store.Get(ctx); got != "abc123" {
		t.Fatalf("stored token = %q, want %q", got, "abc123")
	}

	callerHeader := http.Header{"X-Test": {"1"}}
	_ = get("/api/widgets", callerHeader).Body.Close()
	if got := api.lastAuth(t, "/api/widgets"); got != "Bearer abc123" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer abc123")
	}
	if callerHeader.Get("Authorization") != "" {
		t.Error("caller header map was mutated")
	}

	_ = get("/api/widgets", http.Header{"Authorization": {"Basic dTpw"}}).Body.Close()
	if got := api.lastAuth(t, "/api/widgets"); got != "Basic dTpw" {
		t.Errorf("Authorization = %q, want caller value", got)
	}

	_ = get("/static/app.js", nil).Body.Close()
	if got := api.lastAuth(t, "/static/app.js"); got != "" {
		t.Errorf("Authorization on out-of-scope call = %q, want empty", got)
	}

	api.setUnauthorized(true)
	_ = get("/api/widgets", nil).Body.Close()
	if got := store.Get(ctx); got != "" {
		t.Errorf("stored token after 401 = %q, want empty", got)
	}
}

func TestTransportWithoutInterceptorPassesThrough(t *testing.T) {
	api := newTestAPI(t)
	client := &http.Client{Transport: &Transport{Base: api.server.Client().Transport}}

	resp, err := client.Get(api.server.URL + "/api/widgets")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if got := api.lastAuth(t, "/api/widgets"); got != "" {
		t.Errorf("Authorization = %q, want empty", got)
	}
}

func TestInstallDefaultTransport(t *testing.T) {
	api := newTestAPI(t)
	i, store := newTestInterceptor(t, api)
	store.Set(context.Background(), "abc123")

	original := http.DefaultTransport
	t.Cleanup(func() { http.DefaultTransport = original })

	if !i.InstallDefaultTransport() {
		t.Fatal("InstallDefaultTransport() = false on first call")
	}
	if i.InstallDefaultTransport() {
		t.Error("InstallDefaultTransport() = true on second call, want idempotent")
	}

	resp, err := http.Get(api.server.URL + "/api/widgets")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if got := api.lastAuth(t, "/api/widgets"); got != "Bearer abc123" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer abc123")
	}
}

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestTransportNonCanonicalCallerAuthorization(t *testing.T) {
	api := newTestAPI(t)
	i, store := newTestInterceptor(t, api)
	store.Set(context.Background(), "abc123")

	var sent http.Header
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		sent = req.Header.Clone()
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
	})
	client := &http.Client{Transport: &Transport{Base: base, Interceptor: i}}

	req, err := http.NewRequest(http.MethodGet, api.server.URL+"/api/widgets", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header["authorization"] = []string{"Basic dTpw"}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if got := sent.Values("Authorization"); len(got) != 0 {
		t.Errorf("injected Authorization = %q next to caller header", got)
	}
	if got := sent["authorization"]; len(got) != 1 || got[0] != "Basic dTpw" {
		t.Errorf("caller authorization = %q, want %q", got, "Basic dTpw")
	}
}
