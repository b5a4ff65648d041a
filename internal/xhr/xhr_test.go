package xhr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *url.URL) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	origin, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	return server, origin
}

func wait(t *testing.T, c *Call) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call did not complete")
	}
}

func TestCallLifecycle(t *testing.T) {
	server, origin := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Seen", r.Header.Get("X-Test"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":1}}`))
	})

	call := New(context.Background(), origin, server.Client())
	call.ResponseType = ResponseTypeJSON

	if err := call.SetRequestHeader("X-Test", "1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetRequestHeader() before Open error = %v, want ErrInvalidState", err)
	}
	if err := call.Open(http.MethodPost, "/api/widgets"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := call.SetRequestHeader("X-Test", "1"); err != nil {
		t.Fatalf("SetRequestHeader() error = %v", err)
	}

	loads := 0
	call.OnLoad(func() { loads++ })

	if err := call.Send(strings.NewReader(`{"name":"w"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := call.SetRequestHeader("X-Late", "1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetRequestHeader() after Send error = %v, want ErrInvalidState", err)
	}
	if err := call.Send(nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Send() error = %v, want ErrInvalidState", err)
	}

	wait(t, call)

	if loads != 1 {
		t.Errorf("load listener ran %d times, want 1", loads)
	}
	if call.State() != Done {
		t.Errorf("State() = %v, want Done", call.State())
	}
	if call.Status() != http.StatusCreated {
		t.Errorf("Status() = %d, want %d", call.Status(), http.StatusCreated)
	}
	if call.ResponseURL() != server.URL+"/api/widgets" {
		t.Errorf("ResponseURL() = %q, want %q", call.ResponseURL(), server.URL+"/api/widgets")
	}
	if call.ResponseText() != `{"data":{"id":1}}` {
		t.Errorf("ResponseText() = %q", call.ResponseText())
	}
	parsed, ok := call.Response().(map[string]any)
	if !ok {
		t.Fatalf("Response() = %T, want map[string]any", call.Response())
	}
	if _, ok := parsed["data"]; !ok {
		t.Errorf("Response() = %v, want data field", parsed)
	}
	if call.Err() != nil {
		t.Errorf("Err() = %v, want nil", call.Err())
	}
}

func TestCallTextResponse(t *testing.T) {
	server, origin := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain"))
	})

	call := New(context.Background(), origin, server.Client())
	if err := call.Open(http.MethodGet, "/health"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if call.Response() != nil {
		t.Errorf("Response() before completion = %v, want nil", call.Response())
	}
	if err := call.Send(nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	wait(t, call)

	if call.Response() != "plain" {
		t.Errorf("Response() = %v, want %q", call.Response(), "plain")
	}
}

func TestCallFailureSkipsLoadListeners(t *testing.T) {
	release := make(chan struct{})
	server, origin := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	call := New(context.Background(), origin, server.Client())
	if err := call.Open(http.MethodGet, "/api/slow"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	loaded := false
	call.OnLoad(func() { loaded = true })
	if err := call.Send(nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	call.Abort()
	wait(t, call)

	if loaded {
		t.Error("load listener ran for aborted call")
	}
	if !errors.Is(call.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", call.Err())
	}
}

func TestCallOpenErrors(t *testing.T) {
	call := New(context.Background(), nil, nil)

	if err := call.Open(http.MethodGet, "/relative"); err == nil {
		t.Error("Open() with relative URL and no origin succeeded, want error")
	}
	if err := call.Open(http.MethodGet, "http://[::1/api"); err == nil {
		t.Error("Open() with malformed URL succeeded, want error")
	}
	if err := call.Open("", "http://example.com/api"); err == nil {
		t.Error("Open() with empty method succeeded, want error")
	}
	if err := call.Send(nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Send() on unopened call error = %v, want ErrInvalidState", err)
	}
}

func TestFactoryCreatesIndependentCalls(t *testing.T) {
	factory := NewFactory(nil, nil)

	first, ok := factory(context.Background()).(*Call)
	if !ok {
		t.Fatal("factory did not return *Call")
	}
	second := factory(context.Background()).(*Call)

	if first.ID() == second.ID() {
		t.Error("calls share an ID")
	}
}
