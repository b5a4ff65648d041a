// Package xhr models the two-phase request primitive: a call object that is
// opened with a method and URL, optionally given headers, then sent, and that
// reports completion through load listeners.
package xhr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
)

// ErrInvalidState is returned when a method is called in the wrong phase,
// e.g. setting a header on a call that was already sent.
var ErrInvalidState = errors.New("xhr: invalid state")

// ResponseTypeJSON makes Response return the body parsed as JSON.
const ResponseTypeJSON = "json"

// Request is a two-phase call.
type Request interface {
	Open(method, rawURL string) error
	SetRequestHeader(name, value string) error
	// Send starts the call and returns without waiting for completion.
	Send(body io.Reader) error
	// OnLoad registers a listener run once when a response has been received.
	OnLoad(listener func())
	// Done is closed once the call has completed, failed or been aborted.
	Done() <-chan struct{}
	// Err returns the transport error of a failed call.
	Err() error

	Status() int
	ResponseURL() string
	// Response returns the parsed body when the call requested one, else the text.
	Response() any
	ResponseText() string
}

// Factory creates a fresh call bound to ctx.
type Factory func(ctx context.Context) Request

// State is the phase of a Call.
type State int

const (
	Unsent State = iota
	Opened
	Sent
	Done
)

// Call is a Request backed by an http.Client.
type Call struct {
	// ResponseType selects how Response exposes the body ("" or ResponseTypeJSON).
	ResponseType string

	id     uuid.UUID
	client *http.Client
	origin *url.URL
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	state       State
	method      string
	target      *url.URL
	header      http.Header
	listeners   []func()
	status      int
	responseURL string
	text        string
	response    any
	err         error
}

// Compile-time check to ensure Call implements Request
var _ Request = (*Call)(nil)

// New creates a Call issuing its request with client and resolving relative
// URLs against origin.
func New(ctx context.Context, origin *url.URL, client *http.Client) *Call {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Call{
		id:     uuid.New(),
		client: client,
		origin: origin,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// NewFactory returns a Factory producing Calls for origin and client.
func NewFactory(origin *url.URL, client *http.Client) Factory {
	return func(ctx context.Context) Request {
		return New(ctx, origin, client)
	}
}

// ID identifies the call in logs.
func (c *Call) ID() uuid.UUID {
	return c.id
}

// Open sets the method and target. The call must not have been sent.
func (c *Call) Open(method, rawURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Sent || c.state == Done {
		return ErrInvalidState
	}
	if method == "" {
		return errors.New("xhr: empty method")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("xhr: invalid URL: %w", err)
	}
	if !u.IsAbs() {
		if c.origin == nil {
			return fmt.Errorf("xhr: relative URL %q without origin", rawURL)
		}
		u = c.origin.ResolveReference(u)
	}

	c.method = method
	c.target = u
	c.header = make(http.Header)
	c.state = Opened
	return nil
}

// SetRequestHeader adds a request header. Repeated names are combined.
func (c *Call) SetRequestHeader(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Opened {
		return ErrInvalidState
	}
	if name == "" {
		return errors.New("xhr: empty header name")
	}

	c.header.Add(name, value)
	return nil
}

// OnLoad registers a listener. Listeners run once, on the goroutine that
// completed the call.
func (c *Call) OnLoad(listener func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Send starts the call in the background.
func (c *Call) Send(body io.Reader) error {
	c.mu.Lock()
	if c.state != Opened {
		c.mu.Unlock()
		return ErrInvalidState
	}

	req, err := http.NewRequestWithContext(c.ctx, c.method, c.target.String(), body)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("xhr: building request: %w", err)
	}
	req.Header = c.header.Clone()
	c.state = Sent
	c.mu.Unlock()

	go c.run(req)
	return nil
}

func (c *Call) run(req *http.Request) {
	defer close(c.done)
	defer c.cancel()

	resp, err := c.client.Do(req)
	if err != nil {
		c.fail(err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.fail(err)
		return
	}

	c.mu.Lock()
	c.state = Done
	c.status = resp.StatusCode
	c.responseURL = resp.Request.URL.String()
	c.text = string(data)
	if c.ResponseType == ResponseTypeJSON {
		var parsed any
		if err := json.Unmarshal(data, &parsed); err == nil {
			c.response = parsed
		}
	}
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	slog.DebugContext(c.ctx, "call completed", "call_id", c.id, "status", resp.StatusCode)

	for _, listener := range listeners {
		listener()
	}
}

// fail completes the call without a response. Load listeners do not run.
func (c *Call) fail(err error) {
	c.mu.Lock()
	c.state = Done
	c.err = err
	c.listeners = nil
	c.mu.Unlock()

	slog.DebugContext(c.ctx, "call failed", "call_id", c.id, "error", err)
}

// Abort cancels a call in flight.
func (c *Call) Abort() {
	c.cancel()
}

// Done is closed once the call has completed, failed or been aborted.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Err returns the transport error of a failed call.
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// State returns the phase of the call.
func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Call) Status() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Call) ResponseURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseURL
}

func (c *Call) Response() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ResponseType == ResponseTypeJSON {
		return c.response
	}
	if c.state != Done {
		return nil
	}
	return c.text
}

func (c *Call) ResponseText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}
