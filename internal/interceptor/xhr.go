package interceptor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/florianilch/authshim/internal/extractor"
	"github.com/florianilch/authshim/internal/xhr"
)

// WrapXHR returns an xhr.Factory whose calls are classified at Open,
// authenticated at Send and inspected on load.
func (i *Interceptor) WrapXHR(next xhr.Factory) xhr.Factory {
	return func(ctx context.Context) xhr.Request {
		return &interceptedCall{
			Request:     next(ctx),
			interceptor: i,
			ctx:         ctx,
		}
	}
}

// interceptedCall records the classification verdict on the call instance.
type interceptedCall struct {
	xhr.Request

	interceptor *Interceptor
	ctx         context.Context

	mu                sync.Mutex
	protected         bool
	callerCredentials bool
	sentProtected     bool
	listening         bool
}

func (c *interceptedCall) Open(method, rawURL string) error {
	protected := c.interceptor.classifier.IsProtected(rawURL)

	c.mu.Lock()
	c.protected = protected
	c.callerCredentials = false
	c.mu.Unlock()

	return c.Request.Open(method, rawURL)
}

func (c *interceptedCall) SetRequestHeader(name, value string) error {
	if err := c.Request.SetRequestHeader(name, value); err != nil {
		return err
	}
	if http.CanonicalHeaderKey(name) == "Authorization" {
		c.mu.Lock()
		c.callerCredentials = true
		c.mu.Unlock()
	}
	return nil
}

func (c *interceptedCall) Send(body io.Reader) error {
	c.mu.Lock()
	protected, callerCredentials := c.protected, c.callerCredentials
	prev := c.sentProtected
	c.sentProtected = protected
	register := !c.listening
	c.listening = true
	c.mu.Unlock()

	if protected && !callerCredentials {
		if value, ok := c.interceptor.authorization(); ok {
			// Rejected headers (call already sent) leave the call unauthenticated.
			_ = c.Request.SetRequestHeader("Authorization", value)
		}
	}

	// One listener per call; it reads the verdict of the accepted send.
	if register {
		c.Request.OnLoad(c.loaded)
	}
	if err := c.Request.Send(body); err != nil {
		c.mu.Lock()
		c.sentProtected = prev
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *interceptedCall) loaded() {
	c.mu.Lock()
	protected := c.sentProtected
	c.mu.Unlock()

	if !protected {
		return
	}

	var path string
	if u, err := url.Parse(c.Request.ResponseURL()); err == nil {
		path = u.EscapedPath()
	}

	c.interceptor.extractor.Observe(c.ctx, extractor.Response{
		Path:   path,
		Status: c.Request.Status(),
		Body:   c.body,
	})
}

// body prefers the already parsed response and falls back to the raw text.
func (c *interceptedCall) body() ([]byte, error) {
	switch v := c.Request.Response().(type) {
	case nil, string:
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		if data, err := json.Marshal(v); err == nil {
			return data, nil
		}
	}
	return []byte(c.Request.ResponseText()), nil
}
