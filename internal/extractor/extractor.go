// Package extractor inspects completed API responses and captures or
// invalidates the stored credential.
package extractor

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// LoginPath is the path whose successful responses carry a fresh token.
	LoginPath = "/api/auth/login"
	// LogoutPath is the path whose successful responses invalidate the token.
	LogoutPath = "/api/auth/logout"
	// TokenField is the location of the token in a login response body.
	TokenField = "data.auth_token"
)

// Store is the write side of the credential store.
type Store interface {
	Set(ctx context.Context, token string)
	Clear(ctx context.Context)
}

// BodyFunc loads the raw response body. It is only called when the body is needed.
type BodyFunc func() ([]byte, error)

// Response describes a completed call.
type Response struct {
	Path   string
	Status int
	Body   BodyFunc
}

// Extractor applies the login, logout and unauthorized rules to responses.
type Extractor struct {
	store Store
}

// New creates an Extractor writing to store.
func New(store Store) *Extractor {
	return &Extractor{store: store}
}

// Observe evaluates all three rules against resp in order. Failures to load or
// parse the body are swallowed.
func (e *Extractor) Observe(ctx context.Context, resp Response) {
	if matchPath(resp.Path, LoginPath) && isSuccess(resp.Status) {
		if token, ok := loginToken(resp.Body); ok {
			e.store.Set(ctx, token)
			slog.DebugContext(ctx, "captured credential from login response", "path", resp.Path)
		}
	}

	if matchPath(resp.Path, LogoutPath) && isSuccess(resp.Status) {
		e.store.Clear(ctx)
		slog.DebugContext(ctx, "cleared credential after logout", "path", resp.Path)
	}

	if resp.Status == http.StatusUnauthorized {
		e.store.Clear(ctx)
		slog.DebugContext(ctx, "cleared credential after unauthorized response", "path", resp.Path)
	}
}

// loginToken reads TokenField from a JSON body.
func loginToken(load BodyFunc) (string, bool) {
	if load == nil {
		return "", false
	}
	body, err := load()
	if err != nil || !gjson.ValidBytes(body) {
		return "", false
	}

	field := gjson.GetBytes(body, TokenField)
	if field.Type != gjson.String || field.Str == "" {
		return "", false
	}
	return field.Str, true
}

// matchPath reports whether path ends with the segment path target.
func matchPath(path, target string) bool {
	return strings.HasSuffix(path, target)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
