// Package credential owns the process-wide bearer credential.
//
// Store is the only component allowed to read or write the credential. Every
// operation is fail-soft: backend failures are logged at debug level and
// degrade to "no credential" instead of reaching the caller.
package credential

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/florianilch/authshim/internal/tokenstore"
)

// StorageKey names the single persisted key/value pair holding the credential.
const StorageKey = "auth_token"

// ErrNoCredential is returned by Token when no credential is stored.
var ErrNoCredential = errors.New("no credential stored")

// Store wraps a tokenstore.TokenStore with the fail-soft get/set/clear contract.
type Store struct {
	backend tokenstore.TokenStore
}

// Compile-time check to ensure Store implements oauth2.TokenSource
var _ oauth2.TokenSource = (*Store)(nil)

// New creates a Store over the given backend.
func New(backend tokenstore.TokenStore) *Store {
	return &Store{backend: backend}
}

// Get returns the stored credential, or "" if none is stored or the backend fails.
func (s *Store) Get(ctx context.Context) string {
	token, err := s.backend.Read(ctx)
	if err != nil {
		slog.DebugContext(ctx, "credential unavailable", "error", err)
		return ""
	}
	return token
}

// Set stores token, replacing any previous credential. Empty tokens are ignored.
func (s *Store) Set(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.backend.Write(ctx, token); err != nil {
		slog.DebugContext(ctx, "failed to persist credential", "error", err)
		return
	}
	slog.DebugContext(ctx, "credential stored")
}

// Clear removes the stored credential.
func (s *Store) Clear(ctx context.Context) {
	if err := s.backend.Delete(ctx); err != nil {
		slog.DebugContext(ctx, "failed to clear credential", "error", err)
		return
	}
	slog.DebugContext(ctx, "credential cleared")
}

// Token returns the stored credential as a Bearer token.
func (s *Store) Token() (*oauth2.Token, error) {
	// oauth2.TokenSource.Token() has no context parameter (legacy interface)
	token := s.Get(context.Background())
	if token == "" {
		return nil, ErrNoCredential
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
