package tokenstore

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by backends that cannot persist or remove tokens.
var ErrReadOnly = errors.New("token storage is read-only")

// TokenStore reads, writes and removes a single token in persistent storage.
type TokenStore interface {
	// Read returns the stored token. Returns error if token is missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the token to storage, replacing any previous value. Returns
	// error if storage backend is read-only or if write operation fails.
	Write(ctx context.Context, token string) error

	// Delete removes the stored token. Deleting a missing token is not an error.
	Delete(ctx context.Context) error
}
