package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// DebugTokenPath serves the credential when the debug surface is enabled.
const DebugTokenPath = "/_authshim/token"

// maxDebugBody bounds PUT bodies on the debug surface.
const maxDebugBody = 64 << 10

// CredentialStore is the fail-soft credential store exposed by the debug surface.
type CredentialStore interface {
	Get(ctx context.Context) string
	Set(ctx context.Context, token string)
	Clear(ctx context.Context)
}

// TokenPayload is the JSON body read and written by the debug surface.
type TokenPayload struct {
	AuthToken string `json:"auth_token"`
}

type debugHandler struct {
	store CredentialStore
}

func (d *debugHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := d.store.Get(ctx)
	slog.DebugContext(ctx, "debug credential read", "present", token != "")

	if token == "" {
		writeJSONError(ctx, w, "no credential stored", http.StatusNotFound)
		return
	}
	writeJSON(ctx, w, TokenPayload{AuthToken: token}, http.StatusOK)
}

func (d *debugHandler) set(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload TokenPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDebugBody)).Decode(&payload); err != nil {
		writeJSONError(ctx, w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	token := strings.TrimSpace(payload.AuthToken)
	if token == "" {
		writeJSONError(ctx, w, "auth_token must not be empty", http.StatusBadRequest)
		return
	}

	d.store.Set(ctx, token)
	slog.DebugContext(ctx, "debug credential written", "present", true)
	w.WriteHeader(http.StatusNoContent)
}

func (d *debugHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d.store.Clear(ctx)
	slog.DebugContext(ctx, "debug credential cleared")
	w.WriteHeader(http.StatusNoContent)
}
