// Package tokenstore provides persistent storage backends for the bearer credential.
//
// Supports several backends with different durability and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Env: Read-only environment variable access (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - SQLite: Key/value table scoped by API origin, shared by several origins in one file
//   - Memory: In-process storage for tests and ephemeral sessions
//
// Backends report every failure as an error. Callers that must never fail
// (the interceptors) go through credential.Store, which degrades errors to
// "no credential".
package tokenstore
