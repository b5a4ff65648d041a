package tokenstore

import (
	"context"
	"errors"
	"testing"
)

func TestEnvStore(t *testing.T) {
	ctx := context.Background()
	t.Setenv("AUTHSHIM_TEST_TOKEN", "from-env")

	store, err := NewEnvStore("AUTHSHIM_TEST_TOKEN")
	if err != nil {
		t.Fatalf("NewEnvStore() error = %v", err)
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "from-env" {
		t.Errorf("Read() = %q, want %q", got, "from-env")
	}

	if err := store.Write(ctx, "other"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write() error = %v, want ErrReadOnly", err)
	}
	if err := store.Delete(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Delete() error = %v, want ErrReadOnly", err)
	}
}

func TestEnvStoreMissingOrEmpty(t *testing.T) {
	ctx := context.Background()

	if _, err := NewEnvStore(""); err == nil {
		t.Error("NewEnvStore(\"\") succeeded, want error")
	}

	store, err := NewEnvStore("AUTHSHIM_TEST_UNSET_TOKEN")
	if err != nil {
		t.Fatalf("NewEnvStore() error = %v", err)
	}
	if _, err := store.Read(ctx); err == nil {
		t.Error("Read() of unset variable succeeded, want error")
	}

	t.Setenv("AUTHSHIM_TEST_UNSET_TOKEN", "")
	if _, err := store.Read(ctx); err == nil {
		t.Error("Read() of empty variable succeeded, want error")
	}
}
