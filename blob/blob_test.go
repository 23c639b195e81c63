package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/lanewise/ingest/dbopen"
)

// stores returns one of each backend for table-driven backend tests.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sq, err := NewSQLiteDB(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{"fs": fs, "sqlite": sq}
}

func TestStore_RoundTrip(t *testing.T) {
	// WHAT: Save/Read/Exists/Remove behave identically on both backends.
	// WHY: The service must be able to swap backends by config alone.
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("payload bytes")
			loc, err := s.Save(ctx, "tenants/acme/a.json", data, "application/json")
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if loc == "" {
				t.Error("empty locator")
			}

			got, err := s.Read(ctx, "tenants/acme/a.json")
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("read = %q, want %q", got, data)
			}

			ok, err := s.Exists(ctx, "tenants/acme/a.json")
			if err != nil || !ok {
				t.Errorf("exists = %v, %v; want true", ok, err)
			}

			if err := s.Remove(ctx, "tenants/acme/a.json"); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if _, err := s.Read(ctx, "tenants/acme/a.json"); !errors.Is(err, ErrNotFound) {
				t.Errorf("read after remove = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	// WHAT: Saving the same key twice keeps the latest bytes.
	// WHY: Re-ingesting a file must replace its artifacts.
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Save(ctx, "k", []byte("old"), "")
			if _, err := s.Save(ctx, "k", []byte("new"), ""); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.Read(ctx, "k")
			if err != nil || string(got) != "new" {
				t.Errorf("read = %q, %v; want new", got, err)
			}
		})
	}
}

func TestStore_RemoveMissing(t *testing.T) {
	// WHAT: Removing an absent key succeeds.
	// WHY: Cleanup paths should be idempotent.
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Remove(ctx, "never/written"); err != nil {
				t.Errorf("remove missing = %v, want nil", err)
			}
		})
	}
}

func TestStore_ReadMissing(t *testing.T) {
	// WHAT: Reading an absent key returns ErrNotFound.
	// WHY: Callers branch on the sentinel, not on backend error strings.
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Read(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("read = %v, want ErrNotFound", err)
			}
			ok, err := s.Exists(ctx, "missing")
			if err != nil || ok {
				t.Errorf("exists = %v, %v; want false", ok, err)
			}
		})
	}
}

func TestStore_RejectsBadKeys(t *testing.T) {
	// WHAT: Traversal and absolute keys are rejected on every operation.
	// WHY: Keys come from tenant-supplied filenames.
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "/abs", "a/../b", "a//b", ".."} {
				if _, err := s.Save(ctx, key, []byte("x"), ""); err == nil {
					t.Errorf("save(%q) succeeded, want error", key)
				}
				if _, err := s.Read(ctx, key); err == nil || errors.Is(err, ErrNotFound) {
					t.Errorf("read(%q) = %v, want validation error", key, err)
				}
			}
		})
	}
}
