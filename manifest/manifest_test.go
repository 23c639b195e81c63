package manifest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lanewise/ingest/blob"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	fs, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(fs)
}

func TestLoad_Empty(t *testing.T) {
	// WHAT: Loading a never-written pair yields an empty manifest.
	// WHY: First ingestion for a tenant must not special-case bootstrap.
	s := newStore(t)
	m, err := s.Load(context.Background(), "acme", "ops")
	if err != nil {
		t.Fatal(err)
	}
	if m.Tenant != "acme" || m.Persona != "ops" || len(m.Files) != 0 {
		t.Errorf("manifest = %+v, want empty", m)
	}
}

func TestUpdate_RoundTrip(t *testing.T) {
	// WHAT: An update persists and survives a reload.
	// WHY: The manifest is the durable record of what was ingested.
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Update(ctx, "acme", "ops", func(m *Manifest) error {
		m.Upsert(Entry{Name: "orders.xlsx", Type: "spreadsheet", RowCount: 42, IngestedAt: time.Now()})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	m, err := s.Load(ctx, "acme", "ops")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Files) != 1 || m.Files[0].Name != "orders.xlsx" {
		t.Fatalf("files = %+v", m.Files)
	}
	if m.TotalRows != 42 {
		t.Errorf("total rows = %d, want 42", m.TotalRows)
	}
	if m.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestUpsert_ReplacesByName(t *testing.T) {
	// WHAT: Re-ingesting a file replaces its entry and recomputes totals.
	// WHY: The manifest tracks current state, not ingestion history.
	var m Manifest
	m.Upsert(Entry{Name: "a.csv", RowCount: 10})
	m.Upsert(Entry{Name: "b.csv", RowCount: 5})
	m.Upsert(Entry{Name: "a.csv", RowCount: 20})

	if len(m.Files) != 2 {
		t.Fatalf("files = %+v, want 2", m.Files)
	}
	if m.TotalRows != 25 {
		t.Errorf("total rows = %d, want 25", m.TotalRows)
	}
	if m.Files[0].Name != "a.csv" || m.Files[1].Name != "b.csv" {
		t.Errorf("files not sorted by name: %+v", m.Files)
	}
}

func TestUpdate_FailedFnLeavesStoreUntouched(t *testing.T) {
	// WHAT: A failing update function writes nothing.
	// WHY: Aborted computations must never half-update the record.
	s := newStore(t)
	ctx := context.Background()

	s.Update(ctx, "acme", "ops", func(m *Manifest) error {
		m.Upsert(Entry{Name: "keep.csv", RowCount: 1})
		return nil
	})

	sentinel := errors.New("boom")
	_, err := s.Update(ctx, "acme", "ops", func(m *Manifest) error {
		m.Upsert(Entry{Name: "discard.csv", RowCount: 99})
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}

	m, _ := s.Load(ctx, "acme", "ops")
	if len(m.Files) != 1 || m.Files[0].Name != "keep.csv" {
		t.Errorf("files = %+v, want only keep.csv", m.Files)
	}
}

func TestUpdate_ConcurrentSerialized(t *testing.T) {
	// WHAT: Concurrent updates to one pair all land; none is lost.
	// WHY: The per-key mutex serializes read-modify-write cycles.
	s := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "acme", "ops", func(m *Manifest) error {
				m.Upsert(Entry{Name: fmt.Sprintf("file-%02d.csv", i), RowCount: 1})
				return nil
			})
			if err != nil {
				t.Errorf("update %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	m, err := s.Load(ctx, "acme", "ops")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Files) != 20 {
		t.Errorf("files = %d, want 20", len(m.Files))
	}
	if m.TotalRows != 20 {
		t.Errorf("total rows = %d, want 20", m.TotalRows)
	}
}

func TestUpdate_PairsIndependent(t *testing.T) {
	// WHAT: Different tenant/persona pairs keep separate manifests.
	// WHY: Tenant isolation is the whole point of the key scheme.
	s := newStore(t)
	ctx := context.Background()

	s.Update(ctx, "acme", "ops", func(m *Manifest) error {
		m.Upsert(Entry{Name: "a.csv"})
		return nil
	})
	s.Update(ctx, "globex", "ops", func(m *Manifest) error {
		m.Upsert(Entry{Name: "b.csv"})
		return nil
	})

	ma, _ := s.Load(ctx, "acme", "ops")
	mg, _ := s.Load(ctx, "globex", "ops")
	if len(ma.Files) != 1 || ma.Files[0].Name != "a.csv" {
		t.Errorf("acme files = %+v", ma.Files)
	}
	if len(mg.Files) != 1 || mg.Files[0].Name != "b.csv" {
		t.Errorf("globex files = %+v", mg.Files)
	}
}
