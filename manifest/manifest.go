// Package manifest maintains the per tenant/persona record of ingested
// documents. The manifest is stored as one JSON blob per (tenant, persona)
// pair; updates are read-modify-write cycles serialized per key so
// concurrent batches never clobber each other.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lanewise/ingest/blob"
)

// Entry describes one ingested file as recorded in the manifest.
type Entry struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Route       string    `json:"route"`
	Size        int64     `json:"size"`
	RowCount    int       `json:"row_count,omitempty"`
	TextChars   int       `json:"text_chars,omitempty"`
	ArtifactKey string    `json:"artifact_key,omitempty"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Manifest is the full record for one tenant/persona pair.
type Manifest struct {
	Tenant    string    `json:"tenant"`
	Persona   string    `json:"persona"`
	Files     []Entry   `json:"files"`
	TotalRows int       `json:"total_rows"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upsert replaces the entry with the same name or appends a new one,
// keeping the file list sorted by name. TotalRows is recomputed.
func (m *Manifest) Upsert(e Entry) {
	for i := range m.Files {
		if m.Files[i].Name == e.Name {
			m.Files[i] = e
			m.recompute()
			return
		}
	}
	m.Files = append(m.Files, e)
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Name < m.Files[j].Name })
	m.recompute()
}

func (m *Manifest) recompute() {
	total := 0
	for _, f := range m.Files {
		total += f.RowCount
	}
	m.TotalRows = total
}

// Store persists manifests in a blob.Store, one key per tenant/persona.
type Store struct {
	blobs blob.Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a manifest store over blobs.
func NewStore(blobs blob.Store) *Store {
	return &Store{
		blobs: blobs,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

func key(tenant, persona string) string {
	return fmt.Sprintf("manifests/%s/%s.json", tenant, persona)
}

func (s *Store) lock(k string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

// Load returns the manifest for the pair, or an empty manifest when none
// has been written yet.
func (s *Store) Load(ctx context.Context, tenant, persona string) (*Manifest, error) {
	data, err := s.blobs.Read(ctx, key(tenant, persona))
	if errors.Is(err, blob.ErrNotFound) {
		return &Manifest{Tenant: tenant, Persona: persona}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: load %s/%s: %w", tenant, persona, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %s/%s: %w", tenant, persona, err)
	}
	return &m, nil
}

// Update runs fn against the current manifest and persists the result.
// Cycles for the same pair are serialized; a failing fn leaves the stored
// manifest untouched.
func (s *Store) Update(ctx context.Context, tenant, persona string, fn func(*Manifest) error) (*Manifest, error) {
	k := key(tenant, persona)
	l := s.lock(k)
	l.Lock()
	defer l.Unlock()

	m, err := s.Load(ctx, tenant, persona)
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	m.UpdatedAt = s.now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: encode %s/%s: %w", tenant, persona, err)
	}
	if _, err := s.blobs.Save(ctx, k, data, "application/json"); err != nil {
		return nil, fmt.Errorf("manifest: save %s/%s: %w", tenant, persona, err)
	}
	return m, nil
}
