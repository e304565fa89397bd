// Package store holds the authoritative in-memory instrument catalog. For
// every instrument it keeps two snapshots: current, which the simulator
// mutates, and published, the last state reflected in an emitted delta.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/blotterfeed/blotterfeed/internal/models"
)

var (
	// ErrNotFound is returned for lookups of unknown instrument ids.
	ErrNotFound = errors.New("instrument not found")
	// ErrAlreadyExists is returned when inserting a duplicate id.
	ErrAlreadyExists = errors.New("instrument already exists")
)

type entry struct {
	current   *models.Instrument
	published *models.Instrument
}

// Store is safe for concurrent use. All snapshots handed out are deep copies;
// callers never receive pointers into the catalog.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Insert adds a new instrument. The published snapshot is initialized to
// equal the current state.
func (s *Store) Insert(in *models.Instrument) error {
	_, err := s.InsertReturningExisting(in)
	return err
}

// InsertReturningExisting adds a new instrument and returns copies of the
// catalog as it stood immediately before the insert, ordered by id. Listing
// and inserting share one lock so concurrent inserts always observe each
// other; callers use the returned set to derive correlation rows.
func (s *Store) InsertReturningExisting(in *models.Instrument) ([]*models.Instrument, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("insert %s: %w", in.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[in.ID]; ok {
		return nil, fmt.Errorf("insert %s: %w", in.ID, ErrAlreadyExists)
	}
	existing := make([]*models.Instrument, 0, len(s.entries))
	for _, e := range s.entries {
		existing = append(existing, e.current.Clone())
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].ID < existing[j].ID })
	s.entries[in.ID] = &entry{current: in.Clone(), published: in.Clone()}
	return existing, nil
}

// Remove deletes an instrument and both its snapshots.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	delete(s.entries, id)
	return nil
}

// Get returns a copy of the current state of one instrument.
func (s *Store) Get(id string) (*models.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return e.current.Clone(), nil
}

// Published returns a copy of the last published snapshot of one instrument.
func (s *Store) Published(id string) (*models.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("published %s: %w", id, ErrNotFound)
	}
	return e.published.Clone(), nil
}

// IDs returns all instrument ids in lexical order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns copies of the current state of every instrument.
func (s *Store) List() []*models.Instrument {
	return s.ListFunc(func(*models.Instrument) bool { return true })
}

// ListFunc returns copies of every instrument the predicate accepts,
// ordered by id.
func (s *Store) ListFunc(keep func(*models.Instrument) bool) []*models.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Instrument, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(e.current) {
			out = append(out, e.current.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByType returns all instruments of one security type.
func (s *Store) ListByType(t models.SecurityType) []*models.Instrument {
	return s.ListFunc(func(in *models.Instrument) bool { return in.SecurityType == t })
}

// ListByCurrency returns all instruments quoted in one currency.
func (s *Store) ListByCurrency(ccy string) []*models.Instrument {
	return s.ListFunc(func(in *models.Instrument) bool { return in.Currency == ccy })
}

// ListByStatus returns all instruments in one trading status.
func (s *Store) ListByStatus(st models.Status) []*models.Instrument {
	return s.ListFunc(func(in *models.Instrument) bool { return in.Status == st })
}

// ListByRating returns all instruments carrying one rating.
func (s *Store) ListByRating(r string) []*models.Instrument {
	return s.ListFunc(func(in *models.Instrument) bool { return in.Rating == r })
}

// Count returns the catalog size.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Update applies fn to the current state of one instrument under the store
// lock. fn receives the live record and must not retain it. lastUpdate never
// moves backwards: a regressing write is clamped to its previous value.
func (s *Store) Update(id string, fn func(*models.Instrument)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	prev := e.current.LastUpdate
	fn(e.current)
	if e.current.LastUpdate.Before(prev) {
		e.current.LastUpdate = prev
	}
	return nil
}

// Merge assigns a field map into the current state of one instrument. Used by
// the admin surface; values arrive in wire form.
func (s *Store) Merge(id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("merge %s: %w", id, ErrNotFound)
	}
	// Apply against a scratch copy first so a bad field leaves no partial write.
	scratch := e.current.Clone()
	if err := scratch.ApplyFields(fields); err != nil {
		return fmt.Errorf("merge %s: %w", id, err)
	}
	if scratch.LastUpdate.Before(e.current.LastUpdate) {
		scratch.LastUpdate = e.current.LastUpdate
	}
	e.current = scratch
	return nil
}

// Snapshots returns copies of both snapshots of one instrument, current
// first. The pair is taken under one lock so it is never torn.
func (s *Store) Snapshots(id string) (*models.Instrument, *models.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, nil, fmt.Errorf("snapshots %s: %w", id, ErrNotFound)
	}
	return e.current.Clone(), e.published.Clone(), nil
}

// ReplacePublished advances the published snapshot to a deep copy of the
// given state. Called by the delta engine at emission time.
func (s *Store) ReplacePublished(id string, snap *models.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("replace published %s: %w", id, ErrNotFound)
	}
	e.published = snap.Clone()
	return nil
}
