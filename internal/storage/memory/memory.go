// Package memory provides an in-memory storage.Store for tests and
// single-process setups without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/questkeeper/encounter-server-go/internal/storage"
)

// Store keeps all records in process memory.
type Store struct {
	mu          sync.RWMutex
	encounters  map[string]storage.EncounterRecord
	combatants  map[string][]storage.CombatantRecord // by encounter id
	decks       map[string]storage.DeckRecord
	pileActions map[string][]storage.PileActionRecord // by deck id
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		encounters:  make(map[string]storage.EncounterRecord),
		combatants:  make(map[string][]storage.CombatantRecord),
		decks:       make(map[string]storage.DeckRecord),
		pileActions: make(map[string][]storage.PileActionRecord),
	}
}

// SaveEncounter implements storage.Store.
func (s *Store) SaveEncounter(ctx context.Context, rec storage.EncounterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.encounters[rec.ID]; ok && stored.Version >= rec.Version {
		return storage.ErrVersionConflict
	}
	s.encounters[rec.ID] = rec
	return nil
}

// Encounter implements storage.Store.
func (s *Store) Encounter(ctx context.Context, id string) (storage.EncounterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.encounters[id]
	if !ok {
		return storage.EncounterRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

// SaveCombatants implements storage.Store.
func (s *Store) SaveCombatants(ctx context.Context, encounterID string, combatants []storage.CombatantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]storage.CombatantRecord, len(combatants))
	copy(cp, combatants)
	s.combatants[encounterID] = cp
	return nil
}

// Combatants implements storage.Store.
func (s *Store) Combatants(ctx context.Context, encounterID string) ([]storage.CombatantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, ok := s.combatants[encounterID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]storage.CombatantRecord, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

// SaveDeck implements storage.Store.
func (s *Store) SaveDeck(ctx context.Context, rec storage.DeckRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.decks[rec.ID]; ok && stored.Version >= rec.Version {
		return storage.ErrVersionConflict
	}
	s.decks[rec.ID] = rec
	return nil
}

// Deck implements storage.Store.
func (s *Store) Deck(ctx context.Context, id string) (storage.DeckRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.decks[id]
	if !ok {
		return storage.DeckRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

// AppendPileAction implements storage.Store.
func (s *Store) AppendPileAction(ctx context.Context, rec storage.PileActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pileActions[rec.DeckID] = append(s.pileActions[rec.DeckID], rec)
	return nil
}

// RemovePileAction implements storage.Store.
func (s *Store) RemovePileAction(ctx context.Context, deckID, actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions := s.pileActions[deckID]
	for i, a := range actions {
		if a.ID == actionID {
			s.pileActions[deckID] = append(actions[:i], actions[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

// PileActions implements storage.Store.
func (s *Store) PileActions(ctx context.Context, deckID string) ([]storage.PileActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := s.pileActions[deckID]
	out := make([]storage.PileActionRecord, len(actions))
	copy(out, actions)
	return out, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return nil
}
