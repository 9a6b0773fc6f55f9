// Package sheets is the read-only client for the character sheet store.
// The sheet store remains the source of truth for a player's HP and deck
// composition; the combat core only reads it and mirrors a public HP
// snapshot onto combatant records for display.
package sheets

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound indicates the character sheet does not exist.
var ErrNotFound = errors.New("sheets: character not found")

// CharacterSheet is the slice of a character sheet the combat core reads.
type CharacterSheet struct {
	ID         string
	CampaignID string
	PlayerID   string
	Name       string
	HPMax      int
	HPCurrent  int
	// Deck maps card id to quantity. Nil or empty means the character
	// has no combat deck.
	Deck map[string]int
}

// HasDeck reports whether the character brings a combat deck.
func (c CharacterSheet) HasDeck() bool {
	return len(c.Deck) > 0
}

// Store reads character sheets.
type Store interface {
	// Character returns one sheet by id.
	Character(ctx context.Context, id string) (CharacterSheet, error)
	// ByCampaign returns all player-owned sheets of a campaign, ordered
	// by character id for deterministic iteration.
	ByCampaign(ctx context.Context, campaignID string) ([]CharacterSheet, error)
}

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	mu     sync.RWMutex
	sheets map[string]CharacterSheet
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sheets: make(map[string]CharacterSheet)}
}

// Put inserts or replaces a sheet.
func (m *MemoryStore) Put(sheet CharacterSheet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet.ID] = sheet
}

// Character implements Store.
func (m *MemoryStore) Character(ctx context.Context, id string) (CharacterSheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sheet, ok := m.sheets[id]
	if !ok {
		return CharacterSheet{}, ErrNotFound
	}
	return sheet, nil
}

// ByCampaign implements Store.
func (m *MemoryStore) ByCampaign(ctx context.Context, campaignID string) ([]CharacterSheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CharacterSheet, 0)
	for _, sheet := range m.sheets {
		if sheet.CampaignID == campaignID {
			out = append(out, sheet)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
