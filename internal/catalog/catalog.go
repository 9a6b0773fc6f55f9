// Package catalog is the read-only card catalog collaborator. The combat
// core stores only card ids in piles; the catalog resolves them to
// display metadata.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrNotFound indicates the card does not exist in the catalog.
var ErrNotFound = errors.New("catalog: card not found")

// Card is the display metadata of one card.
type Card struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// Catalog looks up cards by id.
type Catalog interface {
	Card(ctx context.Context, id string) (Card, error)
	// Cards resolves a batch of ids, preserving order. Unknown ids
	// resolve to a stub carrying only the id, so a stale catalog never
	// hides a player's hand.
	Cards(ctx context.Context, ids []string) ([]Card, error)
}

// MemoryCatalog is an in-memory Catalog for tests and single-process
// setups.
type MemoryCatalog struct {
	mu    sync.RWMutex
	cards map[string]Card
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{cards: make(map[string]Card)}
}

// Put inserts or replaces a card.
func (m *MemoryCatalog) Put(card Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[card.ID] = card
}

// Card implements Catalog.
func (m *MemoryCatalog) Card(ctx context.Context, id string) (Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.cards[id]
	if !ok {
		return Card{}, ErrNotFound
	}
	return card, nil
}

// LoadFile reads a JSON array of cards into a new catalog.
func LoadFile(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var cards []Card
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	m := NewMemoryCatalog()
	for _, card := range cards {
		if card.ID == "" {
			return nil, fmt.Errorf("catalog file contains a card without an id")
		}
		m.Put(card)
	}
	return m, nil
}

// Cards implements Catalog.
func (m *MemoryCatalog) Cards(ctx context.Context, ids []string) ([]Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Card, 0, len(ids))
	for _, id := range ids {
		if card, ok := m.cards[id]; ok {
			out = append(out, card)
		} else {
			out = append(out, Card{ID: id, Name: id})
		}
	}
	return out, nil
}
