// Package storage defines the persistence port of the combat core. Live
// aggregates are authoritative in memory for a running session; a Store
// is the durable write-through mirror that keeps encounters, combatants,
// deck states and pile-action history for audit after combat ends.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the record does not exist.
var ErrNotFound = errors.New("storage: record not found")

// ErrVersionConflict indicates the stored record is at the same or a newer
// version than the write, meaning another writer got there first.
var ErrVersionConflict = errors.New("storage: version conflict")

// EncounterRecord is the persisted shape of an encounter.
type EncounterRecord struct {
	ID         string
	CampaignID string
	Status     string
	Round      int
	TurnIndex  int
	StartedAt  time.Time
	EndedAt    *time.Time
	Version    uint64
}

// StatusRecord is one persisted status effect.
type StatusRecord struct {
	Label     string `json:"label"`
	Remaining int    `json:"remaining"`
}

// CombatantRecord is the persisted shape of a combatant.
type CombatantRecord struct {
	ID             string
	EncounterID    string
	Kind           string
	CharacterID    string
	Name           string
	HPCurrent      int
	HPMax          int
	Initiative     int
	OrderIndex     int
	Hidden         bool
	Defeated       bool
	Statuses       []StatusRecord
	DeathSuccesses int
	DeathFailures  int
}

// DeckRecord is the persisted shape of one (character, encounter) deck.
type DeckRecord struct {
	ID          string
	CharacterID string
	EncounterID string
	HandLimit   int
	DrawPile    []string
	Hand        []string
	Discard     []string
	Version     uint64
}

// PileActionRecord is one persisted action-log entry.
type PileActionRecord struct {
	ID        string
	DeckID    string
	Kind      string
	DrawnIDs  []string
	CardID    string
	Timestamp time.Time
}

// Store persists combat state. Saves are guarded by the aggregate version:
// a write at a version not newer than the stored one fails with
// ErrVersionConflict, exposing a concurrent writer from another process.
type Store interface {
	SaveEncounter(ctx context.Context, rec EncounterRecord) error
	Encounter(ctx context.Context, id string) (EncounterRecord, error)

	SaveCombatants(ctx context.Context, encounterID string, combatants []CombatantRecord) error
	Combatants(ctx context.Context, encounterID string) ([]CombatantRecord, error)

	SaveDeck(ctx context.Context, rec DeckRecord) error
	Deck(ctx context.Context, id string) (DeckRecord, error)

	AppendPileAction(ctx context.Context, rec PileActionRecord) error
	RemovePileAction(ctx context.Context, deckID, actionID string) error
	PileActions(ctx context.Context, deckID string) ([]PileActionRecord, error)

	Close() error
}
