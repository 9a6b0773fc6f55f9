// Package postgres provides a PostgreSQL-backed combat storage
// implementation on a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/questkeeper/encounter-server-go/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS encounters (
  id          TEXT PRIMARY KEY,
  campaign_id TEXT NOT NULL,
  status      TEXT NOT NULL,
  round       INTEGER NOT NULL,
  turn_index  INTEGER NOT NULL,
  started_at  TIMESTAMPTZ NOT NULL,
  ended_at    TIMESTAMPTZ,
  version     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_encounters_campaign ON encounters(campaign_id);

CREATE TABLE IF NOT EXISTS combatants (
  id              TEXT NOT NULL,
  encounter_id    TEXT NOT NULL,
  kind            TEXT NOT NULL,
  character_id    TEXT NOT NULL,
  name            TEXT NOT NULL,
  hp_current      INTEGER NOT NULL,
  hp_max          INTEGER NOT NULL,
  initiative      INTEGER NOT NULL,
  order_index     INTEGER NOT NULL,
  hidden          BOOLEAN NOT NULL,
  defeated        BOOLEAN NOT NULL,
  statuses        JSONB NOT NULL,
  death_successes INTEGER NOT NULL,
  death_failures  INTEGER NOT NULL,
  PRIMARY KEY (encounter_id, id)
);

CREATE TABLE IF NOT EXISTS decks (
  id           TEXT PRIMARY KEY,
  character_id TEXT NOT NULL,
  encounter_id TEXT NOT NULL,
  hand_limit   INTEGER NOT NULL,
  draw_pile    JSONB NOT NULL,
  hand         JSONB NOT NULL,
  discard      JSONB NOT NULL,
  version      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decks_encounter ON decks(encounter_id);

CREATE TABLE IF NOT EXISTS pile_actions (
  seq       BIGSERIAL PRIMARY KEY,
  id        TEXT NOT NULL,
  deck_id   TEXT NOT NULL,
  kind      TEXT NOT NULL,
  drawn_ids JSONB NOT NULL,
  card_id   TEXT NOT NULL,
  timestamp TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pile_actions_deck ON pile_actions(deck_id);
`

// Store persists combat state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL and creates the schema.
func Open(ctx context.Context, url string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// SaveEncounter upserts one encounter record. A write at a version not
// newer than the stored one fails with storage.ErrVersionConflict.
func (s *Store) SaveEncounter(ctx context.Context, rec storage.EncounterRecord) error {
	var endedAt *time.Time
	if rec.EndedAt != nil {
		t := rec.EndedAt.UTC()
		endedAt = &t
	}
	tag, err := s.pool.Exec(
		ctx,
		`INSERT INTO encounters (id, campaign_id, status, round, turn_index, started_at, ended_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status,
		   round = excluded.round,
		   turn_index = excluded.turn_index,
		   ended_at = excluded.ended_at,
		   version = excluded.version
		 WHERE excluded.version > encounters.version`,
		rec.ID, rec.CampaignID, rec.Status, rec.Round, rec.TurnIndex,
		rec.StartedAt.UTC(), endedAt, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("save encounter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

// Encounter reads one encounter record.
func (s *Store) Encounter(ctx context.Context, id string) (storage.EncounterRecord, error) {
	var (
		rec     storage.EncounterRecord
		endedAt *time.Time
	)
	err := s.pool.QueryRow(
		ctx,
		`SELECT id, campaign_id, status, round, turn_index, started_at, ended_at, version
		 FROM encounters WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.CampaignID, &rec.Status, &rec.Round, &rec.TurnIndex, &rec.StartedAt, &endedAt, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.EncounterRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.EncounterRecord{}, fmt.Errorf("read encounter: %w", err)
	}
	rec.EndedAt = endedAt
	return rec, nil
}

// SaveCombatants replaces the encounter's combatant rows.
func (s *Store) SaveCombatants(ctx context.Context, encounterID string, combatants []storage.CombatantRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save combatants: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM combatants WHERE encounter_id = $1`, encounterID); err != nil {
		return fmt.Errorf("save combatants: %w", err)
	}
	for _, c := range combatants {
		statuses, marshalErr := json.Marshal(c.Statuses)
		if marshalErr != nil {
			return fmt.Errorf("marshal statuses: %w", marshalErr)
		}
		_, err := tx.Exec(
			ctx,
			`INSERT INTO combatants (
			   id, encounter_id, kind, character_id, name,
			   hp_current, hp_max, initiative, order_index,
			   hidden, defeated, statuses, death_successes, death_failures
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			c.ID, encounterID, c.Kind, c.CharacterID, c.Name,
			c.HPCurrent, c.HPMax, c.Initiative, c.OrderIndex,
			c.Hidden, c.Defeated, statuses, c.DeathSuccesses, c.DeathFailures,
		)
		if err != nil {
			return fmt.Errorf("save combatants: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("save combatants: %w", err)
	}
	return nil
}

// Combatants reads the encounter's combatants in order-index order.
func (s *Store) Combatants(ctx context.Context, encounterID string) ([]storage.CombatantRecord, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT id, encounter_id, kind, character_id, name,
		        hp_current, hp_max, initiative, order_index,
		        hidden, defeated, statuses, death_successes, death_failures
		 FROM combatants WHERE encounter_id = $1
		 ORDER BY order_index`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("read combatants: %w", err)
	}
	defer rows.Close()

	var out []storage.CombatantRecord
	for rows.Next() {
		var (
			c        storage.CombatantRecord
			statuses []byte
		)
		if err := rows.Scan(
			&c.ID, &c.EncounterID, &c.Kind, &c.CharacterID, &c.Name,
			&c.HPCurrent, &c.HPMax, &c.Initiative, &c.OrderIndex,
			&c.Hidden, &c.Defeated, &statuses, &c.DeathSuccesses, &c.DeathFailures,
		); err != nil {
			return nil, fmt.Errorf("scan combatant: %w", err)
		}
		if err := json.Unmarshal(statuses, &c.Statuses); err != nil {
			return nil, fmt.Errorf("unmarshal statuses: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read combatants: %w", err)
	}
	return out, nil
}

// SaveDeck upserts one deck record, guarded by version.
func (s *Store) SaveDeck(ctx context.Context, rec storage.DeckRecord) error {
	drawPile, err := json.Marshal(rec.DrawPile)
	if err != nil {
		return fmt.Errorf("marshal draw pile: %w", err)
	}
	hand, err := json.Marshal(rec.Hand)
	if err != nil {
		return fmt.Errorf("marshal hand: %w", err)
	}
	discard, err := json.Marshal(rec.Discard)
	if err != nil {
		return fmt.Errorf("marshal discard: %w", err)
	}
	tag, err := s.pool.Exec(
		ctx,
		`INSERT INTO decks (id, character_id, encounter_id, hand_limit, draw_pile, hand, discard, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   draw_pile = excluded.draw_pile,
		   hand = excluded.hand,
		   discard = excluded.discard,
		   version = excluded.version
		 WHERE excluded.version > decks.version`,
		rec.ID, rec.CharacterID, rec.EncounterID, rec.HandLimit,
		drawPile, hand, discard, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("save deck: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

// Deck reads one deck record.
func (s *Store) Deck(ctx context.Context, id string) (storage.DeckRecord, error) {
	var (
		rec      storage.DeckRecord
		drawPile []byte
		hand     []byte
		discard  []byte
	)
	err := s.pool.QueryRow(
		ctx,
		`SELECT id, character_id, encounter_id, hand_limit, draw_pile, hand, discard, version
		 FROM decks WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.CharacterID, &rec.EncounterID, &rec.HandLimit, &drawPile, &hand, &discard, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.DeckRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.DeckRecord{}, fmt.Errorf("read deck: %w", err)
	}
	if err := json.Unmarshal(drawPile, &rec.DrawPile); err != nil {
		return storage.DeckRecord{}, fmt.Errorf("unmarshal draw pile: %w", err)
	}
	if err := json.Unmarshal(hand, &rec.Hand); err != nil {
		return storage.DeckRecord{}, fmt.Errorf("unmarshal hand: %w", err)
	}
	if err := json.Unmarshal(discard, &rec.Discard); err != nil {
		return storage.DeckRecord{}, fmt.Errorf("unmarshal discard: %w", err)
	}
	return rec, nil
}

// AppendPileAction appends one action-log row.
func (s *Store) AppendPileAction(ctx context.Context, rec storage.PileActionRecord) error {
	drawnIDs, err := json.Marshal(rec.DrawnIDs)
	if err != nil {
		return fmt.Errorf("marshal drawn ids: %w", err)
	}
	_, err = s.pool.Exec(
		ctx,
		`INSERT INTO pile_actions (id, deck_id, kind, drawn_ids, card_id, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.DeckID, rec.Kind, drawnIDs, rec.CardID, rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append pile action: %w", err)
	}
	return nil
}

// RemovePileAction deletes one action-log row after an undo.
func (s *Store) RemovePileAction(ctx context.Context, deckID, actionID string) error {
	tag, err := s.pool.Exec(
		ctx,
		`DELETE FROM pile_actions WHERE deck_id = $1 AND id = $2`,
		deckID, actionID,
	)
	if err != nil {
		return fmt.Errorf("remove pile action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PileActions reads the deck's action log in append order.
func (s *Store) PileActions(ctx context.Context, deckID string) ([]storage.PileActionRecord, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT id, deck_id, kind, drawn_ids, card_id, timestamp
		 FROM pile_actions WHERE deck_id = $1
		 ORDER BY seq`,
		deckID,
	)
	if err != nil {
		return nil, fmt.Errorf("read pile actions: %w", err)
	}
	defer rows.Close()

	var out []storage.PileActionRecord
	for rows.Next() {
		var (
			rec      storage.PileActionRecord
			drawnIDs []byte
		)
		if err := rows.Scan(&rec.ID, &rec.DeckID, &rec.Kind, &drawnIDs, &rec.CardID, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pile action: %w", err)
		}
		if err := json.Unmarshal(drawnIDs, &rec.DrawnIDs); err != nil {
			return nil, fmt.Errorf("unmarshal drawn ids: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pile actions: %w", err)
	}
	return out, nil
}
