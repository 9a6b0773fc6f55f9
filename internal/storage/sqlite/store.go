// Package sqlite provides a SQLite-backed combat storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/questkeeper/encounter-server-go/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS encounters (
  id          TEXT PRIMARY KEY,
  campaign_id TEXT NOT NULL,
  status      TEXT NOT NULL,
  round       INTEGER NOT NULL,
  turn_index  INTEGER NOT NULL,
  started_at  INTEGER NOT NULL,
  ended_at    INTEGER,
  version     INTEGER NOT NULL
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
  hidden          INTEGER NOT NULL,
  defeated        INTEGER NOT NULL,
  statuses        TEXT NOT NULL,
  death_successes INTEGER NOT NULL,
  death_failures  INTEGER NOT NULL,
  PRIMARY KEY (encounter_id, id)
);

CREATE TABLE IF NOT EXISTS decks (
  id           TEXT PRIMARY KEY,
  character_id TEXT NOT NULL,
  encounter_id TEXT NOT NULL,
  hand_limit   INTEGER NOT NULL,
  draw_pile    TEXT NOT NULL,
  hand         TEXT NOT NULL,
  discard      TEXT NOT NULL,
  version      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decks_encounter ON decks(encounter_id);

CREATE TABLE IF NOT EXISTS pile_actions (
  id        TEXT NOT NULL,
  deck_id   TEXT NOT NULL,
  kind      TEXT NOT NULL,
  drawn_ids TEXT NOT NULL,
  card_id   TEXT NOT NULL,
  timestamp INTEGER NOT NULL,
  seq       INTEGER PRIMARY KEY AUTOINCREMENT
);
CREATE INDEX IF NOT EXISTS idx_pile_actions_deck ON pile_actions(deck_id);
`

// Store persists combat state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite combat store and creates the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveEncounter upserts one encounter record. A write at a version not
// newer than the stored one fails with storage.ErrVersionConflict.
func (s *Store) SaveEncounter(ctx context.Context, rec storage.EncounterRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var endedAt interface{}
	if rec.EndedAt != nil {
		endedAt = toMillis(*rec.EndedAt)
	}
	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO encounters (id, campaign_id, status, round, turn_index, started_at, ended_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   round = excluded.round,
		   turn_index = excluded.turn_index,
		   ended_at = excluded.ended_at,
		   version = excluded.version
		 WHERE excluded.version > encounters.version`,
		rec.ID, rec.CampaignID, rec.Status, rec.Round, rec.TurnIndex,
		toMillis(rec.StartedAt), endedAt, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("save encounter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save encounter: %w", err)
	}
	if affected == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

// Encounter reads one encounter record.
func (s *Store) Encounter(ctx context.Context, id string) (storage.EncounterRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.EncounterRecord{}, err
	}
	var (
		rec       storage.EncounterRecord
		startedAt int64
		endedAt   sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, campaign_id, status, round, turn_index, started_at, ended_at, version
		 FROM encounters WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.CampaignID, &rec.Status, &rec.Round, &rec.TurnIndex, &startedAt, &endedAt, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.EncounterRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.EncounterRecord{}, fmt.Errorf("read encounter: %w", err)
	}
	rec.StartedAt = fromMillis(startedAt)
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		rec.EndedAt = &t
	}
	return rec, nil
}

// SaveCombatants replaces the encounter's combatant rows.
func (s *Store) SaveCombatants(ctx context.Context, encounterID string, combatants []storage.CombatantRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save combatants: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM combatants WHERE encounter_id = ?`, encounterID); err != nil {
		return fmt.Errorf("save combatants: %w", err)
	}
	for _, c := range combatants {
		statuses, marshalErr := json.Marshal(c.Statuses)
		if marshalErr != nil {
			return fmt.Errorf("marshal statuses: %w", marshalErr)
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO combatants (
			   id, encounter_id, kind, character_id, name,
			   hp_current, hp_max, initiative, order_index,
			   hidden, defeated, statuses, death_successes, death_failures
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, encounterID, c.Kind, c.CharacterID, c.Name,
			c.HPCurrent, c.HPMax, c.Initiative, c.OrderIndex,
			boolInt(c.Hidden), boolInt(c.Defeated), string(statuses),
			c.DeathSuccesses, c.DeathFailures,
		)
		if err != nil {
			return fmt.Errorf("save combatants: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save combatants: %w", err)
	}
	return nil
}

// Combatants reads the encounter's combatants in order-index order.
func (s *Store) Combatants(ctx context.Context, encounterID string) ([]storage.CombatantRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, encounter_id, kind, character_id, name,
		        hp_current, hp_max, initiative, order_index,
		        hidden, defeated, statuses, death_successes, death_failures
		 FROM combatants WHERE encounter_id = ?
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
			hidden   int
			defeated int
			statuses string
		)
		if err := rows.Scan(
			&c.ID, &c.EncounterID, &c.Kind, &c.CharacterID, &c.Name,
			&c.HPCurrent, &c.HPMax, &c.Initiative, &c.OrderIndex,
			&hidden, &defeated, &statuses, &c.DeathSuccesses, &c.DeathFailures,
		); err != nil {
			return nil, fmt.Errorf("scan combatant: %w", err)
		}
		c.Hidden = hidden != 0
		c.Defeated = defeated != 0
		if err := json.Unmarshal([]byte(statuses), &c.Statuses); err != nil {
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
	if err := ctx.Err(); err != nil {
		return err
	}
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
	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO decks (id, character_id, encounter_id, hand_limit, draw_pile, hand, discard, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   draw_pile = excluded.draw_pile,
		   hand = excluded.hand,
		   discard = excluded.discard,
		   version = excluded.version
		 WHERE excluded.version > decks.version`,
		rec.ID, rec.CharacterID, rec.EncounterID, rec.HandLimit,
		string(drawPile), string(hand), string(discard), rec.Version,
	)
	if err != nil {
		return fmt.Errorf("save deck: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save deck: %w", err)
	}
	if affected == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

// Deck reads one deck record.
func (s *Store) Deck(ctx context.Context, id string) (storage.DeckRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.DeckRecord{}, err
	}
	var (
		rec      storage.DeckRecord
		drawPile string
		hand     string
		discard  string
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, character_id, encounter_id, hand_limit, draw_pile, hand, discard, version
		 FROM decks WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.CharacterID, &rec.EncounterID, &rec.HandLimit, &drawPile, &hand, &discard, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DeckRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.DeckRecord{}, fmt.Errorf("read deck: %w", err)
	}
	if err := json.Unmarshal([]byte(drawPile), &rec.DrawPile); err != nil {
		return storage.DeckRecord{}, fmt.Errorf("unmarshal draw pile: %w", err)
	}
	if err := json.Unmarshal([]byte(hand), &rec.Hand); err != nil {
		return storage.DeckRecord{}, fmt.Errorf("unmarshal hand: %w", err)
	}
	if err := json.Unmarshal([]byte(discard), &rec.Discard); err != nil {
		return storage.DeckRecord{}, fmt.Errorf("unmarshal discard: %w", err)
	}
	return rec, nil
}

// AppendPileAction appends one action-log row.
func (s *Store) AppendPileAction(ctx context.Context, rec storage.PileActionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	drawnIDs, err := json.Marshal(rec.DrawnIDs)
	if err != nil {
		return fmt.Errorf("marshal drawn ids: %w", err)
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO pile_actions (id, deck_id, kind, drawn_ids, card_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DeckID, rec.Kind, string(drawnIDs), rec.CardID, toMillis(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append pile action: %w", err)
	}
	return nil
}

// RemovePileAction deletes one action-log row after an undo.
func (s *Store) RemovePileAction(ctx context.Context, deckID, actionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM pile_actions WHERE deck_id = ? AND id = ?`,
		deckID, actionID,
	)
	if err != nil {
		return fmt.Errorf("remove pile action: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove pile action: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PileActions reads the deck's action log in append order.
func (s *Store) PileActions(ctx context.Context, deckID string) ([]storage.PileActionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, deck_id, kind, drawn_ids, card_id, timestamp
		 FROM pile_actions WHERE deck_id = ?
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
			drawnIDs string
			ts       int64
		)
		if err := rows.Scan(&rec.ID, &rec.DeckID, &rec.Kind, &drawnIDs, &rec.CardID, &ts); err != nil {
			return nil, fmt.Errorf("scan pile action: %w", err)
		}
		if err := json.Unmarshal([]byte(drawnIDs), &rec.DrawnIDs); err != nil {
			return nil, fmt.Errorf("unmarshal drawn ids: %w", err)
		}
		rec.Timestamp = fromMillis(ts)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pile actions: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
