package combat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/questkeeper/encounter-server-go/internal/storage"
)

// The store is a write-through mirror, not the source of truth for a live
// session. A failed mirror write is logged and the in-memory state stands;
// a version conflict means another process wrote the same aggregate and is
// logged at error level.

func (co *Coordinator) persistEncounter(ctx context.Context, snap EncounterSnapshot) {
	if co.store == nil {
		return
	}
	rec := storage.EncounterRecord{
		ID:         snap.ID,
		CampaignID: snap.CampaignID,
		Status:     snap.Status.String(),
		Round:      snap.Round,
		TurnIndex:  snap.TurnIndex,
		StartedAt:  snap.StartedAt,
		EndedAt:    snap.EndedAt,
		Version:    snap.Version,
	}
	if err := co.store.SaveEncounter(ctx, rec); err != nil {
		co.logStoreError("encounter", snap.ID, err)
		return
	}
	combatants := make([]storage.CombatantRecord, 0, len(snap.Combatants))
	for _, c := range snap.Combatants {
		combatants = append(combatants, combatantRecord(c))
	}
	if err := co.store.SaveCombatants(ctx, snap.ID, combatants); err != nil {
		co.logStoreError("combatants", snap.ID, err)
	}
}

// persistEncounterState snapshots and mirrors the encounter after a
// mutation.
func (co *Coordinator) persistEncounterState(ctx context.Context, enc *Encounter) {
	if co.store == nil {
		return
	}
	snap, err := enc.Snapshot(ctx)
	if err != nil {
		co.logStoreError("encounter", enc.ID, err)
		return
	}
	co.persistEncounter(ctx, snap)
}

func (co *Coordinator) persistDeck(ctx context.Context, snap DeckSnapshot) {
	if co.store == nil {
		return
	}
	rec := storage.DeckRecord{
		ID:          snap.ID,
		CharacterID: snap.CharacterID,
		EncounterID: snap.EncounterID,
		HandLimit:   snap.HandLimit,
		DrawPile:    snap.DrawPile,
		Hand:        snap.Hand,
		Discard:     snap.Discard,
		Version:     snap.Version,
	}
	if err := co.store.SaveDeck(ctx, rec); err != nil {
		co.logStoreError("deck", snap.ID, err)
	}
}

func (co *Coordinator) persistDeckState(ctx context.Context, d *Deck) {
	if co.store == nil {
		return
	}
	snap, err := d.Snapshot(ctx)
	if err != nil {
		co.logStoreError("deck", d.ID, err)
		return
	}
	co.persistDeck(ctx, snap)
}

// persistAllDecks mirrors every deck of the encounter. Used at EndCombat so
// the audit trail captures final pile states.
func (co *Coordinator) persistAllDecks(ctx context.Context, encounterID string) {
	if co.store == nil {
		return
	}
	co.mu.RLock()
	decks := make([]*Deck, 0)
	for key, d := range co.decks {
		if key.encounterID == encounterID {
			decks = append(decks, d)
		}
	}
	co.mu.RUnlock()

	for _, d := range decks {
		co.persistDeckState(ctx, d)
	}
}

func (co *Coordinator) persistPileAppend(ctx context.Context, deckID string, a PileAction) {
	if co.store == nil {
		return
	}
	rec := storage.PileActionRecord{
		ID:        a.ID,
		DeckID:    deckID,
		Kind:      a.Kind.String(),
		DrawnIDs:  a.DrawnIDs,
		CardID:    a.CardID,
		Timestamp: a.Timestamp,
	}
	if err := co.store.AppendPileAction(ctx, rec); err != nil {
		co.logStoreError("pile_action", a.ID, err)
	}
}

func (co *Coordinator) persistPileRemove(ctx context.Context, deckID, actionID string) {
	if co.store == nil {
		return
	}
	if err := co.store.RemovePileAction(ctx, deckID, actionID); err != nil {
		co.logStoreError("pile_action", actionID, err)
	}
}

func (co *Coordinator) logStoreError(resource, id string, err error) {
	if errors.Is(err, storage.ErrVersionConflict) {
		co.logger.Error("storage version conflict, another writer is active",
			zap.String("resource", resource),
			zap.String("id", id),
		)
		return
	}
	co.logger.Warn("storage mirror write failed",
		zap.String("resource", resource),
		zap.String("id", id),
		zap.Error(err),
	)
}

func combatantRecord(c CombatantSnapshot) storage.CombatantRecord {
	statuses := make([]storage.StatusRecord, 0, len(c.Statuses))
	for _, s := range c.Statuses {
		statuses = append(statuses, storage.StatusRecord{Label: s.Label, Remaining: s.Remaining})
	}
	return storage.CombatantRecord{
		ID:             c.ID,
		EncounterID:    c.EncounterID,
		Kind:           c.Kind.String(),
		CharacterID:    c.CharacterID,
		Name:           c.Name,
		HPCurrent:      c.HPCurrent,
		HPMax:          c.HPMax,
		Initiative:     c.Initiative,
		OrderIndex:     c.OrderIndex,
		Hidden:         c.Hidden,
		Defeated:       c.Defeated,
		Statuses:       statuses,
		DeathSuccesses: c.DeathSaves.Successes,
		DeathFailures:  c.DeathSaves.Failures,
	}
}
