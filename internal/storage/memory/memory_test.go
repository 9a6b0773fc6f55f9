package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/questkeeper/encounter-server-go/internal/storage"
)

func TestSaveEncounterVersionGuard(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := storage.EncounterRecord{ID: "enc-1", CampaignID: "camp-1", Status: "ACTIVE", Round: 1, StartedAt: time.Now(), Version: 2}

	if err := s.SaveEncounter(ctx, rec); err != nil {
		t.Fatalf("save encounter: %v", err)
	}
	if err := s.SaveEncounter(ctx, rec); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("same-version save error = %v, want ErrVersionConflict", err)
	}

	rec.Version = 3
	rec.Round = 2
	if err := s.SaveEncounter(ctx, rec); err != nil {
		t.Fatalf("newer-version save: %v", err)
	}
	got, err := s.Encounter(ctx, "enc-1")
	if err != nil {
		t.Fatalf("get encounter: %v", err)
	}
	if got.Round != 2 {
		t.Errorf("round = %d, want 2", got.Round)
	}
}

func TestEncounterNotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.Encounter(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestCombatantsSortedByOrderIndex(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.SaveCombatants(ctx, "enc-1", []storage.CombatantRecord{
		{ID: "c2", OrderIndex: 1},
		{ID: "c1", OrderIndex: 0},
	})
	if err != nil {
		t.Fatalf("save combatants: %v", err)
	}

	got, err := s.Combatants(ctx, "enc-1")
	if err != nil {
		t.Fatalf("get combatants: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c2" {
		t.Fatalf("combatants = %+v, want [c1 c2]", got)
	}
}

func TestSaveDeckVersionGuard(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := storage.DeckRecord{ID: "deck-1", CharacterID: "char-1", Version: 1, DrawPile: []string{"strike"}}

	if err := s.SaveDeck(ctx, rec); err != nil {
		t.Fatalf("save deck: %v", err)
	}
	if err := s.SaveDeck(ctx, rec); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("same-version save error = %v, want ErrVersionConflict", err)
	}
}

func TestPileActionsAppendAndRemove(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.AppendPileAction(ctx, storage.PileActionRecord{ID: "a1", DeckID: "deck-1", Kind: "DRAW"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendPileAction(ctx, storage.PileActionRecord{ID: "a2", DeckID: "deck-1", Kind: "MOVE"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.RemovePileAction(ctx, "deck-1", "a2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemovePileAction(ctx, "deck-1", "a2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("double remove error = %v, want ErrNotFound", err)
	}

	actions, err := s.PileActions(ctx, "deck-1")
	if err != nil {
		t.Fatalf("get actions: %v", err)
	}
	if len(actions) != 1 || actions[0].ID != "a1" {
		t.Fatalf("actions = %+v, want only a1", actions)
	}
}
