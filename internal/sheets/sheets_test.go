package sheets

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreCharacter(t *testing.T) {
	s := NewMemoryStore()
	s.Put(CharacterSheet{ID: "char-1", CampaignID: "camp-1", PlayerID: "alice", Name: "Mira", HPMax: 24, HPCurrent: 20})

	got, err := s.Character(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if got.Name != "Mira" || got.HPMax != 24 {
		t.Errorf("character = %+v, want Mira with 24 max hp", got)
	}

	if _, err := s.Character(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestByCampaignSortedByID(t *testing.T) {
	s := NewMemoryStore()
	s.Put(CharacterSheet{ID: "char-b", CampaignID: "camp-1"})
	s.Put(CharacterSheet{ID: "char-a", CampaignID: "camp-1"})
	s.Put(CharacterSheet{ID: "char-c", CampaignID: "camp-2"})

	got, err := s.ByCampaign(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("by campaign: %v", err)
	}
	if len(got) != 2 || got[0].ID != "char-a" || got[1].ID != "char-b" {
		t.Fatalf("sheets = %+v, want [char-a char-b]", got)
	}
}

func TestHasDeck(t *testing.T) {
	if (CharacterSheet{}).HasDeck() {
		t.Error("empty sheet reports a deck")
	}
	if !(CharacterSheet{Deck: map[string]int{"strike": 2}}).HasDeck() {
		t.Error("sheet with composition reports no deck")
	}
}
