package combat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/questkeeper/encounter-server-go/internal/auth"
	"github.com/questkeeper/encounter-server-go/internal/sheets"
	"github.com/questkeeper/encounter-server-go/internal/storage"
	"github.com/questkeeper/encounter-server-go/internal/storage/memory"
)

var (
	gm      = auth.Actor{Role: auth.RoleGM}
	alice   = auth.Actor{Role: auth.RolePlayer, PlayerID: "alice", CharacterIDs: []string{"char-mira"}}
	bob     = auth.Actor{Role: auth.RolePlayer, PlayerID: "bob", CharacterIDs: []string{"char-torr"}}
	outcast = auth.Actor{Role: auth.RolePlayer, PlayerID: "eve"}
)

func testCoordinator(t *testing.T) (*Coordinator, storage.Store) {
	t.Helper()

	sheetStore := sheets.NewMemoryStore()
	sheetStore.Put(sheets.CharacterSheet{
		ID: "char-mira", CampaignID: "campaign-1", PlayerID: "alice",
		Name: "Mira", HPMax: 24, HPCurrent: 20,
		Deck: map[string]int{"strike": 6, "guard": 4, "heal": 2},
	})
	sheetStore.Put(sheets.CharacterSheet{
		ID: "char-torr", CampaignID: "campaign-1", PlayerID: "bob",
		Name: "Torr", HPMax: 30, HPCurrent: 30,
	})

	store := memory.NewStore()
	seed := int64(0)
	co := NewCoordinator(sheetStore, store, Options{
		HandLimit: 4,
		LockWait:  time.Second,
		Seed: func() (int64, error) {
			seed++
			return seed, nil
		},
	}, zap.NewNop())
	return co, store
}

func startCombat(t *testing.T, co *Coordinator) string {
	t.Helper()
	result, err := co.StartCombat(context.Background(), gm, "campaign-1")
	require.NoError(t, err)
	return result.EncounterID
}

func TestStartCombatInitializesDecksAndCounts(t *testing.T) {
	co, _ := testCoordinator(t)

	result, err := co.StartCombat(context.Background(), gm, "campaign-1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.EncounterID)
	assert.Equal(t, 1, result.Created, "Mira brings a deck")
	assert.Equal(t, 0, result.SkippedExisting)
	assert.Equal(t, 1, result.SkippedNoDeck, "Torr has no deck")

	id, ok := co.ActiveEncounterID("campaign-1")
	require.True(t, ok)
	assert.Equal(t, result.EncounterID, id)
}

func TestStartCombatRejectsSecondEncounter(t *testing.T) {
	co, _ := testCoordinator(t)
	startCombat(t, co)

	_, err := co.StartCombat(context.Background(), gm, "campaign-1")
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestStartCombatRequiresGM(t *testing.T) {
	co, _ := testCoordinator(t)

	_, err := co.StartCombat(context.Background(), alice, "campaign-1")
	assert.True(t, IsKind(err, KindPermissionDenied))
}

func TestEndCombatAllowsNewEncounter(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	startCombat(t, co)

	snap, err := co.EndCombat(ctx, gm, "campaign-1")
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, snap.Status)

	_, ok := co.ActiveEncounterID("campaign-1")
	assert.False(t, ok)

	_, err = co.StartCombat(ctx, gm, "campaign-1")
	require.NoError(t, err, "a fresh encounter may start after the last one ended")
}

func TestEndCombatWithoutActiveEncounter(t *testing.T) {
	co, _ := testCoordinator(t)

	_, err := co.EndCombat(context.Background(), gm, "campaign-1")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestAddCombatantSeedsCharacterFromSheet(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	snap, err := co.AddCombatant(ctx, gm, encID, AddCombatantRequest{
		Kind:        KindCharacter,
		CharacterID: "char-mira",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mira", snap.Name)
	assert.Equal(t, 24, snap.HPMax)
	assert.Equal(t, 20, snap.HPCurrent)
}

func TestAddCombatantUnknownCharacter(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	_, err := co.AddCombatant(ctx, gm, encID, AddCombatantRequest{
		Kind:        KindCharacter,
		CharacterID: "char-ghost",
	})
	assert.True(t, IsKind(err, KindNotFound))
}

func TestInitDeckIsIdempotent(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	// StartCombat already initialized Mira's deck.
	result, err := co.InitDeck(ctx, alice, encID, "char-mira", nil)
	require.NoError(t, err)
	assert.True(t, result.AlreadyExists)

	// Torr has no deck on the sheet; an explicit composition works.
	result, err = co.InitDeck(ctx, bob, encID, "char-torr", map[string]int{"smash": 5})
	require.NoError(t, err)
	assert.False(t, result.AlreadyExists)
	assert.Len(t, result.Deck.DrawPile, 5)

	// Without a composition the sheet must carry one.
	_, err = co.InitDeck(ctx, gm, encID, "char-torr", nil)
	require.NoError(t, err, "existing deck short-circuits before the sheet check")
}

func TestDeckAccessControl(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	_, err := co.DrawToLimit(ctx, bob, encID, "char-mira", "")
	assert.True(t, IsKind(err, KindPermissionDenied), "another player's deck is off limits")

	_, err = co.DrawToLimit(ctx, outcast, encID, "char-mira", "")
	assert.True(t, IsKind(err, KindPermissionDenied))

	drawn, err := co.DrawToLimit(ctx, alice, encID, "char-mira", "")
	require.NoError(t, err)
	assert.Len(t, drawn, 4)

	// The GM may operate any deck.
	hand, err := co.GetHand(ctx, gm, encID, "char-mira")
	require.NoError(t, err)
	assert.Len(t, hand, 4)
}

func TestUndoLastActionRequiresGM(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	_, err := co.DrawToLimit(ctx, alice, encID, "char-mira", "")
	require.NoError(t, err)

	_, err = co.UndoLastAction(ctx, alice, encID, "char-mira", "")
	assert.True(t, IsKind(err, KindPermissionDenied), "players never undo, even on their own deck")

	action, err := co.UndoLastAction(ctx, gm, encID, "char-mira", "")
	require.NoError(t, err)
	assert.Equal(t, PileActionDraw, action.Kind)
}

func TestSetHPOwnershipRules(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	mira, err := co.AddCombatant(ctx, gm, encID, AddCombatantRequest{Kind: KindCharacter, CharacterID: "char-mira"})
	require.NoError(t, err)
	ogre, err := co.AddCombatant(ctx, gm, encID, AddCombatantRequest{Kind: KindEnemy, Name: "Ogre", HPMax: 40, HPCurrent: 40})
	require.NoError(t, err)

	// Character HP belongs to the owning player.
	_, err = co.SetHP(ctx, gm, encID, mira.ID, 10)
	assert.True(t, IsKind(err, KindPermissionDenied))
	_, err = co.SetHP(ctx, bob, encID, mira.ID, 10)
	assert.True(t, IsKind(err, KindPermissionDenied))
	snap, err := co.SetHP(ctx, alice, encID, mira.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.HPCurrent)

	// Enemy HP belongs to the GM.
	_, err = co.SetHP(ctx, alice, encID, ogre.ID, 20)
	assert.True(t, IsKind(err, KindPermissionDenied))
	snap, err = co.SetHP(ctx, gm, encID, ogre.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, snap.HPCurrent)
}

func TestStatusMutationPermissions(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	mira, err := co.AddCombatant(ctx, gm, encID, AddCombatantRequest{Kind: KindCharacter, CharacterID: "char-mira"})
	require.NoError(t, err)
	ogre, err := co.AddCombatant(ctx, gm, encID, AddCombatantRequest{Kind: KindEnemy, Name: "Ogre", HPMax: 40, HPCurrent: 40})
	require.NoError(t, err)

	// A player manages their own character's statuses.
	_, err = co.AddStatus(ctx, alice, encID, mira.ID, "Blessed", 3)
	require.NoError(t, err)
	// But not anyone else's.
	_, err = co.AddStatus(ctx, alice, encID, ogre.ID, "Poisoned", 2)
	assert.True(t, IsKind(err, KindPermissionDenied))
	// The GM manages everyone's.
	_, err = co.AddStatus(ctx, gm, encID, mira.ID, "Hasted", 2)
	require.NoError(t, err)
	_, err = co.AddStatus(ctx, gm, encID, ogre.ID, "Poisoned", 2)
	require.NoError(t, err)
}

func TestPlayerEncounterViewIsRedacted(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	_, err := co.AddCombatant(ctx, gm, encID, AddCombatantRequest{Kind: KindEnemy, Name: "Ogre", HPMax: 40, HPCurrent: 40})
	require.NoError(t, err)
	_, err = co.AddCombatant(ctx, gm, encID, AddCombatantRequest{Kind: KindEnemy, Name: "Lurker", HPMax: 10, HPCurrent: 10, Hidden: true})
	require.NoError(t, err)

	gmView, err := co.Encounter(ctx, gm, encID)
	require.NoError(t, err)
	assert.Len(t, gmView.Combatants, 2)

	playerView, err := co.Encounter(ctx, alice, encID)
	require.NoError(t, err)
	require.Len(t, playerView.Combatants, 1)
	assert.Equal(t, "Ogre", playerView.Combatants[0].Name)
}

func TestDeckViewHidesDrawOrder(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	_, err := co.DrawToLimit(ctx, alice, encID, "char-mira", "")
	require.NoError(t, err)

	view, err := co.Deck(ctx, alice, encID, "char-mira")
	require.NoError(t, err)
	assert.Equal(t, 4, view.HandLimit)
	assert.Equal(t, 8, view.DrawCount)
	assert.Equal(t, 0, view.DiscardCount)
	assert.Len(t, view.Hand, 4)
}

func TestEndedEncounterBlocksDeckMutation(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	_, err := co.DrawToLimit(ctx, alice, encID, "char-mira", "")
	require.NoError(t, err)
	_, err = co.EndCombat(ctx, gm, "campaign-1")
	require.NoError(t, err)

	_, err = co.DrawToLimit(ctx, alice, encID, "char-mira", "")
	assert.True(t, IsKind(err, KindInvalidState))

	// Read paths survive for the post-fight recap.
	hand, err := co.GetHand(ctx, alice, encID, "char-mira")
	require.NoError(t, err)
	assert.Len(t, hand, 4)
}

func TestDrawTokenDedupeThroughCoordinator(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	first, err := co.DrawToLimit(ctx, alice, encID, "char-mira", "req-9")
	require.NoError(t, err)

	err = co.MoveToDiscard(ctx, alice, encID, "char-mira", first[0])
	require.NoError(t, err)

	replay, err := co.DrawToLimit(ctx, alice, encID, "char-mira", "req-9")
	require.NoError(t, err)
	assert.Equal(t, first, replay)

	hand, err := co.GetHand(ctx, alice, encID, "char-mira")
	require.NoError(t, err)
	assert.Len(t, hand, 3, "replayed draw must not move cards")
}

func TestEventsAreEmitted(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)

	events := make(chan Event, 16)
	co.SetEventHandler(func(e Event) { events <- e })

	encID := startCombat(t, co)
	_, err := co.AddCombatant(ctx, gm, encID, AddCombatantRequest{Kind: KindEnemy, Name: "Ogre", HPMax: 40, HPCurrent: 40})
	require.NoError(t, err)

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case e := <-events:
			assert.Equal(t, "campaign-1", e.CampaignID)
			assert.Equal(t, encID, e.EncounterID)
			seen[e.Type] = true
		case <-deadline:
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
	assert.True(t, seen[EventEncounterStarted])
	assert.True(t, seen[EventDeckInitialized])
	assert.True(t, seen[EventCombatantAdded])
}

func TestCoordinatorMirrorsStateToStorage(t *testing.T) {
	ctx := context.Background()
	co, store := testCoordinator(t)
	encID := startCombat(t, co)

	mira, err := co.AddCombatant(ctx, gm, encID, AddCombatantRequest{Kind: KindCharacter, CharacterID: "char-mira"})
	require.NoError(t, err)
	_, err = co.AdvanceTurn(ctx, gm, encID)
	require.NoError(t, err)

	rec, err := store.Encounter(ctx, encID)
	require.NoError(t, err)
	assert.Equal(t, "campaign-1", rec.CampaignID)
	assert.Equal(t, 2, rec.Round, "single combatant wraps every advance")

	combatants, err := store.Combatants(ctx, encID)
	require.NoError(t, err)
	require.Len(t, combatants, 1)
	assert.Equal(t, mira.ID, combatants[0].ID)
	assert.Equal(t, "Mira", combatants[0].Name)
}

func TestPileActionsMirroredAndRemovedOnUndo(t *testing.T) {
	ctx := context.Background()
	co, store := testCoordinator(t)
	encID := startCombat(t, co)

	_, err := co.DrawToLimit(ctx, alice, encID, "char-mira", "")
	require.NoError(t, err)

	deck, err := co.deck(encID, "char-mira")
	require.NoError(t, err)

	actions, err := store.PileActions(ctx, deck.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "DRAW", actions[0].Kind)

	_, err = co.UndoLastAction(ctx, gm, encID, "char-mira", "")
	require.NoError(t, err)

	actions, err = store.PileActions(ctx, deck.ID)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestParallelDecksDoNotSerialize(t *testing.T) {
	ctx := context.Background()
	co, _ := testCoordinator(t)
	encID := startCombat(t, co)

	_, err := co.InitDeck(ctx, bob, encID, "char-torr", map[string]int{"smash": 8})
	require.NoError(t, err)

	done := make(chan error, 2)
	go func() {
		_, err := co.DrawToLimit(ctx, alice, encID, "char-mira", "")
		done <- err
	}()
	go func() {
		_, err := co.DrawToLimit(ctx, bob, encID, "char-torr", "")
		done <- err
	}()
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}

	miraHand, err := co.GetHand(ctx, alice, encID, "char-mira")
	require.NoError(t, err)
	torrHand, err := co.GetHand(ctx, bob, encID, "char-torr")
	require.NoError(t, err)
	assert.Len(t, miraHand, 4)
	assert.Len(t, torrHand, 4)
}
