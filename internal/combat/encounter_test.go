package combat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncounter(t *testing.T) *Encounter {
	t.Helper()
	return NewEncounter("campaign-1", time.Second)
}

func addEnemy(t *testing.T, e *Encounter, name string) string {
	t.Helper()
	snap, err := e.AddCombatant(context.Background(), AddCombatantParams{
		Kind:  KindEnemy,
		Name:  name,
		HPMax: 10, HPCurrent: 10,
	})
	require.NoError(t, err)
	return snap.ID
}

func currentID(t *testing.T, e *Encounter) string {
	t.Helper()
	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	return snap.CurrentID
}

func TestAddCombatantValidation(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)

	_, err := e.AddCombatant(ctx, AddCombatantParams{Kind: KindEnemy, HPMax: 10})
	assert.True(t, IsKind(err, KindValidation), "missing name should fail validation")

	_, err = e.AddCombatant(ctx, AddCombatantParams{Kind: KindEnemy, Name: "Goblin", HPMax: 0})
	assert.True(t, IsKind(err, KindValidation), "non-positive hp_max should fail validation")

	_, err = e.AddCombatant(ctx, AddCombatantParams{Kind: KindCharacter, Name: "Mira", HPMax: 10})
	assert.True(t, IsKind(err, KindValidation), "character without sheet reference should fail validation")
}

func TestAddCombatantRejectsDuplicateCharacter(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)

	_, err := e.AddCombatant(ctx, AddCombatantParams{
		Kind: KindCharacter, CharacterID: "char-1", Name: "Mira", HPMax: 20, HPCurrent: 20,
	})
	require.NoError(t, err)

	_, err = e.AddCombatant(ctx, AddCombatantParams{
		Kind: KindCharacter, CharacterID: "char-1", Name: "Mira again", HPMax: 20, HPCurrent: 20,
	})
	assert.True(t, IsKind(err, KindValidation))
}

func TestAddCombatantClampsHP(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)

	snap, err := e.AddCombatant(ctx, AddCombatantParams{
		Kind: KindEnemy, Name: "Ogre", HPMax: 30, HPCurrent: 99,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, snap.HPCurrent)
}

func TestAdvanceTurnCyclesAndIncrementsRound(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")
	b := addEnemy(t, e, "B")
	c := addEnemy(t, e, "C")

	adv, err := e.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, adv.Round)
	assert.Equal(t, 1, adv.TurnIndex)
	assert.Equal(t, b, adv.CurrentID)
	assert.Equal(t, a, adv.TickedID)

	adv, err = e.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, adv.CurrentID)

	// Wrapping back to index 0 starts the next round.
	adv, err = e.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, adv.Round)
	assert.Equal(t, 0, adv.TurnIndex)
	assert.Equal(t, a, adv.CurrentID)
}

func TestAdvanceTurnWithoutActiveCombatants(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)

	_, err := e.AdvanceTurn(ctx)
	assert.True(t, IsKind(err, KindInvalidState))

	id := addEnemy(t, e, "A")
	_, err = e.SetDefeated(ctx, id, true)
	require.NoError(t, err)

	_, err = e.AdvanceTurn(ctx)
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestAdvanceTurnTicksLeavingCombatant(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")
	addEnemy(t, e, "B")

	_, err := e.AddStatus(ctx, a, "Stunned", 2)
	require.NoError(t, err)

	// A leaves its turn: Stunned 2 -> 1, not expired yet.
	adv, err := e.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, adv.TickedID)
	assert.Empty(t, adv.ExpiredStatuses)

	// B's turn passes without touching A's statuses.
	adv, err = e.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Empty(t, adv.ExpiredStatuses)

	// A leaves again: Stunned 1 -> 0, expired and removed.
	adv, err = e.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Stunned"}, adv.ExpiredStatuses)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Combatants[0].Statuses)
}

func TestStatusWithOneTurnExpiresImmediately(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")
	addEnemy(t, e, "B")

	_, err := e.AddStatus(ctx, a, "Dazed", 1)
	require.NoError(t, err)

	adv, err := e.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dazed"}, adv.ExpiredStatuses)
}

func TestAddStatusValidation(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")

	_, err := e.AddStatus(ctx, a, "", 2)
	assert.True(t, IsKind(err, KindValidation))

	_, err = e.AddStatus(ctx, a, "Poisoned", 0)
	assert.True(t, IsKind(err, KindValidation))

	_, err = e.AddStatus(ctx, a, "Poisoned", 2)
	require.NoError(t, err)

	// Labels are unique case-insensitively.
	_, err = e.AddStatus(ctx, a, "poisoned", 3)
	assert.True(t, IsKind(err, KindValidation))
}

func TestRemoveStatus(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")

	_, err := e.RemoveStatus(ctx, a, "Blessed")
	assert.True(t, IsKind(err, KindNotFound))

	_, err = e.AddStatus(ctx, a, "Blessed", 3)
	require.NoError(t, err)

	snap, err := e.RemoveStatus(ctx, a, "BLESSED")
	require.NoError(t, err)
	assert.Empty(t, snap.Statuses)
}

func TestSetDefeatedBeforeCurrentShiftsPointerBack(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")
	b := addEnemy(t, e, "B")
	addEnemy(t, e, "C")

	_, err := e.AdvanceTurn(ctx)
	require.NoError(t, err)
	require.Equal(t, b, currentID(t, e))

	// A sits before the pointer; defeating it must keep B current.
	_, err = e.SetDefeated(ctx, a, true)
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TurnIndex)
	assert.Equal(t, b, snap.CurrentID)
}

func TestSetDefeatedCurrentPassesTurnToNext(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	addEnemy(t, e, "A")
	b := addEnemy(t, e, "B")
	c := addEnemy(t, e, "C")

	_, err := e.AdvanceTurn(ctx)
	require.NoError(t, err)
	require.Equal(t, b, currentID(t, e))

	_, err = e.SetDefeated(ctx, b, true)
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TurnIndex)
	assert.Equal(t, c, snap.CurrentID)
}

func TestSetDefeatedCurrentAtEndClampsPointer(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	addEnemy(t, e, "A")
	b := addEnemy(t, e, "B")
	c := addEnemy(t, e, "C")

	_, err := e.AdvanceTurn(ctx)
	require.NoError(t, err)
	_, err = e.AdvanceTurn(ctx)
	require.NoError(t, err)
	require.Equal(t, c, currentID(t, e))

	_, err = e.SetDefeated(ctx, c, true)
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TurnIndex)
	assert.Equal(t, b, snap.CurrentID)
}

func TestSetDefeatedLastActiveResetsPointer(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")

	_, err := e.SetDefeated(ctx, a, true)
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TurnIndex)
	assert.Empty(t, snap.CurrentID)
}

func TestReviveBeforeCurrentKeepsCurrentIdentity(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")
	b := addEnemy(t, e, "B")
	addEnemy(t, e, "C")

	_, err := e.AdvanceTurn(ctx)
	require.NoError(t, err)
	_, err = e.SetDefeated(ctx, a, true)
	require.NoError(t, err)
	require.Equal(t, b, currentID(t, e))

	// Reviving A re-inserts it before the pointer; B stays current.
	_, err = e.SetDefeated(ctx, a, false)
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TurnIndex)
	assert.Equal(t, b, snap.CurrentID)
}

func TestSetDefeatedAlreadyInStateIsNoOp(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")
	b := addEnemy(t, e, "B")

	_, err := e.AdvanceTurn(ctx)
	require.NoError(t, err)
	require.Equal(t, b, currentID(t, e))

	_, err = e.SetDefeated(ctx, a, true)
	require.NoError(t, err)
	before, err := e.Snapshot(ctx)
	require.NoError(t, err)

	// Second identical request must not re-run pointer correction.
	_, err = e.SetDefeated(ctx, a, true)
	require.NoError(t, err)
	after, err := e.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, before.TurnIndex, after.TurnIndex)
	assert.Equal(t, before.Version, after.Version)
}

func TestSetInitiativeReordersWithoutMovingPointer(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")
	b := addEnemy(t, e, "B")
	c := addEnemy(t, e, "C")

	_, err := e.AdvanceTurn(ctx)
	require.NoError(t, err)
	require.Equal(t, b, currentID(t, e))

	// New order is A, C, B. The pointer stays at index 1, so the current
	// combatant becomes C; re-ranking never follows identity.
	err = e.SetInitiative(ctx, map[string]int{a: 30, b: 10, c: 20})
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TurnIndex)
	assert.Equal(t, c, snap.CurrentID)

	order := make([]string, 0, len(snap.Combatants))
	for _, cb := range snap.Combatants {
		order = append(order, cb.Name)
	}
	assert.Equal(t, []string{"A", "C", "B"}, order)
}

func TestSetInitiativeTiesBreakByCreationOrder(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")
	b := addEnemy(t, e, "B")
	c := addEnemy(t, e, "C")

	err := e.SetInitiative(ctx, map[string]int{a: 15, b: 20, c: 15})
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	order := make([]string, 0, len(snap.Combatants))
	for _, cb := range snap.Combatants {
		order = append(order, cb.Name)
	}
	assert.Equal(t, []string{"B", "A", "C"}, order)
}

func TestSetInitiativeUnknownCombatantAppliesNothing(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")

	err := e.SetInitiative(ctx, map[string]int{a: 20, "missing": 10})
	assert.True(t, IsKind(err, KindNotFound))

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Combatants[0].Initiative, "partial application must not happen")
}

func TestDeathSavesClamped(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")

	snap, err := e.SetDeathSaves(ctx, a, 5, -2)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.DeathSaves.Successes)
	assert.Equal(t, 0, snap.DeathSaves.Failures)
}

func TestSetHPClamped(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")

	snap, err := e.SetHP(ctx, a, 999)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.HPCurrent)

	snap, err = e.SetHP(ctx, a, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.HPCurrent)
}

func TestEndedEncounterRejectsMutation(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")

	require.NoError(t, e.End(ctx))

	_, err := e.AdvanceTurn(ctx)
	assert.True(t, IsKind(err, KindInvalidState))
	_, err = e.SetHP(ctx, a, 5)
	assert.True(t, IsKind(err, KindInvalidState))
	assert.True(t, IsKind(e.End(ctx), KindInvalidState), "double end")

	// Snapshots stay available after the fight.
	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, snap.Status)
	assert.NotNil(t, snap.EndedAt)
}

func TestRedactedDropsHiddenAndInitiative(t *testing.T) {
	ctx := context.Background()
	e := testEncounter(t)
	a := addEnemy(t, e, "A")
	b := addEnemy(t, e, "B")

	_, err := e.SetHidden(ctx, b, true)
	require.NoError(t, err)
	err = e.SetInitiative(ctx, map[string]int{a: 17, b: 12})
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	redacted := snap.Redacted()

	require.Len(t, redacted.Combatants, 1)
	assert.Equal(t, "A", redacted.Combatants[0].Name)
	assert.Equal(t, 0, redacted.Combatants[0].Initiative)

	// The source snapshot is untouched.
	assert.Len(t, snap.Combatants, 2)
	assert.Equal(t, 17, snap.Combatants[0].Initiative)
}

func TestLockTimeoutReportsConflict(t *testing.T) {
	ctx := context.Background()
	e := NewEncounter("campaign-1", 50*time.Millisecond)
	addEnemy(t, e, "A")

	// Hold the aggregate slot so the next operation times out.
	require.True(t, e.sem.acquire(ctx, time.Second))
	defer e.sem.release()

	_, err := e.AdvanceTurn(ctx)
	assert.True(t, IsKind(err, KindConflict))
}
