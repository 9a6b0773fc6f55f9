package combat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EncounterStatus represents the lifecycle state of an encounter.
type EncounterStatus int

const (
	StatusActive EncounterStatus = iota
	StatusEnded
)

func (s EncounterStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Encounter is one combat session: a roster of combatants, a turn pointer
// into the active ordering, and a round counter. It is an aggregate: every
// mutation runs alone under its semaphore and bumps the version.
type Encounter struct {
	ID         string
	CampaignID string

	status    EncounterStatus
	round     int
	turnIndex int
	startedAt time.Time
	endedAt   *time.Time
	roster    *Roster
	version   uint64

	sem      sem
	lockWait time.Duration
}

// NewEncounter creates an active encounter at round 1, turn 0.
func NewEncounter(campaignID string, lockWait time.Duration) *Encounter {
	return &Encounter{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		status:     StatusActive,
		round:      1,
		turnIndex:  0,
		startedAt:  time.Now(),
		roster:     NewRoster(),
		sem:        newSem(),
		lockWait:   lockWait,
	}
}

func (e *Encounter) lock(ctx context.Context) error {
	if !e.sem.acquire(ctx, e.lockWait) {
		return conflict("encounter", e.ID, "aggregate busy")
	}
	return nil
}

// requireActive must be called with the lock held.
func (e *Encounter) requireActive() error {
	if e.status != StatusActive {
		return invalidState("encounter", e.ID, "encounter has ended")
	}
	return nil
}

func (e *Encounter) combatant(id string) (*Combatant, error) {
	c, ok := e.roster.Get(id)
	if !ok {
		return nil, notFound("combatant", id)
	}
	return c, nil
}

// AddCombatantParams carries the fields of a GM "add" action.
type AddCombatantParams struct {
	Kind        CombatantKind
	CharacterID string
	Name        string
	HPCurrent   int
	HPMax       int
	Hidden      bool
}

// AddCombatant inserts a combatant at the end of the current order.
// HP is clamped into [0, HPMax].
func (e *Encounter) AddCombatant(ctx context.Context, p AddCombatantParams) (CombatantSnapshot, error) {
	if err := e.lock(ctx); err != nil {
		return CombatantSnapshot{}, err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return CombatantSnapshot{}, err
	}
	if p.Name == "" {
		return CombatantSnapshot{}, validation("combatant", "", "name is required")
	}
	if p.HPMax <= 0 {
		return CombatantSnapshot{}, validation("combatant", p.Name, "hp_max must be positive")
	}
	if p.Kind == KindCharacter && p.CharacterID == "" {
		return CombatantSnapshot{}, validation("combatant", p.Name, "character kind requires a character reference")
	}
	if _, exists := e.roster.ByCharacter(p.CharacterID); exists && p.Kind == KindCharacter {
		return CombatantSnapshot{}, validation("combatant", p.CharacterID, "character already in encounter")
	}

	c := &Combatant{
		ID:          uuid.NewString(),
		EncounterID: e.ID,
		Kind:        p.Kind,
		CharacterID: p.CharacterID,
		Name:        p.Name,
		HPCurrent:   clampHP(p.HPCurrent, p.HPMax),
		HPMax:       p.HPMax,
		Hidden:      p.Hidden,
		Statuses:    make([]StatusEffect, 0),
	}
	e.roster.Add(c)
	e.version++

	return c.snapshot(), nil
}

// SetInitiative applies initiative values and recomputes the full order.
// The turn pointer is intentionally NOT adjusted: re-ranking initiative
// mid-fight must not silently move whose turn it is.
func (e *Encounter) SetInitiative(ctx context.Context, initiatives map[string]int) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return err
	}
	if len(initiatives) == 0 {
		return validation("encounter", e.ID, "no initiative values given")
	}
	if err := e.roster.RecomputeOrder(initiatives); err != nil {
		return err
	}
	e.version++
	return nil
}

// TurnAdvance reports the result of one AdvanceTurn call.
type TurnAdvance struct {
	Round           int
	TurnIndex       int
	CurrentID       string
	TickedID        string
	ExpiredStatuses []string
}

// AdvanceTurn ticks the current combatant's status effects and moves the
// turn pointer. Wrapping to index 0 increments the round. Tick and advance
// are one atomic step under the aggregate lock.
func (e *Encounter) AdvanceTurn(ctx context.Context) (TurnAdvance, error) {
	if err := e.lock(ctx); err != nil {
		return TurnAdvance{}, err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return TurnAdvance{}, err
	}

	active := e.roster.Active()
	if len(active) == 0 {
		return TurnAdvance{}, invalidState("encounter", e.ID, "no active combatants")
	}

	cur := active[e.turnIndex]
	expired := cur.tickStatuses()

	next := (e.turnIndex + 1) % len(active)
	if next == 0 {
		e.round++
	}
	e.turnIndex = next
	e.version++

	return TurnAdvance{
		Round:           e.round,
		TurnIndex:       e.turnIndex,
		CurrentID:       active[next].ID,
		TickedID:        cur.ID,
		ExpiredStatuses: expired,
	}, nil
}

// SetDefeated marks or revives a combatant and corrects the turn pointer
// so that "whose turn it is" survives roster churn as an identity. The
// correction rules are deliberate and position-based; do not replace them
// with "keep the number the same".
func (e *Encounter) SetDefeated(ctx context.Context, id string, defeated bool) (CombatantSnapshot, error) {
	if err := e.lock(ctx); err != nil {
		return CombatantSnapshot{}, err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return CombatantSnapshot{}, err
	}
	c, err := e.combatant(id)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	if c.Defeated == defeated {
		// Already in the requested state.
		return c.snapshot(), nil
	}

	if defeated {
		activeBefore := e.roster.Active()
		idxBefore := activeIndexOf(activeBefore, id)
		countAfter := len(activeBefore) - 1

		c.Defeated = true
		switch {
		case countAfter <= 0:
			e.turnIndex = 0
		case idxBefore < e.turnIndex:
			e.turnIndex--
		case idxBefore == e.turnIndex:
			e.turnIndex = minInt(e.turnIndex, countAfter-1)
		}
	} else {
		c.Defeated = false
		activeAfter := e.roster.Active()
		idxAfter := activeIndexOf(activeAfter, id)
		if idxAfter <= e.turnIndex {
			e.turnIndex = minInt(e.turnIndex+1, len(activeAfter)-1)
		}
	}
	e.version++

	return c.snapshot(), nil
}

// SetHidden toggles GM-side visibility of a combatant.
func (e *Encounter) SetHidden(ctx context.Context, id string, hidden bool) (CombatantSnapshot, error) {
	if err := e.lock(ctx); err != nil {
		return CombatantSnapshot{}, err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return CombatantSnapshot{}, err
	}
	c, err := e.combatant(id)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	c.Hidden = hidden
	e.version++
	return c.snapshot(), nil
}

// AddStatus attaches a labeled, turn-decrementing condition. Labels are
// unique per combatant, case-insensitively.
func (e *Encounter) AddStatus(ctx context.Context, id, label string, remaining int) (CombatantSnapshot, error) {
	if err := e.lock(ctx); err != nil {
		return CombatantSnapshot{}, err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return CombatantSnapshot{}, err
	}
	c, err := e.combatant(id)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	if label == "" {
		return CombatantSnapshot{}, validation("status", "", "label is required")
	}
	if remaining <= 0 {
		return CombatantSnapshot{}, validation("status", label, "remaining must be positive")
	}
	if c.hasStatus(label) {
		return CombatantSnapshot{}, validation("status", label, "already present on combatant")
	}
	c.Statuses = append(c.Statuses, StatusEffect{Label: label, Remaining: remaining})
	e.version++
	return c.snapshot(), nil
}

// RemoveStatus removes a status effect by label.
func (e *Encounter) RemoveStatus(ctx context.Context, id, label string) (CombatantSnapshot, error) {
	if err := e.lock(ctx); err != nil {
		return CombatantSnapshot{}, err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return CombatantSnapshot{}, err
	}
	c, err := e.combatant(id)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	if !c.removeStatus(label) {
		return CombatantSnapshot{}, notFound("status", label)
	}
	e.version++
	return c.snapshot(), nil
}

// SetDeathSaves sets both counters, clamped into [0,3] regardless of the
// input magnitude.
func (e *Encounter) SetDeathSaves(ctx context.Context, id string, successes, failures int) (CombatantSnapshot, error) {
	if err := e.lock(ctx); err != nil {
		return CombatantSnapshot{}, err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return CombatantSnapshot{}, err
	}
	c, err := e.combatant(id)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	c.DeathSaves = DeathSaves{
		Successes: clampDeathSave(successes),
		Failures:  clampDeathSave(failures),
	}
	e.version++
	return c.snapshot(), nil
}

// SetHP sets a combatant's current HP, clamped into [0, HPMax].
func (e *Encounter) SetHP(ctx context.Context, id string, hp int) (CombatantSnapshot, error) {
	if err := e.lock(ctx); err != nil {
		return CombatantSnapshot{}, err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return CombatantSnapshot{}, err
	}
	c, err := e.combatant(id)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	c.HPCurrent = clampHP(hp, c.HPMax)
	e.version++
	return c.snapshot(), nil
}

// End marks the encounter ended. State is retained, not deleted.
func (e *Encounter) End(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.sem.release()

	if err := e.requireActive(); err != nil {
		return err
	}
	now := time.Now()
	e.status = StatusEnded
	e.endedAt = &now
	e.version++
	return nil
}

// EncounterSnapshot is a consistent copy of encounter state.
type EncounterSnapshot struct {
	ID         string
	CampaignID string
	Status     EncounterStatus
	Round      int
	TurnIndex  int
	StartedAt  time.Time
	EndedAt    *time.Time
	Version    uint64
	Combatants []CombatantSnapshot
	CurrentID  string
}

// Snapshot returns a consistent copy of the encounter.
func (e *Encounter) Snapshot(ctx context.Context) (EncounterSnapshot, error) {
	if err := e.lock(ctx); err != nil {
		return EncounterSnapshot{}, err
	}
	defer e.sem.release()
	return e.snapshotLocked(), nil
}

func (e *Encounter) snapshotLocked() EncounterSnapshot {
	all := e.roster.All()
	combatants := make([]CombatantSnapshot, 0, len(all))
	for _, c := range all {
		combatants = append(combatants, c.snapshot())
	}

	currentID := ""
	if active := e.roster.Active(); len(active) > 0 && e.turnIndex < len(active) {
		currentID = active[e.turnIndex].ID
	}

	var endedAt *time.Time
	if e.endedAt != nil {
		cp := *e.endedAt
		endedAt = &cp
	}

	return EncounterSnapshot{
		ID:         e.ID,
		CampaignID: e.CampaignID,
		Status:     e.status,
		Round:      e.round,
		TurnIndex:  e.turnIndex,
		StartedAt:  e.startedAt,
		EndedAt:    endedAt,
		Version:    e.version,
		Combatants: combatants,
		CurrentID:  currentID,
	}
}

// Redacted returns the snapshot as a player may see it: hidden combatants
// removed and initiative values (GM-visible only) zeroed.
func (s EncounterSnapshot) Redacted() EncounterSnapshot {
	out := s
	out.Combatants = make([]CombatantSnapshot, 0, len(s.Combatants))
	for _, c := range s.Combatants {
		if c.Hidden {
			continue
		}
		c.Initiative = 0
		out.Combatants = append(out.Combatants, c)
	}
	return out
}

func activeIndexOf(active []*Combatant, id string) int {
	for i, c := range active {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
