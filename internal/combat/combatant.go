package combat

import "strings"

// CombatantKind distinguishes player characters from GM-controlled pieces.
type CombatantKind int

const (
	KindCharacter CombatantKind = iota
	KindNPC
	KindEnemy
)

func (k CombatantKind) String() string {
	switch k {
	case KindCharacter:
		return "CHARACTER"
	case KindNPC:
		return "NPC"
	case KindEnemy:
		return "ENEMY"
	default:
		return "UNKNOWN"
	}
}

// ParseCombatantKind parses a wire-format kind string.
func ParseCombatantKind(s string) (CombatantKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CHARACTER":
		return KindCharacter, true
	case "NPC":
		return KindNPC, true
	case "ENEMY":
		return KindEnemy, true
	default:
		return KindCharacter, false
	}
}

// StatusEffect is a labeled condition that ticks down once per owner turn
// and is removed when Remaining hits zero.
type StatusEffect struct {
	Label     string
	Remaining int
}

// DeathSaves tracks success/failure counters, each clamped to [0,3].
type DeathSaves struct {
	Successes int
	Failures  int
}

const deathSaveMax = 3

func clampDeathSave(v int) int {
	if v < 0 {
		return 0
	}
	if v > deathSaveMax {
		return deathSaveMax
	}
	return v
}

// Combatant is one participant in an encounter. Combatants are never
// deleted; defeat is a flag so history and order math stay stable.
type Combatant struct {
	ID          string
	EncounterID string
	Kind        CombatantKind
	CharacterID string
	Name        string
	HPCurrent   int
	HPMax       int
	Initiative  int
	OrderIndex  int
	Hidden      bool
	Defeated    bool
	Statuses    []StatusEffect
	DeathSaves  DeathSaves

	// seq is the creation order inside the roster, used as the stable
	// tie-breaker when initiative values collide.
	seq int
}

// hasStatus reports whether the combatant already carries a status with the
// given label. Labels are unique per combatant, case-insensitively.
func (c *Combatant) hasStatus(label string) bool {
	for _, s := range c.Statuses {
		if strings.EqualFold(s.Label, label) {
			return true
		}
	}
	return false
}

// removeStatus drops the status with the given label (case-insensitive).
// Returns false if no such status exists.
func (c *Combatant) removeStatus(label string) bool {
	for i, s := range c.Statuses {
		if strings.EqualFold(s.Label, label) {
			c.Statuses = append(c.Statuses[:i], c.Statuses[i+1:]...)
			return true
		}
	}
	return false
}

// tickStatuses decrements every status effect by one and drops the ones
// that reach zero. Returns the labels that expired.
func (c *Combatant) tickStatuses() []string {
	var expired []string
	kept := c.Statuses[:0]
	for _, s := range c.Statuses {
		s.Remaining--
		if s.Remaining <= 0 {
			expired = append(expired, s.Label)
			continue
		}
		kept = append(kept, s)
	}
	c.Statuses = kept
	return expired
}

func clampHP(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// CombatantSnapshot is a copy of combatant state for external use.
type CombatantSnapshot struct {
	ID          string
	EncounterID string
	Kind        CombatantKind
	CharacterID string
	Name        string
	HPCurrent   int
	HPMax       int
	Initiative  int
	OrderIndex  int
	Hidden      bool
	Defeated    bool
	Statuses    []StatusEffect
	DeathSaves  DeathSaves
}

func (c *Combatant) snapshot() CombatantSnapshot {
	statuses := make([]StatusEffect, len(c.Statuses))
	copy(statuses, c.Statuses)
	return CombatantSnapshot{
		ID:          c.ID,
		EncounterID: c.EncounterID,
		Kind:        c.Kind,
		CharacterID: c.CharacterID,
		Name:        c.Name,
		HPCurrent:   c.HPCurrent,
		HPMax:       c.HPMax,
		Initiative:  c.Initiative,
		OrderIndex:  c.OrderIndex,
		Hidden:      c.Hidden,
		Defeated:    c.Defeated,
		Statuses:    statuses,
		DeathSaves:  c.DeathSaves,
	}
}
