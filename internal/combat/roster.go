package combat

import "sort"

// Roster holds the combatants of one encounter, ordered by OrderIndex.
// It is not safe for concurrent use on its own; the owning Encounter's
// lock serializes access.
type Roster struct {
	combatants []*Combatant
	nextSeq    int
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{combatants: make([]*Combatant, 0)}
}

// Add appends a combatant at the end of the current order.
func (r *Roster) Add(c *Combatant) {
	c.seq = r.nextSeq
	r.nextSeq++
	c.OrderIndex = len(r.combatants)
	r.combatants = append(r.combatants, c)
}

// Get returns the combatant with the given id.
func (r *Roster) Get(id string) (*Combatant, bool) {
	for _, c := range r.combatants {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// ByCharacter returns the combatant backed by the given character sheet.
func (r *Roster) ByCharacter(characterID string) (*Combatant, bool) {
	if characterID == "" {
		return nil, false
	}
	for _, c := range r.combatants {
		if c.CharacterID == characterID {
			return c, true
		}
	}
	return nil, false
}

// Len returns the full roster size, defeated included.
func (r *Roster) Len() int {
	return len(r.combatants)
}

// All returns every combatant ordered by OrderIndex.
func (r *Roster) All() []*Combatant {
	out := make([]*Combatant, len(r.combatants))
	copy(out, r.combatants)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// Active returns the non-defeated combatants ordered by OrderIndex.
func (r *Roster) Active() []*Combatant {
	active := make([]*Combatant, 0, len(r.combatants))
	for _, c := range r.All() {
		if !c.Defeated {
			active = append(active, c)
		}
	}
	return active
}

// RecomputeOrder applies the given initiative values and reassigns
// OrderIndex 0..n-1 over the FULL roster: initiative descending, ties
// broken by creation order ascending. Defeated combatants keep a slot so
// index math stays stable across revives. The turn pointer is deliberately
// left alone; see Encounter.SetInitiative.
func (r *Roster) RecomputeOrder(initiatives map[string]int) error {
	for id := range initiatives {
		if _, ok := r.Get(id); !ok {
			return notFound("combatant", id)
		}
	}

	for id, init := range initiatives {
		c, _ := r.Get(id)
		c.Initiative = init
	}

	sorted := make([]*Combatant, len(r.combatants))
	copy(sorted, r.combatants)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Initiative != sorted[j].Initiative {
			return sorted[i].Initiative > sorted[j].Initiative
		}
		return sorted[i].seq < sorted[j].seq
	})
	for i, c := range sorted {
		c.OrderIndex = i
	}

	return nil
}
