package combat

import "time"

// Event types emitted by the coordinator.
const (
	EventEncounterStarted = "ENCOUNTER_STARTED"
	EventEncounterEnded   = "ENCOUNTER_ENDED"
	EventCombatantAdded   = "COMBATANT_ADDED"
	EventCombatantUpdated = "COMBATANT_UPDATED"
	EventOrderChanged     = "ORDER_CHANGED"
	EventTurnAdvanced     = "TURN_ADVANCED"
	EventDeckInitialized  = "DECK_INITIALIZED"
	EventCardsDrawn       = "CARDS_DRAWN"
	EventCardDiscarded    = "CARD_DISCARDED"
	EventActionUndone     = "ACTION_UNDONE"
)

// Event is a notification about a completed state change, consumed by the
// realtime surface for broadcast.
type Event struct {
	Type        string
	CampaignID  string
	EncounterID string
	Timestamp   time.Time
	Data        map[string]interface{}
}

// EventHandler receives coordinator events. Handlers run on their own
// goroutine and may call back into the coordinator.
type EventHandler func(Event)
