package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/questkeeper/encounter-server-go/internal/catalog"
	"github.com/questkeeper/encounter-server-go/internal/combat"
)

// Operation names accepted on the wire.
const (
	OpHello          = "hello"
	OpStartCombat    = "start_combat"
	OpEndCombat      = "end_combat"
	OpAddCombatant   = "add_combatant"
	OpSetInitiative  = "set_initiative"
	OpAdvanceTurn    = "advance_turn"
	OpSetDefeated    = "set_defeated"
	OpSetHidden      = "set_hidden"
	OpAddStatus      = "add_status"
	OpRemoveStatus   = "remove_status"
	OpSetDeathSaves  = "set_death_saves"
	OpSetHP          = "set_hp"
	OpInitDeck       = "init_deck"
	OpDrawToLimit    = "draw_to_limit"
	OpMoveToDiscard  = "move_to_discard"
	OpUndoLastAction = "undo_last_action"
	OpGetHand        = "get_hand"
	OpGetDeck        = "get_deck"
	OpGetEncounter   = "get_encounter"
)

// Request is one client message. Data is decoded per operation.
type Request struct {
	ID    string          `json:"id,omitempty"`
	Op    string          `json:"op"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Response answers one Request, correlated by ID.
type Response struct {
	ID    string      `json:"id,omitempty"`
	Type  string      `json:"type"`
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *WireError  `json:"error,omitempty"`
}

// EventMessage is a pushed notification, not tied to a request.
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// WireError carries a stable machine-readable code plus a message.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Wire error codes.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeValidation       = "VALIDATION"
	CodeConflict         = "CONFLICT"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNotInHand        = "NOT_IN_HAND"
	CodeNoActionToUndo   = "NO_ACTION_TO_UNDO"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInternal         = "INTERNAL"
)

// wireError maps a combat error to its wire code.
func wireError(err error) *WireError {
	var br badRequestError
	if errors.As(err, &br) {
		return &WireError{Code: CodeBadRequest, Message: br.msg}
	}
	var code string
	switch combat.KindOf(err) {
	case combat.KindNotFound:
		code = CodeNotFound
	case combat.KindInvalidState:
		code = CodeInvalidState
	case combat.KindValidation:
		code = CodeValidation
	case combat.KindConflict:
		code = CodeConflict
	case combat.KindPermissionDenied:
		code = CodePermissionDenied
	case combat.KindNotInHand:
		code = CodeNotInHand
	case combat.KindNoActionToUndo:
		code = CodeNoActionToUndo
	default:
		code = CodeInternal
	}
	return &WireError{Code: code, Message: err.Error()}
}

// ==================== Request payloads ====================

type helloRequest struct {
	Role         string   `json:"role"`
	PlayerID     string   `json:"player_id,omitempty"`
	CharacterIDs []string `json:"character_ids,omitempty"`
	CampaignID   string   `json:"campaign_id"`
	Password     string   `json:"password,omitempty"`
}

type campaignRequest struct {
	CampaignID string `json:"campaign_id"`
}

type addCombatantRequest struct {
	EncounterID string `json:"encounter_id"`
	Kind        string `json:"kind"`
	CharacterID string `json:"character_id,omitempty"`
	Name        string `json:"name,omitempty"`
	HPCurrent   int    `json:"hp_current,omitempty"`
	HPMax       int    `json:"hp_max,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
}

type setInitiativeRequest struct {
	EncounterID string         `json:"encounter_id"`
	Initiatives map[string]int `json:"initiatives"`
}

type encounterRequest struct {
	EncounterID string `json:"encounter_id"`
}

// combatantRequest addresses one combatant; the per-op payloads embed it.
type combatantRequest struct {
	EncounterID string `json:"encounter_id"`
	CombatantID string `json:"combatant_id"`
}

type setDefeatedRequest struct {
	combatantRequest
	Defeated bool `json:"defeated"`
}

type setHiddenRequest struct {
	combatantRequest
	Hidden bool `json:"hidden"`
}

type statusRequest struct {
	combatantRequest
	Label     string `json:"label"`
	Remaining int    `json:"remaining,omitempty"`
}

type deathSavesRequest struct {
	combatantRequest
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

type setHPRequest struct {
	combatantRequest
	HP int `json:"hp"`
}

type deckRequest struct {
	EncounterID string `json:"encounter_id"`
	CharacterID string `json:"character_id"`
}

type initDeckRequest struct {
	EncounterID string         `json:"encounter_id"`
	CharacterID string         `json:"character_id"`
	Composition map[string]int `json:"composition,omitempty"`
}

type discardRequest struct {
	EncounterID string `json:"encounter_id"`
	CharacterID string `json:"character_id"`
	CardID      string `json:"card_id"`
}

// ==================== Response views ====================

type statusView struct {
	Label     string `json:"label"`
	Remaining int    `json:"remaining"`
}

type combatantView struct {
	ID             string       `json:"id"`
	Kind           string       `json:"kind"`
	CharacterID    string       `json:"character_id,omitempty"`
	Name           string       `json:"name"`
	HPCurrent      int          `json:"hp_current"`
	HPMax          int          `json:"hp_max"`
	Initiative     int          `json:"initiative"`
	OrderIndex     int          `json:"order_index"`
	Hidden         bool         `json:"hidden"`
	Defeated       bool         `json:"defeated"`
	Statuses       []statusView `json:"statuses"`
	DeathSuccesses int          `json:"death_successes"`
	DeathFailures  int          `json:"death_failures"`
}

type encounterView struct {
	ID         string          `json:"id"`
	CampaignID string          `json:"campaign_id"`
	Status     string          `json:"status"`
	Round      int             `json:"round"`
	TurnIndex  int             `json:"turn_index"`
	CurrentID  string          `json:"current_id,omitempty"`
	Combatants []combatantView `json:"combatants"`
}

type deckView struct {
	CharacterID  string         `json:"character_id"`
	EncounterID  string         `json:"encounter_id"`
	HandLimit    int            `json:"hand_limit"`
	DrawCount    int            `json:"draw_count"`
	DiscardCount int            `json:"discard_count"`
	Hand         []catalog.Card `json:"hand"`
}

func toCombatantView(c combat.CombatantSnapshot) combatantView {
	statuses := make([]statusView, 0, len(c.Statuses))
	for _, s := range c.Statuses {
		statuses = append(statuses, statusView{Label: s.Label, Remaining: s.Remaining})
	}
	return combatantView{
		ID:             c.ID,
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

func toEncounterView(s combat.EncounterSnapshot) encounterView {
	combatants := make([]combatantView, 0, len(s.Combatants))
	for _, c := range s.Combatants {
		combatants = append(combatants, toCombatantView(c))
	}
	return encounterView{
		ID:         s.ID,
		CampaignID: s.CampaignID,
		Status:     s.Status.String(),
		Round:      s.Round,
		TurnIndex:  s.TurnIndex,
		CurrentID:  s.CurrentID,
		Combatants: combatants,
	}
}
