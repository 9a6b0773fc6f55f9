package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/questkeeper/encounter-server-go/internal/auth"
	"github.com/questkeeper/encounter-server-go/internal/combat"
)

const requestTimeout = 10 * time.Second

// Client is one websocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string

	mu         sync.RWMutex
	actor      auth.Actor
	campaignID string
	hello      bool
}

// session returns the authenticated identity and campaign in one locked
// read. The hub's broadcast goroutine calls this concurrently with a
// re-hello on the read pump, so the pair must never be observed
// half-applied.
func (c *Client) session() (auth.Actor, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.actor, c.campaignID, c.hello
}

// trySend enqueues a message, dropping it if the client's buffer is full.
func (c *Client) trySend(message []byte) {
	select {
	case c.send <- message:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			c.respond(Response{Type: "response", OK: false, Error: &WireError{
				Code:    CodeBadRequest,
				Message: "malformed request",
			}})
			continue
		}

		c.respond(c.handleRequest(req))
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}

func (c *Client) respond(resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		c.hub.logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	c.trySend(payload)
}

func (c *Client) handleRequest(req Request) Response {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if req.Op == OpHello {
		return c.handleHello(req)
	}
	if _, _, ok := c.session(); !ok {
		return errorResponse(req.ID, &WireError{
			Code:    CodeUnauthenticated,
			Message: "hello required before any other operation",
		})
	}

	data, err := c.dispatch(ctx, req)
	if err != nil {
		return errorResponse(req.ID, wireError(err))
	}
	return Response{ID: req.ID, Type: "response", OK: true, Data: data}
}

func (c *Client) handleHello(req Request) Response {
	var payload helloRequest
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		return errorResponse(req.ID, &WireError{Code: CodeBadRequest, Message: "malformed hello"})
	}
	if payload.CampaignID == "" {
		return errorResponse(req.ID, &WireError{Code: CodeBadRequest, Message: "campaign_id is required"})
	}

	var actor auth.Actor
	switch payload.Role {
	case "gm":
		if c.hub.gmPasswordHash == "" {
			return errorResponse(req.ID, &WireError{Code: CodeUnauthenticated, Message: "GM access is not configured"})
		}
		if !auth.CheckPassword(c.hub.gmPasswordHash, payload.Password) {
			return errorResponse(req.ID, &WireError{Code: CodeUnauthenticated, Message: "invalid GM password"})
		}
		actor = auth.Actor{Role: auth.RoleGM}
	case "player":
		if payload.PlayerID == "" {
			return errorResponse(req.ID, &WireError{Code: CodeBadRequest, Message: "player_id is required"})
		}
		actor = auth.Actor{
			Role:         auth.RolePlayer,
			PlayerID:     payload.PlayerID,
			CharacterIDs: payload.CharacterIDs,
		}
	default:
		return errorResponse(req.ID, &WireError{Code: CodeBadRequest, Message: "role must be gm or player"})
	}

	c.mu.Lock()
	c.actor = actor
	c.campaignID = payload.CampaignID
	c.hello = true
	c.mu.Unlock()

	c.hub.logger.Info("client authenticated",
		zap.String("remote", c.remote),
		zap.String("role", actor.Role.String()),
		zap.String("campaign_id", payload.CampaignID),
	)

	data := map[string]interface{}{"role": actor.Role.String()}
	if id, ok := c.hub.coordinator.ActiveEncounterID(payload.CampaignID); ok {
		data["active_encounter_id"] = id
	}
	return Response{ID: req.ID, Type: "response", OK: true, Data: data}
}

func (c *Client) dispatch(ctx context.Context, req Request) (interface{}, error) {
	actor, _, _ := c.session()
	co := c.hub.coordinator

	switch req.Op {
	case OpStartCombat:
		var payload campaignRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		result, err := co.StartCombat(ctx, actor, payload.CampaignID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"encounter_id":     result.EncounterID,
			"decks_created":    result.Created,
			"skipped_existing": result.SkippedExisting,
			"skipped_no_deck":  result.SkippedNoDeck,
		}, nil

	case OpEndCombat:
		var payload campaignRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		snap, err := co.EndCombat(ctx, actor, payload.CampaignID)
		if err != nil {
			return nil, err
		}
		return toEncounterView(snap), nil

	case OpAddCombatant:
		var payload addCombatantRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		kind, ok := combat.ParseCombatantKind(payload.Kind)
		if !ok {
			return nil, badRequest("unknown combatant kind " + payload.Kind)
		}
		snap, err := co.AddCombatant(ctx, actor, payload.EncounterID, combat.AddCombatantRequest{
			Kind:        kind,
			CharacterID: payload.CharacterID,
			Name:        payload.Name,
			HPCurrent:   payload.HPCurrent,
			HPMax:       payload.HPMax,
			Hidden:      payload.Hidden,
		})
		if err != nil {
			return nil, err
		}
		return toCombatantView(snap), nil

	case OpSetInitiative:
		var payload setInitiativeRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		if err := co.SetInitiative(ctx, actor, payload.EncounterID, payload.Initiatives); err != nil {
			return nil, err
		}
		return nil, nil

	case OpAdvanceTurn:
		var payload encounterRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		adv, err := co.AdvanceTurn(ctx, actor, payload.EncounterID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"round":            adv.Round,
			"turn_index":       adv.TurnIndex,
			"current_id":       adv.CurrentID,
			"ticked_id":        adv.TickedID,
			"expired_statuses": adv.ExpiredStatuses,
		}, nil

	case OpSetDefeated:
		var payload setDefeatedRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		snap, err := co.SetDefeated(ctx, actor, payload.EncounterID, payload.CombatantID, payload.Defeated)
		if err != nil {
			return nil, err
		}
		return toCombatantView(snap), nil

	case OpSetHidden:
		var payload setHiddenRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		snap, err := co.SetHidden(ctx, actor, payload.EncounterID, payload.CombatantID, payload.Hidden)
		if err != nil {
			return nil, err
		}
		return toCombatantView(snap), nil

	case OpAddStatus:
		var payload statusRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		snap, err := co.AddStatus(ctx, actor, payload.EncounterID, payload.CombatantID, payload.Label, payload.Remaining)
		if err != nil {
			return nil, err
		}
		return toCombatantView(snap), nil

	case OpRemoveStatus:
		var payload statusRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		snap, err := co.RemoveStatus(ctx, actor, payload.EncounterID, payload.CombatantID, payload.Label)
		if err != nil {
			return nil, err
		}
		return toCombatantView(snap), nil

	case OpSetDeathSaves:
		var payload deathSavesRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		snap, err := co.SetDeathSaves(ctx, actor, payload.EncounterID, payload.CombatantID, payload.Successes, payload.Failures)
		if err != nil {
			return nil, err
		}
		return toCombatantView(snap), nil

	case OpSetHP:
		var payload setHPRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		snap, err := co.SetHP(ctx, actor, payload.EncounterID, payload.CombatantID, payload.HP)
		if err != nil {
			return nil, err
		}
		return toCombatantView(snap), nil

	case OpInitDeck:
		var payload initDeckRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		result, err := co.InitDeck(ctx, actor, payload.EncounterID, payload.CharacterID, payload.Composition)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"already_exists": result.AlreadyExists,
			"hand_limit":     result.Deck.HandLimit,
			"draw_count":     len(result.Deck.DrawPile),
		}, nil

	case OpDrawToLimit:
		var payload deckRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		drawn, err := co.DrawToLimit(ctx, actor, payload.EncounterID, payload.CharacterID, req.Token)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"drawn": c.hub.cardViews(ctx, drawn)}, nil

	case OpMoveToDiscard:
		var payload discardRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		if err := co.MoveToDiscard(ctx, actor, payload.EncounterID, payload.CharacterID, payload.CardID); err != nil {
			return nil, err
		}
		return nil, nil

	case OpUndoLastAction:
		var payload deckRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		action, err := co.UndoLastAction(ctx, actor, payload.EncounterID, payload.CharacterID, req.Token)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"undone_kind": action.Kind.String()}, nil

	case OpGetHand:
		var payload deckRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		hand, err := co.GetHand(ctx, actor, payload.EncounterID, payload.CharacterID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"hand": c.hub.cardViews(ctx, hand)}, nil

	case OpGetDeck:
		var payload deckRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		view, err := co.Deck(ctx, actor, payload.EncounterID, payload.CharacterID)
		if err != nil {
			return nil, err
		}
		return deckView{
			CharacterID:  view.CharacterID,
			EncounterID:  view.EncounterID,
			HandLimit:    view.HandLimit,
			DrawCount:    view.DrawCount,
			DiscardCount: view.DiscardCount,
			Hand:         c.hub.cardViews(ctx, view.Hand),
		}, nil

	case OpGetEncounter:
		var payload encounterRequest
		if err := decode(req.Data, &payload); err != nil {
			return nil, err
		}
		snap, err := co.Encounter(ctx, actor, payload.EncounterID)
		if err != nil {
			return nil, err
		}
		return toEncounterView(snap), nil

	default:
		return nil, badRequest("unknown operation " + req.Op)
	}
}

func errorResponse(id string, wireErr *WireError) Response {
	return Response{ID: id, Type: "response", OK: false, Error: wireErr}
}

// badRequestError carries malformed-payload failures through the combat
// error mapping untouched.
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return badRequestError{msg: msg} }

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return badRequest("request data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("malformed request data")
	}
	return nil
}
