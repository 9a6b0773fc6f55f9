package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/questkeeper/encounter-server-go/internal/auth"
	"github.com/questkeeper/encounter-server-go/internal/catalog"
	"github.com/questkeeper/encounter-server-go/internal/combat"
)

// Hub tracks connected clients and fans coordinator events out to them.
type Hub struct {
	logger         *zap.Logger
	coordinator    *combat.Coordinator
	catalog        catalog.Catalog
	gmPasswordHash string

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a hub. gmPasswordHash is the bcrypt hash GM connections
// authenticate against; empty disables GM access.
func NewHub(coordinator *combat.Coordinator, cardCatalog catalog.Catalog, gmPasswordHash string, logger *zap.Logger) *Hub {
	return &Hub{
		logger:         logger,
		coordinator:    coordinator,
		catalog:        cardCatalog,
		gmPasswordHash: gmPasswordHash,
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		clients:        make(map[*Client]bool),
	}
}

// Run processes client registration until ctx is cancelled, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("remote", client.remote))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("remote", client.remote))

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// HandleEvent is registered as the coordinator's event handler. It pushes
// the event envelope to every client of the campaign, followed by a fresh
// per-client encounter view so players see redacted state and the GM sees
// everything.
func (h *Hub) HandleEvent(event combat.Event) {
	envelope, err := json.Marshal(EventMessage{
		Type:      "event",
		Event:     event.Type,
		Timestamp: event.Timestamp,
		Data:      event.Data,
	})
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Identity is snapshotted per client under its lock; a re-hello on the
	// read pump must not tear the actor used for redaction.
	type target struct {
		client *Client
		actor  auth.Actor
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.clients))
	for client := range h.clients {
		actor, campaignID, ok := client.session()
		if ok && campaignID == event.CampaignID {
			targets = append(targets, target{client: client, actor: actor})
		}
	}
	h.mu.RUnlock()

	for _, tgt := range targets {
		tgt.client.trySend(envelope)

		snap, snapErr := h.coordinator.Encounter(ctx, tgt.actor, event.EncounterID)
		if snapErr != nil {
			continue
		}
		state, marshalErr := json.Marshal(EventMessage{
			Type:      "encounter_state",
			Event:     event.Type,
			Timestamp: event.Timestamp,
			Data:      toEncounterView(snap),
		})
		if marshalErr != nil {
			continue
		}
		tgt.client.trySend(state)
	}
}

// cardViews decorates card ids with catalog display data. A missing
// catalog or lookup failure falls back to id-only stubs.
func (h *Hub) cardViews(ctx context.Context, hand []string) []catalog.Card {
	if h.catalog != nil {
		if cards, err := h.catalog.Cards(ctx, hand); err == nil {
			return cards
		}
	}
	cards := make([]catalog.Card, 0, len(hand))
	for _, id := range hand {
		cards = append(cards, catalog.Card{ID: id, Name: id})
	}
	return cards
}
