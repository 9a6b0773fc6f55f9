package combat

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/questkeeper/encounter-server-go/internal/auth"
	"github.com/questkeeper/encounter-server-go/internal/random"
	"github.com/questkeeper/encounter-server-go/internal/sheets"
	"github.com/questkeeper/encounter-server-go/internal/storage"
)

// DefaultHandLimit is the fixed hand limit applied to decks created at
// combat start when configuration does not override it.
const DefaultHandLimit = 4

type deckKey struct {
	characterID string
	encounterID string
}

// Options tunes the coordinator.
type Options struct {
	// HandLimit is the fixed hand limit for decks created at combat start.
	HandLimit int
	// LockWait bounds how long an operation waits for a busy aggregate.
	LockWait time.Duration
	// Seed overrides shuffle seed generation (tests).
	Seed func() (int64, error)
}

// Coordinator orchestrates encounter lifecycle and is the single entry
// point for all combat operations. It owns the campaign to active
// encounter mapping explicitly, the live Encounter and Deck aggregates,
// the sheet-store collaborator, and the persistence mirror.
type Coordinator struct {
	logger    *zap.Logger
	sheets    sheets.Store
	store     storage.Store
	handLimit int
	lockWait  time.Duration
	newSeed   func() (int64, error)

	mu               sync.RWMutex
	encounters       map[string]*Encounter
	activeByCampaign map[string]string
	decks            map[deckKey]*Deck

	handlerMu sync.RWMutex
	handler   EventHandler
}

// NewCoordinator creates a coordinator. store may be nil to run without a
// persistence mirror.
func NewCoordinator(sheetStore sheets.Store, store storage.Store, opts Options, logger *zap.Logger) *Coordinator {
	if opts.HandLimit <= 0 {
		opts.HandLimit = DefaultHandLimit
	}
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultLockWait
	}
	if opts.Seed == nil {
		opts.Seed = random.NewSeed
	}
	return &Coordinator{
		logger:           logger,
		sheets:           sheetStore,
		store:            store,
		handLimit:        opts.HandLimit,
		lockWait:         opts.LockWait,
		newSeed:          opts.Seed,
		encounters:       make(map[string]*Encounter),
		activeByCampaign: make(map[string]string),
		decks:            make(map[deckKey]*Deck),
	}
}

// SetEventHandler registers the handler receiving coordinator events.
func (co *Coordinator) SetEventHandler(handler EventHandler) {
	co.handlerMu.Lock()
	defer co.handlerMu.Unlock()
	co.handler = handler
}

func (co *Coordinator) emit(event Event) {
	co.handlerMu.RLock()
	handler := co.handler
	co.handlerMu.RUnlock()

	if handler != nil {
		// Run the handler on its own goroutine so broadcast work never
		// blocks combat operations.
		go handler(event)
	}
}

func (co *Coordinator) event(typ string, enc *Encounter, data map[string]interface{}) Event {
	return Event{
		Type:        typ,
		CampaignID:  enc.CampaignID,
		EncounterID: enc.ID,
		Timestamp:   time.Now(),
		Data:        data,
	}
}

// ==================== Lookup helpers ====================

func (co *Coordinator) encounter(id string) (*Encounter, error) {
	co.mu.RLock()
	defer co.mu.RUnlock()

	enc, ok := co.encounters[id]
	if !ok {
		return nil, notFound("encounter", id)
	}
	return enc, nil
}

func (co *Coordinator) activeEncounter(campaignID string) (*Encounter, error) {
	co.mu.RLock()
	defer co.mu.RUnlock()

	id, ok := co.activeByCampaign[campaignID]
	if !ok {
		return nil, notFound("campaign", campaignID)
	}
	return co.encounters[id], nil
}

func (co *Coordinator) deck(encounterID, characterID string) (*Deck, error) {
	co.mu.RLock()
	defer co.mu.RUnlock()

	d, ok := co.decks[deckKey{characterID: characterID, encounterID: encounterID}]
	if !ok {
		return nil, notFound("deck", characterID)
	}
	return d, nil
}

// ==================== Permission helpers ====================

func requireGM(actor auth.Actor, op string) error {
	if !actor.IsGM() {
		return permissionDenied("operation", op, "requires GM role")
	}
	return nil
}

func requireDeckAccess(actor auth.Actor, characterID, op string) error {
	if actor.IsGM() || actor.Owns(characterID) {
		return nil
	}
	return permissionDenied("deck", characterID, op+" requires GM role or deck ownership")
}

// requireStatusAccess: the GM may mutate anyone's statuses; a player only
// their own character's.
func requireStatusAccess(actor auth.Actor, c CombatantSnapshot) error {
	if actor.IsGM() {
		return nil
	}
	if c.Kind == KindCharacter && actor.Owns(c.CharacterID) {
		return nil
	}
	return permissionDenied("combatant", c.ID, "status mutation on others requires GM role")
}

// requireHPAccess: character HP belongs to the owning player (the sheet
// store stays the source of truth for it); the GM mutates npc/enemy HP.
func requireHPAccess(actor auth.Actor, c CombatantSnapshot) error {
	if c.Kind == KindCharacter {
		if actor.Owns(c.CharacterID) {
			return nil
		}
		return permissionDenied("combatant", c.ID, "character HP is owned by its player")
	}
	return requireGM(actor, "SetHP")
}

// ==================== Encounter lifecycle ====================

// StartResult reports what StartCombat did.
type StartResult struct {
	EncounterID     string
	Created         int
	SkippedExisting int
	SkippedNoDeck   int
}

// StartCombat creates an active encounter for the campaign and
// initializes one deck per player character that brings a combat deck.
func (co *Coordinator) StartCombat(ctx context.Context, actor auth.Actor, campaignID string) (StartResult, error) {
	if err := requireGM(actor, "StartCombat"); err != nil {
		return StartResult{}, err
	}
	if campaignID == "" {
		return StartResult{}, validation("campaign", "", "campaign reference is required")
	}

	co.mu.Lock()
	if existing, ok := co.activeByCampaign[campaignID]; ok {
		co.mu.Unlock()
		return StartResult{}, invalidState("campaign", campaignID, "combat already active in encounter "+existing)
	}
	enc := NewEncounter(campaignID, co.lockWait)
	co.encounters[enc.ID] = enc
	co.activeByCampaign[campaignID] = enc.ID
	co.mu.Unlock()

	characters, err := co.sheets.ByCampaign(ctx, campaignID)
	if err != nil {
		co.mu.Lock()
		delete(co.encounters, enc.ID)
		delete(co.activeByCampaign, campaignID)
		co.mu.Unlock()
		return StartResult{}, fmt.Errorf("read campaign characters: %w", err)
	}

	result := StartResult{EncounterID: enc.ID}
	for _, sheet := range characters {
		if !sheet.HasDeck() {
			result.SkippedNoDeck++
			continue
		}
		_, created, deckErr := co.initDeck(ctx, enc, sheet.ID, sheet.Deck)
		switch {
		case deckErr != nil:
			co.logger.Warn("failed to initialize deck at combat start",
				zap.String("encounter_id", enc.ID),
				zap.String("character_id", sheet.ID),
				zap.Error(deckErr),
			)
		case created:
			result.Created++
		default:
			result.SkippedExisting++
		}
	}

	if snap, snapErr := enc.Snapshot(ctx); snapErr == nil {
		co.persistEncounter(ctx, snap)
	}

	co.logger.Info("combat started",
		zap.String("campaign_id", campaignID),
		zap.String("encounter_id", enc.ID),
		zap.Int("decks_created", result.Created),
		zap.Int("skipped_existing", result.SkippedExisting),
		zap.Int("skipped_no_deck", result.SkippedNoDeck),
	)

	co.emit(co.event(EventEncounterStarted, enc, map[string]interface{}{
		"decks_created": result.Created,
	}))

	return result, nil
}

// EndCombat marks the campaign's active encounter ended and clears the
// active pointer. Combatants, decks and action logs are retained.
func (co *Coordinator) EndCombat(ctx context.Context, actor auth.Actor, campaignID string) (EncounterSnapshot, error) {
	if err := requireGM(actor, "EndCombat"); err != nil {
		return EncounterSnapshot{}, err
	}

	enc, err := co.activeEncounter(campaignID)
	if err != nil {
		return EncounterSnapshot{}, err
	}
	if err := enc.End(ctx); err != nil {
		return EncounterSnapshot{}, err
	}

	co.mu.Lock()
	delete(co.activeByCampaign, campaignID)
	co.mu.Unlock()

	snap, err := enc.Snapshot(ctx)
	if err != nil {
		return EncounterSnapshot{}, err
	}
	co.persistEncounter(ctx, snap)
	co.persistAllDecks(ctx, enc.ID)

	co.logger.Info("combat ended",
		zap.String("campaign_id", campaignID),
		zap.String("encounter_id", enc.ID),
		zap.Int("rounds", snap.Round),
	)

	co.emit(co.event(EventEncounterEnded, enc, map[string]interface{}{
		"rounds": snap.Round,
	}))

	return snap, nil
}

// ==================== Combatant operations ====================

// AddCombatantRequest carries an AddCombatant call. For character kind,
// name and HP are seeded from the character's sheet; explicit values are
// used for npc/enemy kinds.
type AddCombatantRequest struct {
	Kind        CombatantKind
	CharacterID string
	Name        string
	HPCurrent   int
	HPMax       int
	Hidden      bool
}

// AddCombatant inserts a combatant into the encounter roster.
func (co *Coordinator) AddCombatant(ctx context.Context, actor auth.Actor, encounterID string, req AddCombatantRequest) (CombatantSnapshot, error) {
	if err := requireGM(actor, "AddCombatant"); err != nil {
		return CombatantSnapshot{}, err
	}
	enc, err := co.encounter(encounterID)
	if err != nil {
		return CombatantSnapshot{}, err
	}

	params := AddCombatantParams{
		Kind:        req.Kind,
		CharacterID: req.CharacterID,
		Name:        req.Name,
		HPCurrent:   req.HPCurrent,
		HPMax:       req.HPMax,
		Hidden:      req.Hidden,
	}
	if req.Kind == KindCharacter {
		sheet, sheetErr := co.sheets.Character(ctx, req.CharacterID)
		if sheetErr != nil {
			return CombatantSnapshot{}, notFound("character", req.CharacterID)
		}
		if params.Name == "" {
			params.Name = sheet.Name
		}
		params.HPMax = sheet.HPMax
		params.HPCurrent = sheet.HPCurrent
	}

	snap, err := enc.AddCombatant(ctx, params)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	co.persistEncounterState(ctx, enc)

	co.logger.Info("combatant added",
		zap.String("encounter_id", encounterID),
		zap.String("combatant_id", snap.ID),
		zap.String("kind", snap.Kind.String()),
		zap.String("name", snap.Name),
	)

	co.emit(co.event(EventCombatantAdded, enc, map[string]interface{}{
		"combatant_id": snap.ID,
		"name":         snap.Name,
	}))

	return snap, nil
}

// SetInitiative applies initiative values and recomputes the order. The
// turn pointer is left untouched by design.
func (co *Coordinator) SetInitiative(ctx context.Context, actor auth.Actor, encounterID string, initiatives map[string]int) error {
	if err := requireGM(actor, "SetInitiative"); err != nil {
		return err
	}
	enc, err := co.encounter(encounterID)
	if err != nil {
		return err
	}
	if err := enc.SetInitiative(ctx, initiatives); err != nil {
		return err
	}
	co.persistEncounterState(ctx, enc)

	co.emit(co.event(EventOrderChanged, enc, nil))
	return nil
}

// AdvanceTurn moves the turn pointer, ticking the leaving combatant's
// status effects.
func (co *Coordinator) AdvanceTurn(ctx context.Context, actor auth.Actor, encounterID string) (TurnAdvance, error) {
	if err := requireGM(actor, "AdvanceTurn"); err != nil {
		return TurnAdvance{}, err
	}
	enc, err := co.encounter(encounterID)
	if err != nil {
		return TurnAdvance{}, err
	}
	adv, err := enc.AdvanceTurn(ctx)
	if err != nil {
		return TurnAdvance{}, err
	}
	co.persistEncounterState(ctx, enc)

	co.logger.Debug("turn advanced",
		zap.String("encounter_id", encounterID),
		zap.Int("round", adv.Round),
		zap.Int("turn_index", adv.TurnIndex),
		zap.Strings("expired_statuses", adv.ExpiredStatuses),
	)

	co.emit(co.event(EventTurnAdvanced, enc, map[string]interface{}{
		"round":      adv.Round,
		"turn_index": adv.TurnIndex,
		"current_id": adv.CurrentID,
	}))

	return adv, nil
}

// SetDefeated marks or revives a combatant.
func (co *Coordinator) SetDefeated(ctx context.Context, actor auth.Actor, encounterID, combatantID string, defeated bool) (CombatantSnapshot, error) {
	if err := requireGM(actor, "SetDefeated"); err != nil {
		return CombatantSnapshot{}, err
	}
	enc, err := co.encounter(encounterID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	snap, err := enc.SetDefeated(ctx, combatantID, defeated)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	co.persistEncounterState(ctx, enc)

	co.emit(co.event(EventCombatantUpdated, enc, map[string]interface{}{
		"combatant_id": snap.ID,
		"defeated":     snap.Defeated,
	}))
	return snap, nil
}

// SetHidden toggles a combatant's visibility to players.
func (co *Coordinator) SetHidden(ctx context.Context, actor auth.Actor, encounterID, combatantID string, hidden bool) (CombatantSnapshot, error) {
	if err := requireGM(actor, "SetHidden"); err != nil {
		return CombatantSnapshot{}, err
	}
	enc, err := co.encounter(encounterID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	snap, err := enc.SetHidden(ctx, combatantID, hidden)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	co.persistEncounterState(ctx, enc)

	co.emit(co.event(EventCombatantUpdated, enc, map[string]interface{}{
		"combatant_id": snap.ID,
	}))
	return snap, nil
}

func (co *Coordinator) combatantSnapshot(ctx context.Context, enc *Encounter, combatantID string) (CombatantSnapshot, error) {
	snap, err := enc.Snapshot(ctx)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	for _, c := range snap.Combatants {
		if c.ID == combatantID {
			return c, nil
		}
	}
	return CombatantSnapshot{}, notFound("combatant", combatantID)
}

// AddStatus attaches a status effect to a combatant.
func (co *Coordinator) AddStatus(ctx context.Context, actor auth.Actor, encounterID, combatantID, label string, remaining int) (CombatantSnapshot, error) {
	enc, err := co.encounter(encounterID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	target, err := co.combatantSnapshot(ctx, enc, combatantID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	if err := requireStatusAccess(actor, target); err != nil {
		return CombatantSnapshot{}, err
	}
	snap, err := enc.AddStatus(ctx, combatantID, label, remaining)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	co.persistEncounterState(ctx, enc)

	co.emit(co.event(EventCombatantUpdated, enc, map[string]interface{}{
		"combatant_id": snap.ID,
		"status":       label,
	}))
	return snap, nil
}

// RemoveStatus removes a status effect by label.
func (co *Coordinator) RemoveStatus(ctx context.Context, actor auth.Actor, encounterID, combatantID, label string) (CombatantSnapshot, error) {
	enc, err := co.encounter(encounterID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	target, err := co.combatantSnapshot(ctx, enc, combatantID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	if err := requireStatusAccess(actor, target); err != nil {
		return CombatantSnapshot{}, err
	}
	snap, err := enc.RemoveStatus(ctx, combatantID, label)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	co.persistEncounterState(ctx, enc)

	co.emit(co.event(EventCombatantUpdated, enc, map[string]interface{}{
		"combatant_id": snap.ID,
	}))
	return snap, nil
}

// SetDeathSaves sets a combatant's death-save counters, clamped to [0,3].
func (co *Coordinator) SetDeathSaves(ctx context.Context, actor auth.Actor, encounterID, combatantID string, successes, failures int) (CombatantSnapshot, error) {
	enc, err := co.encounter(encounterID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	target, err := co.combatantSnapshot(ctx, enc, combatantID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	if err := requireStatusAccess(actor, target); err != nil {
		return CombatantSnapshot{}, err
	}
	snap, err := enc.SetDeathSaves(ctx, combatantID, successes, failures)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	co.persistEncounterState(ctx, enc)

	co.emit(co.event(EventCombatantUpdated, enc, map[string]interface{}{
		"combatant_id": snap.ID,
	}))
	return snap, nil
}

// SetHP sets a combatant's displayed HP, clamped into [0, hp_max].
func (co *Coordinator) SetHP(ctx context.Context, actor auth.Actor, encounterID, combatantID string, hp int) (CombatantSnapshot, error) {
	enc, err := co.encounter(encounterID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	target, err := co.combatantSnapshot(ctx, enc, combatantID)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	if err := requireHPAccess(actor, target); err != nil {
		return CombatantSnapshot{}, err
	}
	snap, err := enc.SetHP(ctx, combatantID, hp)
	if err != nil {
		return CombatantSnapshot{}, err
	}
	co.persistEncounterState(ctx, enc)

	co.emit(co.event(EventCombatantUpdated, enc, map[string]interface{}{
		"combatant_id": snap.ID,
		"hp_current":   snap.HPCurrent,
	}))
	return snap, nil
}

// ==================== Deck operations ====================

// InitDeckResult reports one InitDeck call.
type InitDeckResult struct {
	Deck          DeckSnapshot
	AlreadyExists bool
}

// InitDeck creates the deck for (character, encounter). Idempotent: a
// second call reports AlreadyExists and changes nothing. A nil
// composition reads the character's sheet.
func (co *Coordinator) InitDeck(ctx context.Context, actor auth.Actor, encounterID, characterID string, composition map[string]int) (InitDeckResult, error) {
	if err := requireDeckAccess(actor, characterID, "InitDeck"); err != nil {
		return InitDeckResult{}, err
	}
	enc, err := co.encounter(encounterID)
	if err != nil {
		return InitDeckResult{}, err
	}

	if composition == nil {
		sheet, sheetErr := co.sheets.Character(ctx, characterID)
		if sheetErr != nil {
			return InitDeckResult{}, notFound("character", characterID)
		}
		if !sheet.HasDeck() {
			return InitDeckResult{}, validation("deck", characterID, "character has no combat deck")
		}
		composition = sheet.Deck
	}

	d, created, err := co.initDeck(ctx, enc, characterID, composition)
	if err != nil {
		return InitDeckResult{}, err
	}
	snap, err := d.Snapshot(ctx)
	if err != nil {
		return InitDeckResult{}, err
	}
	return InitDeckResult{Deck: snap, AlreadyExists: !created}, nil
}

// initDeck creates and registers a deck unless one already exists for the
// (character, encounter) pair. Returns created=false for the no-op path.
func (co *Coordinator) initDeck(ctx context.Context, enc *Encounter, characterID string, composition map[string]int) (*Deck, bool, error) {
	key := deckKey{characterID: characterID, encounterID: enc.ID}

	co.mu.Lock()
	if existing, ok := co.decks[key]; ok {
		co.mu.Unlock()
		return existing, false, nil
	}
	co.mu.Unlock()

	seed, err := co.newSeed()
	if err != nil {
		return nil, false, fmt.Errorf("generate shuffle seed: %w", err)
	}
	d, err := NewDeck(characterID, enc.ID, composition, co.handLimit, rand.New(rand.NewSource(seed)), co.lockWait)
	if err != nil {
		return nil, false, err
	}

	co.mu.Lock()
	if existing, ok := co.decks[key]; ok {
		// Lost a race to a concurrent init; the first deck wins.
		co.mu.Unlock()
		return existing, false, nil
	}
	co.decks[key] = d
	co.mu.Unlock()

	if snap, snapErr := d.Snapshot(ctx); snapErr == nil {
		co.persistDeck(ctx, snap)
	}

	co.logger.Info("deck initialized",
		zap.String("encounter_id", enc.ID),
		zap.String("character_id", characterID),
		zap.Int("cards", deckSize(composition)),
		zap.Int("hand_limit", co.handLimit),
	)

	co.emit(co.event(EventDeckInitialized, enc, map[string]interface{}{
		"character_id": characterID,
	}))

	return d, true, nil
}

// DrawToLimit draws the character's hand up to the hand limit. token, if
// non-empty, deduplicates network retries of the same logical draw.
func (co *Coordinator) DrawToLimit(ctx context.Context, actor auth.Actor, encounterID, characterID, token string) ([]string, error) {
	if err := requireDeckAccess(actor, characterID, "DrawToLimit"); err != nil {
		return nil, err
	}
	enc, d, err := co.activeDeck(ctx, encounterID, characterID)
	if err != nil {
		return nil, err
	}

	res, err := d.DrawToLimit(ctx, token)
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		return res.Drawn, nil
	}
	if res.Action != nil {
		co.persistDeckState(ctx, d)
		co.persistPileAppend(ctx, d.ID, *res.Action)

		co.emit(co.event(EventCardsDrawn, enc, map[string]interface{}{
			"character_id": characterID,
			"count":        len(res.Drawn),
		}))
	}
	return res.Drawn, nil
}

// MoveToDiscard moves one card from the character's hand to discard.
func (co *Coordinator) MoveToDiscard(ctx context.Context, actor auth.Actor, encounterID, characterID, cardID string) error {
	if err := requireDeckAccess(actor, characterID, "MoveToDiscard"); err != nil {
		return err
	}
	enc, d, err := co.activeDeck(ctx, encounterID, characterID)
	if err != nil {
		return err
	}

	action, err := d.MoveToDiscard(ctx, cardID)
	if err != nil {
		return err
	}
	co.persistDeckState(ctx, d)
	co.persistPileAppend(ctx, d.ID, action)

	co.emit(co.event(EventCardDiscarded, enc, map[string]interface{}{
		"character_id": characterID,
		"card_id":      cardID,
	}))
	return nil
}

// UndoLastAction undoes the most recent pile action of the character's
// deck. GM only. token deduplicates retries so a doubled request never
// performs a second undo.
func (co *Coordinator) UndoLastAction(ctx context.Context, actor auth.Actor, encounterID, characterID, token string) (PileAction, error) {
	if err := requireGM(actor, "UndoLastAction"); err != nil {
		return PileAction{}, err
	}
	enc, d, err := co.activeDeck(ctx, encounterID, characterID)
	if err != nil {
		return PileAction{}, err
	}

	res, err := d.UndoLast(ctx, token)
	if err != nil {
		return PileAction{}, err
	}
	if res.Replayed {
		return res.Action, nil
	}
	co.persistDeckState(ctx, d)
	co.persistPileRemove(ctx, d.ID, res.Action.ID)

	co.emit(co.event(EventActionUndone, enc, map[string]interface{}{
		"character_id": characterID,
		"kind":         res.Action.Kind.String(),
	}))
	return res.Action, nil
}

// GetHand returns the character's current hand.
func (co *Coordinator) GetHand(ctx context.Context, actor auth.Actor, encounterID, characterID string) ([]string, error) {
	if err := requireDeckAccess(actor, characterID, "GetHand"); err != nil {
		return nil, err
	}
	d, err := co.deck(encounterID, characterID)
	if err != nil {
		return nil, err
	}
	return d.Hand(ctx)
}

// DeckView is the player-safe view of a deck: pile sizes plus the hand.
// The draw pile order is never exposed.
type DeckView struct {
	CharacterID  string
	EncounterID  string
	HandLimit    int
	DrawCount    int
	DiscardCount int
	Hand         []string
}

// Deck returns the player-safe view of the character's deck.
func (co *Coordinator) Deck(ctx context.Context, actor auth.Actor, encounterID, characterID string) (DeckView, error) {
	if err := requireDeckAccess(actor, characterID, "GetDeck"); err != nil {
		return DeckView{}, err
	}
	d, err := co.deck(encounterID, characterID)
	if err != nil {
		return DeckView{}, err
	}
	snap, err := d.Snapshot(ctx)
	if err != nil {
		return DeckView{}, err
	}
	return DeckView{
		CharacterID:  snap.CharacterID,
		EncounterID:  snap.EncounterID,
		HandLimit:    snap.HandLimit,
		DrawCount:    len(snap.DrawPile),
		DiscardCount: len(snap.Discard),
		Hand:         snap.Hand,
	}, nil
}

// Encounter returns a snapshot of the encounter: full for the GM,
// redacted (hidden combatants and initiative removed) for players.
func (co *Coordinator) Encounter(ctx context.Context, actor auth.Actor, encounterID string) (EncounterSnapshot, error) {
	enc, err := co.encounter(encounterID)
	if err != nil {
		return EncounterSnapshot{}, err
	}
	snap, err := enc.Snapshot(ctx)
	if err != nil {
		return EncounterSnapshot{}, err
	}
	if !actor.IsGM() {
		snap = snap.Redacted()
	}
	return snap, nil
}

// ActiveEncounterID returns the campaign's active encounter id, if any.
func (co *Coordinator) ActiveEncounterID(campaignID string) (string, bool) {
	co.mu.RLock()
	defer co.mu.RUnlock()
	id, ok := co.activeByCampaign[campaignID]
	return id, ok
}

// activeDeck resolves the deck and checks the encounter is still active;
// mutating pile operations are invalid after EndCombat.
func (co *Coordinator) activeDeck(ctx context.Context, encounterID, characterID string) (*Encounter, *Deck, error) {
	enc, err := co.encounter(encounterID)
	if err != nil {
		return nil, nil, err
	}
	snap, err := enc.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	if snap.Status != StatusActive {
		return nil, nil, invalidState("encounter", encounterID, "encounter has ended")
	}
	d, err := co.deck(encounterID, characterID)
	if err != nil {
		return nil, nil, err
	}
	return enc, d, nil
}

func deckSize(composition map[string]int) int {
	total := 0
	for _, qty := range composition {
		total += qty
	}
	return total
}
