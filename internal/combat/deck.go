package combat

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Deck owns one character's draw/hand/discard piles for the life of an
// encounter. The draw pile is ordered (front = next card); hand and
// discard are multisets. Across Draw/Move/Undo the sum of the three pile
// sizes is constant.
type Deck struct {
	ID          string
	CharacterID string
	EncounterID string
	HandLimit   int

	draw    []string
	hand    []string
	discard []string
	log     *ActionLog
	version uint64
	rng     *rand.Rand

	// Idempotency: the last applied request token per operation, so an
	// exact network retry replays the recorded result instead of
	// consuming another limit-draw or a second undo.
	lastDrawToken  string
	lastDrawResult []string
	lastUndoToken  string
	lastUndoAction PileAction

	sem      sem
	lockWait time.Duration
}

// NewDeck flattens the composition, shuffles it uniformly into the draw
// pile, and starts with empty hand and discard piles.
func NewDeck(characterID, encounterID string, composition map[string]int, handLimit int, rng *rand.Rand, lockWait time.Duration) (*Deck, error) {
	if characterID == "" {
		return nil, validation("deck", "", "character reference is required")
	}
	if handLimit <= 0 {
		return nil, validation("deck", characterID, "hand limit must be positive")
	}
	if len(composition) == 0 {
		return nil, validation("deck", characterID, "deck composition is empty")
	}

	// Flatten deterministically (sorted card ids) so the shuffle is the
	// only source of randomness.
	cardIDs := make([]string, 0, len(composition))
	for id := range composition {
		cardIDs = append(cardIDs, id)
	}
	sort.Strings(cardIDs)

	draw := make([]string, 0)
	for _, id := range cardIDs {
		qty := composition[id]
		if id == "" || qty <= 0 {
			return nil, validation("card", id, "composition requires positive quantities")
		}
		for i := 0; i < qty; i++ {
			draw = append(draw, id)
		}
	}

	d := &Deck{
		ID:          uuid.NewString(),
		CharacterID: characterID,
		EncounterID: encounterID,
		HandLimit:   handLimit,
		draw:        draw,
		hand:        make([]string, 0),
		discard:     make([]string, 0),
		log:         NewActionLog(),
		rng:         rng,
		sem:         newSem(),
		lockWait:    lockWait,
	}
	d.shuffle(d.draw)
	return d, nil
}

// shuffle performs a uniform Fisher-Yates permutation of pile in place.
func (d *Deck) shuffle(pile []string) {
	d.rng.Shuffle(len(pile), func(i, j int) {
		pile[i], pile[j] = pile[j], pile[i]
	})
}

func (d *Deck) lock(ctx context.Context) error {
	if !d.sem.acquire(ctx, d.lockWait) {
		return conflict("deck", d.ID, "aggregate busy")
	}
	return nil
}

// DrawResult reports one DrawToLimit call.
type DrawResult struct {
	Drawn    []string
	Action   *PileAction
	Replayed bool
}

// DrawToLimit pops cards from the front of the draw pile into the hand
// until the hand holds HandLimit cards. An empty draw pile reshuffles the
// discard pile in (designed fallback, not an error); when both piles run
// out the draw stops early. One Draw action is logged when anything was
// drawn. Passing the token of the previous call replays its result.
func (d *Deck) DrawToLimit(ctx context.Context, token string) (DrawResult, error) {
	if err := d.lock(ctx); err != nil {
		return DrawResult{}, err
	}
	defer d.sem.release()

	if token != "" && token == d.lastDrawToken {
		return DrawResult{Drawn: copyIDs(d.lastDrawResult), Replayed: true}, nil
	}

	drawn := make([]string, 0)
	for len(d.hand) < d.HandLimit {
		if len(d.draw) == 0 {
			if len(d.discard) == 0 {
				break
			}
			d.draw = d.discard
			d.discard = make([]string, 0)
			d.shuffle(d.draw)
		}
		card := d.draw[0]
		d.draw = d.draw[1:]
		d.hand = append(d.hand, card)
		drawn = append(drawn, card)
	}

	var action *PileAction
	if len(drawn) > 0 {
		a := newDrawAction(drawn)
		d.log.Append(a)
		action = &a
		d.version++
	}

	if token != "" {
		d.lastDrawToken = token
		d.lastDrawResult = copyIDs(drawn)
	}

	return DrawResult{Drawn: drawn, Action: action}, nil
}

// MoveToDiscard moves one occurrence of cardID from hand to discard.
func (d *Deck) MoveToDiscard(ctx context.Context, cardID string) (PileAction, error) {
	if err := d.lock(ctx); err != nil {
		return PileAction{}, err
	}
	defer d.sem.release()

	idx := -1
	for i, id := range d.hand {
		if id == cardID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return PileAction{}, notInHand(d.ID, cardID)
	}

	d.hand = append(d.hand[:idx], d.hand[idx+1:]...)
	d.discard = append(d.discard, cardID)

	a := newMoveAction(cardID)
	d.log.Append(a)
	d.version++
	return a, nil
}

// UndoResult reports one UndoLast call.
type UndoResult struct {
	Action   PileAction
	Replayed bool
}

// UndoLast pops the most recent logged action and applies its inverse:
// an undone Draw returns the drawn ids from the hand to the FRONT of the
// draw pile in their original relative order; an undone Move returns the
// card from discard to hand. All-or-nothing: on any inconsistency the
// piles are left untouched. Passing the token of the previous call
// replays its result without undoing again.
func (d *Deck) UndoLast(ctx context.Context, token string) (UndoResult, error) {
	if err := d.lock(ctx); err != nil {
		return UndoResult{}, err
	}
	defer d.sem.release()

	if token != "" && token == d.lastUndoToken {
		return UndoResult{Action: d.lastUndoAction, Replayed: true}, nil
	}

	last, ok := d.log.PopLast()
	if !ok {
		return UndoResult{}, noActionToUndo(d.ID)
	}

	switch last.Kind {
	case PileActionDraw:
		hand, err := removeAll(d.hand, last.DrawnIDs)
		if err != nil {
			d.log.Append(last)
			return UndoResult{}, err
		}
		d.hand = hand
		d.draw = append(copyIDs(last.DrawnIDs), d.draw...)
	case PileActionMove:
		discard, err := removeAll(d.discard, []string{last.CardID})
		if err != nil {
			d.log.Append(last)
			return UndoResult{}, err
		}
		d.discard = discard
		d.hand = append(d.hand, last.CardID)
	default:
		d.log.Append(last)
		return UndoResult{}, invalidState("deck", d.ID, "no inverse for action kind "+last.Kind.String())
	}
	d.version++

	if token != "" {
		d.lastUndoToken = token
		d.lastUndoAction = last
	}

	return UndoResult{Action: last}, nil
}

// Hand returns a copy of the current hand.
func (d *Deck) Hand(ctx context.Context) ([]string, error) {
	if err := d.lock(ctx); err != nil {
		return nil, err
	}
	defer d.sem.release()
	return copyIDs(d.hand), nil
}

// DeckSnapshot is a consistent copy of deck state.
type DeckSnapshot struct {
	ID          string
	CharacterID string
	EncounterID string
	HandLimit   int
	DrawPile    []string
	Hand        []string
	Discard     []string
	Actions     []PileAction
	Version     uint64
}

// Snapshot returns a consistent copy of the deck, draw pile order included.
// Callers building player views must not expose the draw pile order.
func (d *Deck) Snapshot(ctx context.Context) (DeckSnapshot, error) {
	if err := d.lock(ctx); err != nil {
		return DeckSnapshot{}, err
	}
	defer d.sem.release()

	return DeckSnapshot{
		ID:          d.ID,
		CharacterID: d.CharacterID,
		EncounterID: d.EncounterID,
		HandLimit:   d.HandLimit,
		DrawPile:    copyIDs(d.draw),
		Hand:        copyIDs(d.hand),
		Discard:     copyIDs(d.discard),
		Actions:     d.log.Entries(),
		Version:     d.version,
	}, nil
}

// removeAll returns a copy of pile with one occurrence of every id in ids
// removed, or an error (and no partial result) if any id is missing.
func removeAll(pile []string, ids []string) ([]string, error) {
	out := copyIDs(pile)
	for _, id := range ids {
		idx := -1
		for i, have := range out {
			if have == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, validation("card", id, "pile does not contain card to undo")
		}
		out = append(out[:idx], out[idx+1:]...)
	}
	return out, nil
}

func copyIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
