package combat

import (
	"time"

	"github.com/google/uuid"
)

// PileActionKind tags a logged pile mutation. The set is closed: undo
// dispatches on it, so a new kind must ship with its own inverse.
type PileActionKind int

const (
	PileActionDraw PileActionKind = iota
	PileActionMove
)

func (k PileActionKind) String() string {
	switch k {
	case PileActionDraw:
		return "DRAW"
	case PileActionMove:
		return "MOVE"
	default:
		return "UNKNOWN"
	}
}

// PileAction is one entry of a deck's append-only mutation history.
// A Draw carries the ordered drawn ids; a Move carries the single card
// that went from hand to discard.
type PileAction struct {
	ID        string
	Kind      PileActionKind
	DrawnIDs  []string
	CardID    string
	Timestamp time.Time
}

func newDrawAction(drawn []string) PileAction {
	ids := make([]string, len(drawn))
	copy(ids, drawn)
	return PileAction{
		ID:        uuid.NewString(),
		Kind:      PileActionDraw,
		DrawnIDs:  ids,
		Timestamp: time.Now(),
	}
}

func newMoveAction(cardID string) PileAction {
	return PileAction{
		ID:        uuid.NewString(),
		Kind:      PileActionMove,
		CardID:    cardID,
		Timestamp: time.Now(),
	}
}

// ActionLog is the append-only record of one deck's pile operations. It
// is not safe for concurrent use on its own; the owning Deck's lock
// serializes access.
type ActionLog struct {
	entries []PileAction
}

// NewActionLog creates an empty log.
func NewActionLog() *ActionLog {
	return &ActionLog{entries: make([]PileAction, 0)}
}

// Append records an action at the end of the log.
func (l *ActionLog) Append(a PileAction) {
	l.entries = append(l.entries, a)
}

// PopLast removes and returns the most recent action.
func (l *ActionLog) PopLast() (PileAction, bool) {
	if len(l.entries) == 0 {
		return PileAction{}, false
	}
	last := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	return last, true
}

// Len returns the number of recorded actions.
func (l *ActionLog) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the log, oldest first, for narration/audit.
func (l *ActionLog) Entries() []PileAction {
	out := make([]PileAction, len(l.entries))
	copy(out, l.entries)
	return out
}
