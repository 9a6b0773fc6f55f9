// Package auth carries the verified caller identity into the core. The
// server trusts an upstream check to have established the role; nothing
// here authenticates beyond the optional GM password gate.
package auth

// Role is the caller's role within a campaign.
type Role int

const (
	RolePlayer Role = iota
	RoleGM
)

func (r Role) String() string {
	switch r {
	case RoleGM:
		return "GM"
	case RolePlayer:
		return "PLAYER"
	default:
		return "UNKNOWN"
	}
}

// Actor is a verified caller: the GM, or a player with the characters
// they own.
type Actor struct {
	Role         Role
	PlayerID     string
	CharacterIDs []string
}

// IsGM reports whether the actor is the game master.
func (a Actor) IsGM() bool {
	return a.Role == RoleGM
}

// Owns reports whether the actor owns the given character.
func (a Actor) Owns(characterID string) bool {
	if characterID == "" {
		return false
	}
	for _, id := range a.CharacterIDs {
		if id == characterID {
			return true
		}
	}
	return false
}
