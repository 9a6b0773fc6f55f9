package auth

import "testing"

func TestActorOwns(t *testing.T) {
	a := Actor{Role: RolePlayer, PlayerID: "alice", CharacterIDs: []string{"char-1", "char-2"}}

	if !a.Owns("char-1") {
		t.Error("Owns(char-1) = false, want true")
	}
	if a.Owns("char-9") {
		t.Error("Owns(char-9) = true, want false")
	}
	if a.Owns("") {
		t.Error("Owns(\"\") = true, want false (npc/enemy combatants have no owner)")
	}
}

func TestActorRoles(t *testing.T) {
	if (Actor{Role: RolePlayer}).IsGM() {
		t.Error("player reported as GM")
	}
	if !(Actor{Role: RoleGM}).IsGM() {
		t.Error("GM not reported as GM")
	}
	if got := RoleGM.String(); got != "GM" {
		t.Errorf("RoleGM.String() = %q, want GM", got)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("open sesame")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !CheckPassword(hash, "open sesame") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}
