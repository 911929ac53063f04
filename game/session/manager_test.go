package session

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestManager_ValidateNickname(t *testing.T) {
	manager := newTestEnv().manager

	tests := []struct {
		name     string
		nickname string
		valid    bool
	}{
		{"empty", "", false},
		{"single character", "a", true},
		{"exactly 16 characters", strings.Repeat("a", 16), true},
		{"17 characters", strings.Repeat("a", 17), false},
		{"16 multibyte characters", strings.Repeat("ж", 16), true},
		{"17 multibyte characters", strings.Repeat("ж", 17), false},
		{"spaces count", "  alice  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.ValidateNickname(tt.nickname)
			if tt.valid && err != nil {
				t.Errorf("Expected %q to be accepted, got %v", tt.nickname, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidNickname) {
				t.Errorf("Expected ErrInvalidNickname for %q, got %v", tt.nickname, err)
			}
		})
	}
}

func TestManager_IsFlagged(t *testing.T) {
	manager := newTestEnv().manager

	tests := []struct {
		nickname string
		flagged  bool
	}{
		{"DOF", true},
		{"dof", true},
		{"DoF", true},
		{"DOFF", false},
		{"alice", false},
	}

	for _, tt := range tests {
		if got := manager.IsFlagged(tt.nickname); got != tt.flagged {
			t.Errorf("IsFlagged(%q) = %v, want %v", tt.nickname, got, tt.flagged)
		}
	}

	unflagged := NewManager(nil, nil, Options{})
	if unflagged.IsFlagged("") {
		t.Error("Empty marker should never flag")
	}
}

func TestManager_Defaults(t *testing.T) {
	manager := NewManager(nil, nil, Options{})
	if manager.RoomID() != "global" {
		t.Errorf("Expected default room 'global', got %s", manager.RoomID())
	}
	if err := manager.ValidateNickname(strings.Repeat("a", 16)); err != nil {
		t.Errorf("Default limit should accept 16 characters: %v", err)
	}
}

func TestManager_NewSessionRejectsWithoutSideEffects(t *testing.T) {
	env := newTestEnv()
	member := newFakeMember("conn-1")

	_, err := env.manager.NewSession(member, strings.Repeat("x", 17))
	if !errors.Is(err, ErrInvalidNickname) {
		t.Fatalf("Expected ErrInvalidNickname, got %v", err)
	}

	members, _ := env.coord.Members(context.Background(), "global")
	if len(members) != 0 {
		t.Errorf("Rejected nickname must not touch the room, found %v", members)
	}
	if env.manager.Count() != 0 {
		t.Errorf("Rejected nickname must not register a session")
	}
	if len(member.frames) != 0 {
		t.Errorf("Rejected connection must not receive events")
	}
}

func TestManager_GetListCount(t *testing.T) {
	env := newTestEnv()

	a, _ := env.connect(t, "a", "alice")
	b, _ := env.connect(t, "b", "bob")

	if env.manager.Count() != 2 {
		t.Errorf("Expected 2 sessions, got %d", env.manager.Count())
	}

	got, err := env.manager.Get("a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != a {
		t.Error("Get returned a different session")
	}

	if _, err := env.manager.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	list := env.manager.List()
	if len(list) != 2 {
		t.Fatalf("Expected 2 sessions in list, got %d", len(list))
	}
	found := map[string]bool{list[0].ID: true, list[1].ID: true}
	if !found["a"] || !found["b"] {
		t.Errorf("List missing sessions: %v", found)
	}

	b.Close(context.Background())
	if env.manager.Count() != 1 {
		t.Errorf("Expected 1 session after close, got %d", env.manager.Count())
	}
	if _, err := env.manager.Get("b"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Closed session should be gone, got %v", err)
	}
}
