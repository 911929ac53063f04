package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"testing"

	"github.com/wricardo/drawing-lobby/game/lobby"
	"github.com/wricardo/drawing-lobby/game/store"
)

func lobbySet(players []lobby.LobbyPlayer) map[lobby.LobbyPlayer]bool {
	set := make(map[lobby.LobbyPlayer]bool, len(players))
	for _, p := range players {
		set[p] = true
	}
	return set
}

func TestSession_OpenBroadcastsLobby(t *testing.T) {
	env := newTestEnv()

	_, alice := env.connect(t, "A", "alice")
	want := lobbySet([]lobby.LobbyPlayer{{Nickname: "alice", IsAdmin: true}})
	if got := lobbySet(alice.lastLobby(t)); !maps.Equal(got, want) {
		t.Errorf("Alice expected %v, got %v", want, got)
	}

	_, bob := env.connect(t, "B", "bob")
	want = lobbySet([]lobby.LobbyPlayer{
		{Nickname: "alice", IsAdmin: true},
		{Nickname: "bob", IsAdmin: false},
	})
	for _, m := range []*fakeMember{alice, bob} {
		if got := lobbySet(m.lastLobby(t)); !maps.Equal(got, want) {
			t.Errorf("%s expected %v after bob joined, got %v", m.id, want, got)
		}
	}
}

func TestSession_Scenario(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	a, _ := env.connect(t, "A", "alice")
	b, bob := env.connect(t, "B", "bob")

	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	last := bob.lastLobby(t)
	if len(last) != 1 || last[0] != (lobby.LobbyPlayer{Nickname: "bob", IsAdmin: true}) {
		t.Errorf("Expected [{bob true}] after alice left, got %v", last)
	}

	if err := b.HandleMessage(ctx, []byte(`{"action":"start_game"}`)); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if n := bob.count(t, lobby.EventGameStart); n != 1 {
		t.Errorf("Expected bob to receive 1 game_start, got %d", n)
	}

	snap, _ := env.coord.Snapshot(ctx, lobby.DefaultRoomID)
	if snap.Phase != lobby.PhaseDrawing {
		t.Errorf("Expected phase drawing, got %s", snap.Phase)
	}
}

func TestSession_NonAdminStartIgnored(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, alice := env.connect(t, "A", "alice")
	b, bob := env.connect(t, "B", "bob")

	if err := b.HandleMessage(ctx, []byte(`{"action":"start_game"}`)); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	for _, m := range []*fakeMember{alice, bob} {
		if n := m.count(t, lobby.EventGameStart); n != 0 {
			t.Errorf("%s should not receive game_start, got %d", m.id, n)
		}
	}

	snap, _ := env.coord.Snapshot(ctx, lobby.DefaultRoomID)
	if snap.Phase != lobby.PhaseLobby {
		t.Errorf("Expected phase lobby, got %s", snap.Phase)
	}
}

func TestSession_IgnoresUnknownInput(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, alice := env.connect(t, "A", "alice")

	before := len(alice.events(t))

	inputs := []string{
		``,
		`not json`,
		`{"action":"dance"}`,
		`{"type":"start_game"}`,
		`["start_game"]`,
		`{"action":7}`,
	}
	for _, in := range inputs {
		if err := a.HandleMessage(ctx, []byte(in)); err != nil {
			t.Errorf("HandleMessage(%q) should be ignored, got %v", in, err)
		}
	}

	if after := len(alice.events(t)); after != before {
		t.Errorf("Ignored input produced %d events", after-before)
	}
}

func TestSession_CloseRunsOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	a, _ := env.connect(t, "A", "alice")
	_, bob := env.connect(t, "B", "bob")

	before := bob.count(t, lobby.EventLobbyState)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Close(ctx)
		}()
	}
	wg.Wait()

	if got := bob.count(t, lobby.EventLobbyState) - before; got != 1 {
		t.Errorf("Expected exactly 1 post-leave broadcast, got %d", got)
	}
}

func TestSession_CloseWithCancelledContext(t *testing.T) {
	env := newTestEnv()

	a, _ := env.connect(t, "A", "alice")
	_, bob := env.connect(t, "B", "bob")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close with cancelled context failed: %v", err)
	}

	members, _ := env.coord.Members(context.Background(), lobby.DefaultRoomID)
	if len(members) != 1 || members[0] != "B" {
		t.Errorf("Expected only B to remain, got %v", members)
	}
	if last := bob.lastLobby(t); len(last) != 1 || !last[0].IsAdmin {
		t.Errorf("Expected bob alone as admin, got %v", last)
	}
}

func TestSession_CloseBeforeOpen(t *testing.T) {
	env := newTestEnv()
	_, bob := env.connect(t, "B", "bob")
	before := len(bob.events(t))

	sess, err := env.manager.NewSession(newFakeMember("X"), "xavier")
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if err := sess.Close(context.Background()); err != nil {
		t.Errorf("Close of unopened session failed: %v", err)
	}

	if after := len(bob.events(t)); after != before {
		t.Error("Closing an unopened session must not broadcast")
	}
}

func TestSession_FlaggedPlayerStored(t *testing.T) {
	env := newTestEnv()
	s, _ := env.connect(t, "D", "dof")

	if !s.Flagged {
		t.Error("Expected session to be flagged")
	}
	if !s.Info().Flagged {
		t.Error("Expected info to report flag")
	}

	snap, _ := env.coord.Snapshot(context.Background(), lobby.DefaultRoomID)
	if len(snap.Players) != 1 || !snap.Players[0].Flagged {
		t.Errorf("Expected stored record to be flagged, got %+v", snap.Players)
	}
}

func TestSession_SubscriptionMatchesOpenSessions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	groupID := lobby.GroupID(lobby.DefaultRoomID)

	var sessions []*Session
	for i := 0; i < 20; i++ {
		s, _ := env.connect(t, fmt.Sprintf("c%02d", i), fmt.Sprintf("p%02d", i))
		sessions = append(sessions, s)
	}

	var wg sync.WaitGroup
	for i, s := range sessions {
		if i%3 == 0 {
			wg.Add(1)
			go func(s *Session) {
				defer wg.Done()
				s.Close(ctx)
			}(s)
		}
	}
	wg.Wait()

	open := make(map[string]bool)
	for _, s := range env.manager.List() {
		open[s.ID] = true
	}
	if got := env.group.subscribed(groupID); !maps.Equal(got, open) {
		t.Errorf("Subscriptions %v do not match open sessions %v", got, open)
	}

	members, _ := env.coord.Members(ctx, lobby.DefaultRoomID)
	stored := make(map[string]bool)
	for _, id := range members {
		stored[id] = true
	}
	if !maps.Equal(stored, open) {
		t.Errorf("Stored members %v do not match open sessions %v", stored, open)
	}

	snap, _ := env.coord.Snapshot(ctx, lobby.DefaultRoomID)
	if !stored[snap.Admin] {
		t.Errorf("Admin %q is not an open session", snap.Admin)
	}
}

// brokenStore fails every hash write.
type brokenStore struct {
	*store.MemoryStore
}

var errStoreDown = errors.New("store down")

func (brokenStore) HSet(ctx context.Context, key, field, value string) error { return errStoreDown }

func TestSession_OpenStoreFailure(t *testing.T) {
	group := newMemberGroup()
	coord := lobby.NewCoordinator(brokenStore{store.NewMemoryStore()}, group, lobby.Options{})
	manager := NewManager(coord, group, Options{})

	member := newFakeMember("A")
	sess, _ := manager.NewSession(member, "alice")

	err := sess.Open(context.Background())
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("Expected store error from Open, got %v", err)
	}

	sess.Close(context.Background())
	if manager.Count() != 0 {
		t.Error("Failed session must not stay registered")
	}
	if len(group.subscribed(lobby.GroupID("global"))) != 0 {
		t.Error("Failed session must not stay subscribed")
	}
}
