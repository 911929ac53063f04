package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/wricardo/drawing-lobby/game/lobby"
	"github.com/wricardo/drawing-lobby/game/store"
)

// fakeMember records every payload delivered to it.
type fakeMember struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id}
}

func (m *fakeMember) ConnectionID() string { return m.id }

func (m *fakeMember) Deliver(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, payload)
	return nil
}

func (m *fakeMember) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *fakeMember) events(t *testing.T) []lobby.Event {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]lobby.Event, 0, len(m.frames))
	for _, frame := range m.frames {
		var e lobby.Event
		if err := json.Unmarshal(frame, &e); err != nil {
			t.Fatalf("Failed to decode frame %s: %v", frame, err)
		}
		events = append(events, e)
	}
	return events
}

func (m *fakeMember) lastLobby(t *testing.T) []lobby.LobbyPlayer {
	t.Helper()
	events := m.events(t)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == lobby.EventLobbyState {
			return events[i].Players
		}
	}
	t.Fatalf("Member %s received no lobby_state", m.id)
	return nil
}

func (m *fakeMember) count(t *testing.T, eventType lobby.EventType) int {
	t.Helper()
	n := 0
	for _, e := range m.events(t) {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// memberGroup is a synchronous in-memory lobby.Group.
type memberGroup struct {
	mu      sync.Mutex
	members map[string]map[string]lobby.Member
}

func newMemberGroup() *memberGroup {
	return &memberGroup{members: make(map[string]map[string]lobby.Member)}
}

func (g *memberGroup) Subscribe(ctx context.Context, groupID string, m lobby.Member) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.members[groupID] == nil {
		g.members[groupID] = make(map[string]lobby.Member)
	}
	g.members[groupID][m.ConnectionID()] = m
	return nil
}

func (g *memberGroup) Unsubscribe(ctx context.Context, groupID string, m lobby.Member) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members[groupID], m.ConnectionID())
	return nil
}

func (g *memberGroup) SendToGroup(ctx context.Context, groupID string, event lobby.Event) (int, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.members[groupID] {
		m.Deliver(payload)
	}
	return len(g.members[groupID]), nil
}

func (g *memberGroup) subscribed(groupID string) map[string]bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make(map[string]bool)
	for id := range g.members[groupID] {
		ids[id] = true
	}
	return ids
}

type testEnv struct {
	coord   *lobby.Coordinator
	group   *memberGroup
	manager *Manager
}

func newTestEnv() *testEnv {
	group := newMemberGroup()
	coord := lobby.NewCoordinator(store.NewMemoryStore(), group, lobby.Options{})
	manager := NewManager(coord, group, Options{
		RoomID:            lobby.DefaultRoomID,
		MaxNicknameLength: 16,
		FlaggedNickname:   "DOF",
	})
	return &testEnv{coord: coord, group: group, manager: manager}
}

// connect opens a session for a new fake member and fails the test on error.
func (e *testEnv) connect(t *testing.T, id, nickname string) (*Session, *fakeMember) {
	t.Helper()
	member := newFakeMember(id)
	sess, err := e.manager.NewSession(member, nickname)
	if err != nil {
		t.Fatalf("NewSession(%s) failed: %v", nickname, err)
	}
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open(%s) failed: %v", nickname, err)
	}
	return sess, member
}
