package lobby

import (
	"encoding/json"
	"time"
)

// DefaultRoomID is the room every connection joins.
const DefaultRoomID = "global"

// Phase is the high-level game phase of a room
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseDrawing Phase = "drawing"
)

// Player is the record stored for one connected participant
type Player struct {
	ConnectionID string    `json:"-"`
	Nickname     string    `json:"nickname"`
	Flagged      bool      `json:"is_flagged"`
	JoinedAt     time.Time `json:"joined_at"`
}

// LobbyPlayer is one entry of the broadcast lobby view
type LobbyPlayer struct {
	Nickname string `json:"nickname"`
	IsAdmin  bool   `json:"is_admin"`
}

// EventType names an outbound event
type EventType string

const (
	EventLobbyState EventType = "lobby_state"
	EventGameStart  EventType = "game_start"
)

// Event is sent to every member of a room's group.
type Event struct {
	Type    EventType     `json:"type"`
	Players []LobbyPlayer `json:"players"`
}

// LobbyStateEvent builds a lobby_state event for the given view.
func LobbyStateEvent(players []LobbyPlayer) Event {
	return Event{Type: EventLobbyState, Players: players}
}

// GameStartEvent builds a game_start event.
func GameStartEvent() Event {
	return Event{Type: EventGameStart}
}

// MarshalJSON writes lobby_state events with a players array (never null)
// and every other event as just its type.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventLobbyState {
		players := e.Players
		if players == nil {
			players = []LobbyPlayer{}
		}
		return json.Marshal(struct {
			Type    EventType     `json:"type"`
			Players []LobbyPlayer `json:"players"`
		}{e.Type, players})
	}

	return json.Marshal(struct {
		Type EventType `json:"type"`
	}{e.Type})
}

// RoomSnapshot is a read-only view of one room's stored state
type RoomSnapshot struct {
	RoomID  string
	Phase   Phase
	Admin   string // connection id, empty when the room has no admin
	Players []Player
}
