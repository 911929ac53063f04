package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wricardo/drawing-lobby/game/lobby"
	"go.uber.org/zap"
)

// ActionStartGame is the inbound action that asks to start the game.
const ActionStartGame = "start_game"

// inbound is a client -> server frame
type inbound struct {
	Action string `json:"action"`
}

// Session is one player's connection to a room
type Session struct {
	ID          string
	RoomID      string
	Nickname    string
	Flagged     bool
	ConnectedAt time.Time

	member  lobby.Member
	manager *Manager
	log     *zap.SugaredLogger

	// owned by the goroutine driving the session
	joined     bool
	subscribed bool

	closeOnce sync.Once
	closeErr  error
}

// Info is the public description of a session
type Info struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname"`
	Flagged     bool      `json:"is_flagged"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Info describes the session for listings
func (s *Session) Info() Info {
	return Info{
		ID:          s.ID,
		Nickname:    s.Nickname,
		Flagged:     s.Flagged,
		ConnectedAt: s.ConnectedAt,
	}
}

// Open joins the room, subscribes to its group and broadcasts the new lobby.
// On error the caller must still Close the session to undo partial work.
func (s *Session) Open(ctx context.Context) error {
	rooms, group := s.manager.rooms, s.manager.group

	player := lobby.Player{
		ConnectionID: s.ID,
		Nickname:     s.Nickname,
		Flagged:      s.Flagged,
	}
	if err := rooms.Join(ctx, s.RoomID, player); err != nil {
		return fmt.Errorf("failed to join room %s: %w", s.RoomID, err)
	}
	s.joined = true

	if err := group.Subscribe(ctx, lobby.GroupID(s.RoomID), s.member); err != nil {
		return fmt.Errorf("failed to subscribe to room %s: %w", s.RoomID, err)
	}
	s.subscribed = true

	s.manager.add(s)

	return rooms.BroadcastLobbyState(ctx, s.RoomID)
}

// HandleMessage dispatches one inbound frame. Malformed frames, unknown
// actions and unauthorized starts are ignored; only store or group failures
// are returned.
func (s *Session) HandleMessage(ctx context.Context, raw []byte) error {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Debugw("ignoring malformed message", "error", err)
		return nil
	}

	switch msg.Action {
	case ActionStartGame:
		started, err := s.manager.rooms.TryStartGame(ctx, s.RoomID, s.ID)
		if err != nil {
			return err
		}
		if !started {
			s.log.Debugw("start_game ignored")
		}
		return nil
	default:
		s.log.Debugw("ignoring unknown action", "action", msg.Action)
		return nil
	}
}

// Close leaves the room, unsubscribes, and broadcasts the remaining lobby.
// Only the first call does any work; later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close(context.WithoutCancel(ctx))
	})
	return s.closeErr
}

func (s *Session) close(ctx context.Context) error {
	rooms, group := s.manager.rooms, s.manager.group
	var errs []error

	if s.joined {
		if _, err := rooms.Leave(ctx, s.RoomID, s.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to leave room %s: %w", s.RoomID, err))
		}
	}

	if s.subscribed {
		if err := group.Unsubscribe(ctx, lobby.GroupID(s.RoomID), s.member); err != nil {
			errs = append(errs, fmt.Errorf("failed to unsubscribe from room %s: %w", s.RoomID, err))
		}
	}

	s.manager.remove(s)

	if s.joined {
		if err := rooms.BroadcastLobbyState(ctx, s.RoomID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
