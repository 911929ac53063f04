package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/wricardo/drawing-lobby/game/store"
	"github.com/wricardo/drawing-lobby/logger"
	"go.uber.org/zap"
)

// Service defines the room operations sessions and the API depend on
type Service interface {
	// Membership
	Join(ctx context.Context, roomID string, player Player) error
	Leave(ctx context.Context, roomID, connectionID string) (bool, error)
	Members(ctx context.Context, roomID string) ([]string, error)

	// Game
	TryStartGame(ctx context.Context, roomID, connectionID string) (bool, error)

	// Views
	LobbyView(ctx context.Context, roomID string) ([]LobbyPlayer, error)
	BroadcastLobbyState(ctx context.Context, roomID string) error
	Snapshot(ctx context.Context, roomID string) (*RoomSnapshot, error)
}

// Options tune a Coordinator
type Options struct {
	// EvictEmptyRooms clears the phase when the last player leaves, so the
	// next join starts a fresh lobby.
	EvictEmptyRooms bool

	Logger *zap.SugaredLogger

	// Now overrides the clock used to stamp joins.
	Now func() time.Time
}

// Coordinator implements Service over a store and a broadcast group
type Coordinator struct {
	store      store.Store
	group      Group
	locks      *roomLocks
	evictEmpty bool
	log        *zap.SugaredLogger
	now        func() time.Time
}

// NewCoordinator creates a coordinator for rooms kept in st and fanned out through group.
func NewCoordinator(st store.Store, group Group, opts Options) *Coordinator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Coordinator{
		store:      st,
		group:      group,
		locks:      newRoomLocks(),
		evictEmpty: opts.EvictEmptyRooms,
		log:        logger.OrNop(opts.Logger),
		now:        now,
	}
}

func playersKey(roomID string) string { return "room:" + roomID + ":players" }
func adminKey(roomID string) string   { return "room:" + roomID + ":admin" }
func phaseKey(roomID string) string   { return "room:" + roomID + ":state" }

// Join stores the player's record and elects it admin when the room has none.
// An admin pointer naming a connection that is no longer a member counts as none.
func (c *Coordinator) Join(ctx context.Context, roomID string, player Player) error {
	if player.ConnectionID == "" {
		return errors.New("player has no connection id")
	}
	if player.JoinedAt.IsZero() {
		player.JoinedAt = c.now()
	}

	record, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("failed to encode player record: %w", err)
	}

	unlock := c.locks.lock(roomID)
	defer unlock()

	if err := c.store.HSet(ctx, playersKey(roomID), player.ConnectionID, string(record)); err != nil {
		return fmt.Errorf("failed to store player %s: %w", player.ConnectionID, err)
	}

	admin, err := c.adminID(ctx, roomID)
	if err != nil {
		return err
	}

	if admin != "" && admin != player.ConnectionID {
		members, err := c.Members(ctx, roomID)
		if err != nil {
			return err
		}
		if slices.Contains(members, admin) {
			c.log.Infow("player joined", "room", roomID, "conn", player.ConnectionID, "nickname", player.Nickname)
			return nil
		}
		c.log.Warnw("admin pointer is stale, re-electing", "room", roomID, "stale_admin", admin)
	}

	if err := c.store.Set(ctx, adminKey(roomID), player.ConnectionID); err != nil {
		return fmt.Errorf("failed to elect admin %s: %w", player.ConnectionID, err)
	}

	c.log.Infow("player joined as admin", "room", roomID, "conn", player.ConnectionID, "nickname", player.Nickname)
	return nil
}

// Leave removes the connection's record and hands the admin role to the
// longest-present remaining member if the leaver held it. It reports whether
// a record was removed; leaving twice is a no-op.
func (c *Coordinator) Leave(ctx context.Context, roomID, connectionID string) (bool, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	removed, err := c.store.HDel(ctx, playersKey(roomID), connectionID)
	if err != nil {
		return false, fmt.Errorf("failed to remove player %s: %w", connectionID, err)
	}
	if !removed {
		return false, nil
	}

	admin, err := c.adminID(ctx, roomID)
	if err != nil {
		return true, err
	}

	if admin != "" && admin != connectionID {
		c.log.Infow("player left", "room", roomID, "conn", connectionID)
		return true, nil
	}

	players, err := c.players(ctx, roomID)
	if err != nil {
		return true, err
	}

	if len(players) == 0 {
		if err := c.store.Delete(ctx, adminKey(roomID)); err != nil {
			return true, fmt.Errorf("failed to clear admin: %w", err)
		}
		if c.evictEmpty {
			if err := c.store.Delete(ctx, phaseKey(roomID)); err != nil {
				return true, fmt.Errorf("failed to clear phase: %w", err)
			}
		}
		c.log.Infow("last player left, room is empty", "room", roomID, "conn", connectionID)
		return true, nil
	}

	next := players[0].ConnectionID
	if err := c.store.Set(ctx, adminKey(roomID), next); err != nil {
		return true, fmt.Errorf("failed to promote admin %s: %w", next, err)
	}

	c.log.Infow("admin left, role transferred", "room", roomID, "from", connectionID, "to", next)
	return true, nil
}

// Reset drops every player record and the admin pointer of roomID. A server
// owning the room calls it before accepting connections so that records left
// by a previous process cannot hold the admin role. The room starts over in
// the lobby phase.
func (c *Coordinator) Reset(ctx context.Context, roomID string) error {
	unlock := c.locks.lock(roomID)
	defer unlock()

	stale, err := c.store.HKeys(ctx, playersKey(roomID))
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}

	if err := c.store.Delete(ctx, playersKey(roomID)); err != nil {
		return fmt.Errorf("failed to clear players: %w", err)
	}
	if err := c.store.Delete(ctx, adminKey(roomID)); err != nil {
		return fmt.Errorf("failed to clear admin: %w", err)
	}
	if err := c.store.Delete(ctx, phaseKey(roomID)); err != nil {
		return fmt.Errorf("failed to clear phase: %w", err)
	}

	if len(stale) > 0 {
		c.log.Warnw("dropped stale players", "room", roomID, "count", len(stale))
	}
	return nil
}

// TryStartGame moves the room to DRAWING and broadcasts game_start when
// connectionID is the admin and the room is still in the lobby. Anything else
// is ignored and reported as false.
func (c *Coordinator) TryStartGame(ctx context.Context, roomID, connectionID string) (bool, error) {
	started, err := c.startLocked(ctx, roomID, connectionID)
	if err != nil || !started {
		return false, err
	}

	n, err := c.group.SendToGroup(ctx, GroupID(roomID), GameStartEvent())
	if err != nil {
		return true, fmt.Errorf("failed to broadcast game start: %w", err)
	}

	c.log.Infow("game started", "room", roomID, "admin", connectionID, "recipients", n)
	return true, nil
}

func (c *Coordinator) startLocked(ctx context.Context, roomID, connectionID string) (bool, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	admin, err := c.adminID(ctx, roomID)
	if err != nil {
		return false, err
	}
	if admin == "" || admin != connectionID {
		c.log.Debugw("start ignored, not admin", "room", roomID, "conn", connectionID)
		return false, nil
	}

	phase, err := c.phase(ctx, roomID)
	if err != nil {
		return false, err
	}
	if phase == PhaseDrawing {
		c.log.Debugw("start ignored, already drawing", "room", roomID)
		return false, nil
	}

	if err := c.store.Set(ctx, phaseKey(roomID), string(PhaseDrawing)); err != nil {
		return false, fmt.Errorf("failed to set phase: %w", err)
	}
	return true, nil
}

// LobbyView returns the room's players in join order, flagging the admin.
func (c *Coordinator) LobbyView(ctx context.Context, roomID string) ([]LobbyPlayer, error) {
	players, err := c.players(ctx, roomID)
	if err != nil {
		return nil, err
	}

	admin, err := c.adminID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	view := make([]LobbyPlayer, 0, len(players))
	for _, p := range players {
		view = append(view, LobbyPlayer{
			Nickname: p.Nickname,
			IsAdmin:  p.ConnectionID == admin,
		})
	}
	return view, nil
}

// BroadcastLobbyState sends the current lobby view to every member of the room.
func (c *Coordinator) BroadcastLobbyState(ctx context.Context, roomID string) error {
	view, err := c.LobbyView(ctx, roomID)
	if err != nil {
		return err
	}

	n, err := c.group.SendToGroup(ctx, GroupID(roomID), LobbyStateEvent(view))
	if err != nil {
		return fmt.Errorf("failed to broadcast lobby state: %w", err)
	}

	c.log.Debugw("lobby state broadcast", "room", roomID, "players", len(view), "recipients", n)
	return nil
}

// Snapshot reads the room's players, admin and phase.
func (c *Coordinator) Snapshot(ctx context.Context, roomID string) (*RoomSnapshot, error) {
	players, err := c.players(ctx, roomID)
	if err != nil {
		return nil, err
	}

	admin, err := c.adminID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	phase, err := c.phase(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return &RoomSnapshot{
		RoomID:  roomID,
		Phase:   phase,
		Admin:   admin,
		Players: players,
	}, nil
}

// Members returns the connection ids stored for the room.
func (c *Coordinator) Members(ctx context.Context, roomID string) ([]string, error) {
	ids, err := c.store.HKeys(ctx, playersKey(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return ids, nil
}

// adminID returns the admin's connection id, or "" when there is none.
func (c *Coordinator) adminID(ctx context.Context, roomID string) (string, error) {
	admin, err := c.store.Get(ctx, adminKey(roomID))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read admin: %w", err)
	}
	return admin, nil
}

func (c *Coordinator) phase(ctx context.Context, roomID string) (Phase, error) {
	value, err := c.store.Get(ctx, phaseKey(roomID))
	if errors.Is(err, store.ErrNotFound) {
		return PhaseLobby, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read phase: %w", err)
	}
	return Phase(value), nil
}

// players decodes every record in the room, oldest join first.
func (c *Coordinator) players(ctx context.Context, roomID string) ([]Player, error) {
	raw, err := c.store.HGetAll(ctx, playersKey(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to read players: %w", err)
	}

	players := make([]Player, 0, len(raw))
	for id, data := range raw {
		var p Player
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("corrupt player record %s: %w", id, err)
		}
		p.ConnectionID = id
		players = append(players, p)
	}

	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ConnectionID < players[j].ConnectionID
	})
	return players, nil
}
