// Package lobby provides the room coordination core of the drawing lobby.
//
// The lobby package implements:
//   - Room membership backed by a store.Store
//   - Admin election on join and admin failover on leave
//   - The LOBBY -> DRAWING phase transition, triggered only by the admin
//   - The derived lobby view and its fan-out through a broadcast Group
//
// Core Types:
//
// Coordinator owns every mutation of room state. Group is the pub/sub
// contract used to reach the sessions of a room, and Member is one
// subscribed connection.
//
// Storage Layout:
//
// Each room keeps three keys in the store:
//   - room:{id}:players  hash of connection id -> JSON player record
//   - room:{id}:admin    connection id of the current admin (absent if none)
//   - room:{id}:state    phase, "lobby" or "drawing" (absent means lobby)
//
// Concurrency:
//
// Admin election, failover and start authorization are read-modify-write
// sequences across keys. The Coordinator serializes them with a per-room
// mutex, so concurrent joins and leaves in one process always leave the room
// with exactly one admin who is a member (or no admin when empty). Broadcasts
// are sent after the lock is released; a lobby view can be briefly stale and
// is corrected by the next broadcast.
//
// Usage:
//
//	coord := lobby.NewCoordinator(store.NewMemoryStore(), hub, lobby.Options{})
//
//	if err := coord.Join(ctx, "global", lobby.Player{ConnectionID: id, Nickname: "alice"}); err != nil {
//		return err
//	}
//	coord.BroadcastLobbyState(ctx, "global")
package lobby
