// Package session provides the per-connection player session of the lobby.
//
// The session package implements:
//   - Nickname validation and flag computation at connection time
//   - The join, message dispatch and leave lifecycle of one connection
//   - A registry of active sessions
//
// Core Types:
//
// Manager validates nicknames, creates sessions and tracks the active ones.
// Session is one player's connection. It is driven by a single goroutine
// (the transport's read loop): Open once, HandleMessage for every inbound
// frame, Close once when the connection ends.
//
// Lifecycle:
//
//  1. Manager.NewSession validates the nickname; nothing is written on failure
//  2. Open joins the room, subscribes to the room group, broadcasts the lobby
//  3. HandleMessage dispatches {"action": "start_game"}; other input is ignored
//  4. Close leaves the room, unsubscribes, then broadcasts the new lobby
//
// Close runs at most once per session and ignores cancellation of the
// context it is given, so a connection that dies mid-request still leaves
// the room exactly once.
//
// Usage:
//
//	manager := session.NewManager(coordinator, hub, session.Options{RoomID: "global"})
//
//	sess, err := manager.NewSession(member, r.URL.Query().Get("nickname"))
//	if err != nil {
//		// reject the connection
//	}
//	defer sess.Close(ctx)
//	if err := sess.Open(ctx); err != nil {
//		return
//	}
package session
