// Package websocket carries lobby traffic over WebSocket connections.
//
// A Hub owns every broadcast group. Subscriptions, unsubscriptions and
// fan-outs are requests handled one at a time by Hub.Run, so group
// membership is only ever touched from that goroutine. The Hub implements
// lobby.Group.
//
// Each connection is a Client with two goroutines:
//
//   - readPump opens the player's session, feeds every inbound frame to it
//     and closes the session when the connection ends
//   - writePump drains the client's send buffer and keeps the peer alive
//     with pings
//
// Message Protocol:
//
// Inbound frames are JSON objects such as {"action": "start_game"}. Outbound
// frames are lobby events, one JSON object per frame:
//
//	{"type": "lobby_state", "players": [{"nickname": "alice", "is_admin": true}]}
//	{"type": "game_start"}
//
// Slow consumers:
//
// Delivery never blocks the hub. A client whose send buffer is full is
// dropped from its group and disconnected, which in turn closes its session.
//
// Shutdown:
//
// Drain closes every connection and waits for their sessions to leave the
// room. It must run before the context given to Run is cancelled.
//
// Usage:
//
//	hub := websocket.NewHub(websocket.HubOptions{Logger: log})
//	go hub.Run(ctx)
//
//	hub.ServeWS(w, r, sessions, nickname)
//
//	hub.Drain(shutdownCtx)
package websocket
