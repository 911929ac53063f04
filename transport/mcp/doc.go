// Package mcp exposes the lobby to Model Context Protocol clients.
//
// The Client is a thin MCP server whose tools proxy to the read-only HTTP
// API, so an agent sees exactly what the /api endpoints report:
//   - lobby_state: the room's phase, admin and players
//   - list_sessions: open connections, oldest first
//   - get_session: one open connection by id
//   - lobby_instructions: how players join and start a game
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: POST /mcp, handled by GetMCPServer().HandleMessage
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
