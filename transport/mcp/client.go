package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/drawing-lobby/api"
	"github.com/wricardo/drawing-lobby/game/session"
)

// Client is a thin MCP client that proxies to the HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the HTTP API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Drawing Lobby",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Drawing Lobby - MCP Interface

This is a thin client that proxies read-only requests to the lobby HTTP API.
Players join over WebSocket; these tools let you watch the room.

AVAILABLE TOOLS:
- lobby_state: Current phase, admin and players of the room
- list_sessions: Open player connections
- get_session: Details of one connection
- lobby_instructions: How joining, admin election and game start work`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "lobby_state",
		Description: "Get the room's phase, admin and players",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleLobbyState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all open player connections",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific connection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Connection ID to retrieve",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "lobby_instructions",
		Description: "Explain how players join the lobby and start a game",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleLobbyInstructions)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall makes an HTTP request to the API
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Tool handlers

func (c *Client) handleLobbyState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var room api.RoomResponse
	if err := c.apiCall(ctx, "GET", "/api/room", nil, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoom(&room)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response api.SessionsResponse
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Open Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		result += "- " + formatSessionLine(s) + "\n"
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var info session.Info
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+url.PathEscape(sessionID), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionLine(info)), nil
}

func (c *Client) handleLobbyInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Drawing Lobby - Instructions

JOINING:
Connect a WebSocket to /ws?nickname=<name>. Nicknames are 1 to 16 characters;
anything else is refused before the connection opens.

ADMIN:
The first player in an empty room becomes admin. When the admin leaves, the
player who has been in the room longest takes over. There is exactly one admin
whenever the room has players.

STARTING:
The admin sends {"action":"start_game"}. The room moves from the lobby to the
drawing phase and every player receives {"type":"game_start"}. The same
message from anyone else is ignored.

LOBBY UPDATES:
Every join and leave broadcasts
{"type":"lobby_state","players":[{"nickname":"...","is_admin":true}]}
to everyone in the room.`

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatRoom(room *api.RoomResponse) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Room: %s\n", room.RoomID)
	fmt.Fprintf(&b, "Phase: %s\n", room.Phase)
	fmt.Fprintf(&b, "Connections: %d\n", room.Connections)
	fmt.Fprintf(&b, "\nPlayers (%d):\n", len(room.Players))

	if len(room.Players) == 0 {
		b.WriteString("  (empty)\n")
	}
	for _, p := range room.Players {
		marker := ""
		if p.IsAdmin {
			marker = " [admin]"
		}
		fmt.Fprintf(&b, "  - %s%s\n", p.Nickname, marker)
	}

	return b.String()
}

func formatSessionLine(s session.Info) string {
	line := fmt.Sprintf("%s (%s, connected %s)", s.Nickname, s.ID, s.ConnectedAt.Format("15:04:05"))
	if s.Flagged {
		line += " [flagged]"
	}
	return line
}
