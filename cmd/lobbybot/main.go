// Command lobbybot connects a crowd of scripted players to a lobby server and
// reports what they see. Players join one at a time so the first bot is the
// admin of an empty room; with --start the admin then starts the game and
// every bot must receive game_start.
//
// Examples:
//
//	lobbybot --players 8
//	lobbybot --url http://localhost:9090 --players 3 --start
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/drawing-lobby/game/lobby"
	"github.com/wricardo/drawing-lobby/logger"
	"go.uber.org/zap"
)

// botOptions control one run
type botOptions struct {
	URL     string
	Players int
	Prefix  string
	Start   bool
	Timeout time.Duration
}

// report summarizes what the bots observed
type report struct {
	Joined  int
	Admin   string
	Lobby   []lobby.LobbyPlayer
	Started int
}

// bot is one scripted player
type bot struct {
	nickname string
	conn     *websocket.Conn
}

func main() {
	cmd := &cli.Command{
		Name:  "lobbybot",
		Usage: "Connect scripted players to a lobby server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Lobby server URL"},
			&cli.IntFlag{Name: "players", Value: 3, Usage: "Number of bots to connect"},
			&cli.StringFlag{Name: "prefix", Value: "bot", Usage: "Nickname prefix"},
			&cli.BoolFlag{Name: "start", Usage: "Have the admin start the game once everyone joined"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "Give up after this long"},
			&cli.BoolFlag{Name: "v", Usage: "Verbose output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log, err := logger.New(cmd.Bool("v"))
			if err != nil {
				return err
			}
			defer log.Sync()

			opts := botOptions{
				URL:     cmd.String("url"),
				Players: int(cmd.Int("players")),
				Prefix:  cmd.String("prefix"),
				Start:   cmd.Bool("start"),
				Timeout: cmd.Duration("timeout"),
			}

			rep, err := runBots(ctx, opts, log)
			if err != nil {
				return err
			}

			log.Infow("run complete", "joined", rep.Joined, "admin", rep.Admin, "started", rep.Started)
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "lobbybot: %v\n", err)
		os.Exit(1)
	}
}

// runBots joins opts.Players bots, then optionally starts the game.
func runBots(ctx context.Context, opts botOptions, log *zap.SugaredLogger) (*report, error) {
	if opts.Players <= 0 {
		return nil, fmt.Errorf("players must be positive, got %d", opts.Players)
	}

	wsURL, err := websocketURL(opts.URL)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	bots := make([]*bot, 0, opts.Players)
	defer func() {
		for _, b := range bots {
			b.conn.Close()
		}
	}()

	rep := &report{}
	for i := 1; i <= opts.Players; i++ {
		nickname := fmt.Sprintf("%s%d", opts.Prefix, i)

		b, first, err := dialBot(ctx, wsURL, nickname, deadline)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)

		rep.Joined++
		rep.Lobby = first.Players
		log.Infow("bot joined", "nickname", nickname, "lobby_size", len(first.Players))
	}

	for _, p := range rep.Lobby {
		if p.IsAdmin {
			rep.Admin = p.Nickname
		}
	}

	if !opts.Start {
		return rep, nil
	}

	var admin *bot
	for _, b := range bots {
		if b.nickname == rep.Admin {
			admin = b
		}
	}
	if admin == nil {
		return rep, fmt.Errorf("admin %q is not one of the bots", rep.Admin)
	}

	if err := admin.conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"start_game"}`)); err != nil {
		return rep, fmt.Errorf("failed to send start_game: %w", err)
	}
	log.Infow("start requested", "admin", admin.nickname)

	for _, b := range bots {
		if _, err := b.waitFor(lobby.EventGameStart, deadline); err != nil {
			return rep, fmt.Errorf("%s never saw game_start (is the room already drawing?): %w", b.nickname, err)
		}
		rep.Started++
		log.Debugw("game_start received", "nickname", b.nickname)
	}

	return rep, nil
}

// dialBot connects one bot and waits for the lobby_state its join triggers.
func dialBot(ctx context.Context, wsURL, nickname string, deadline time.Time) (*bot, lobby.Event, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"?nickname="+url.QueryEscape(nickname), nil)
	if err != nil {
		if resp != nil {
			return nil, lobby.Event{}, fmt.Errorf("%s refused with status %d: %w", nickname, resp.StatusCode, err)
		}
		return nil, lobby.Event{}, fmt.Errorf("failed to connect %s: %w", nickname, err)
	}

	b := &bot{nickname: nickname, conn: conn}
	first, err := b.waitFor(lobby.EventLobbyState, deadline)
	if err != nil {
		conn.Close()
		return nil, lobby.Event{}, fmt.Errorf("%s got no lobby_state: %w", nickname, err)
	}
	return b, first, nil
}

// waitFor reads events until one of the given type arrives.
func (b *bot) waitFor(eventType lobby.EventType, deadline time.Time) (lobby.Event, error) {
	b.conn.SetReadDeadline(deadline)
	for {
		var event lobby.Event
		if err := b.conn.ReadJSON(&event); err != nil {
			return lobby.Event{}, err
		}
		if event.Type == eventType {
			return event, nil
		}
	}
}

// websocketURL turns an http(s) server URL into the lobby's ws(s) endpoint.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path += "/ws"
	return u.String(), nil
}
