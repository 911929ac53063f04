// Command drawing-lobby runs the multiplayer drawing game lobby.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing the WebSocket lobby, a read-only REST API and an /mcp endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Settings come from built-in defaults, an optional JSON config file, a .env
// file, then flags and environment variables, each layer overriding the last.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/drawing-lobby/api"
	"github.com/wricardo/drawing-lobby/game/config"
	"github.com/wricardo/drawing-lobby/game/lobby"
	"github.com/wricardo/drawing-lobby/game/session"
	"github.com/wricardo/drawing-lobby/game/store"
	"github.com/wricardo/drawing-lobby/logger"
	"github.com/wricardo/drawing-lobby/transport/mcp"
	"github.com/wricardo/drawing-lobby/transport/websocket"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Drawing Lobby Server"
)

// main loads .env and runs the command line.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newCommand builds the command tree. Flags are shared by every mode.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "drawing-lobby",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "JSON config file", Sources: cli.EnvVars("LOBBY_CONFIG")},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host", Sources: cli.EnvVars("LOBBY_HOST")},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port", Sources: cli.EnvVars("LOBBY_PORT", "PORT")},
			&cli.StringFlag{Name: "room", Usage: "Room every connection joins", Sources: cli.EnvVars("LOBBY_ROOM")},
			&cli.IntFlag{Name: "max-nickname", Usage: "Longest accepted nickname, in characters", Sources: cli.EnvVars("LOBBY_MAX_NICKNAME")},
			&cli.StringFlag{Name: "flagged-nickname", Usage: "Nickname that marks a player as flagged", Sources: cli.EnvVars("LOBBY_FLAGGED_NICKNAME")},
			&cli.BoolFlag{Name: "evict-empty-rooms", Usage: "Reset the phase when the last player leaves", Sources: cli.EnvVars("LOBBY_EVICT_EMPTY_ROOMS")},
			&cli.IntFlag{Name: "send-buffer", Usage: "Outbound events queued per connection", Sources: cli.EnvVars("LOBBY_SEND_BUFFER")},
			&cli.StringFlag{Name: "store", Usage: "Room store backend (memory or redis)", Sources: cli.EnvVars("LOBBY_STORE")},
			&cli.StringFlag{Name: "redis-addr", Usage: "Redis address", Sources: cli.EnvVars("REDIS_ADDR")},
			&cli.StringFlag{Name: "redis-password", Usage: "Redis password", Sources: cli.EnvVars("REDIS_PASSWORD")},
			&cli.IntFlag{Name: "redis-db", Usage: "Redis database", Sources: cli.EnvVars("REDIS_DB")},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging", Sources: cli.EnvVars("LOBBY_DEBUG")},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with WebSocket lobby, API, and MCP endpoint (default)",
				Action:  runServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  runStdioMCP,
			},
		},
	}
}

// loadConfig layers flags and environment variables over the config file.
// Only flags that were actually given override the file.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("room") {
		cfg.RoomID = cmd.String("room")
	}
	if cmd.IsSet("max-nickname") {
		cfg.MaxNicknameLength = int(cmd.Int("max-nickname"))
	}
	if cmd.IsSet("flagged-nickname") {
		cfg.FlaggedNickname = cmd.String("flagged-nickname")
	}
	if cmd.IsSet("evict-empty-rooms") {
		cfg.EvictEmptyRooms = cmd.Bool("evict-empty-rooms")
	}
	if cmd.IsSet("send-buffer") {
		cfg.SendBufferSize = int(cmd.Int("send-buffer"))
	}
	if cmd.IsSet("store") {
		cfg.Store.Backend = cmd.String("store")
	}
	if cmd.IsSet("redis-addr") {
		cfg.Store.RedisAddr = cmd.String("redis-addr")
	}
	if cmd.IsSet("redis-password") {
		cfg.Store.RedisPassword = cmd.String("redis-password")
	}
	if cmd.IsSet("redis-db") {
		cfg.Store.RedisDB = int(cmd.Int("redis-db"))
	}
	if cmd.IsSet("debug") {
		cfg.Debug = cmd.Bool("debug")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// services is everything one server process wires together
type services struct {
	store    store.Store
	hub      *websocket.Hub
	rooms    *lobby.Coordinator
	sessions *session.Manager
	api      *api.Server
}

// newStore opens the configured room store backend.
func newStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return store.NewRedisStore(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case config.BackendMemory, "":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// buildServices wires the store, hub, coordinator, session manager and API.
// The caller runs the hub and closes the store.
func buildServices(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*services, error) {
	st, err := newStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	hub := websocket.NewHub(websocket.HubOptions{
		SendBufferSize: cfg.SendBufferSize,
		Logger:         log.Named("hub"),
	})

	rooms := lobby.NewCoordinator(st, hub, lobby.Options{
		EvictEmptyRooms: cfg.EvictEmptyRooms,
		Logger:          log.Named("lobby"),
	})

	// This process owns the room; nobody from an earlier run is still connected.
	if err := rooms.Reset(ctx, cfg.RoomID); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to reset room %s: %w", cfg.RoomID, err)
	}

	sessions := session.NewManager(rooms, hub, session.Options{
		RoomID:            cfg.RoomID,
		MaxNicknameLength: cfg.MaxNicknameLength,
		FlaggedNickname:   cfg.FlaggedNickname,
		Logger:            log.Named("session"),
	})

	apiServer := api.NewServer(rooms, sessions, hub, api.Options{
		Health: st,
		Logger: log.Named("api"),
	})

	return &services{
		store:    st,
		hub:      hub,
		rooms:    rooms,
		sessions: sessions,
		api:      apiServer,
	}, nil
}

// newRouter mounts the API at the root and the MCP proxy at /mcp.
func newRouter(apiServer http.Handler, mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter
}

// setup loads the config and builds the logger for a command.
func setup(cmd *cli.Command) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}

// runServer starts the HTTP server with the WebSocket lobby, REST API and
// /mcp endpoint, plus an optional ngrok tunnel, and blocks until a shutdown
// signal arrives.
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("starting", "app", AppName, "version", Version, "mode", "server", "store", cfg.Store.Backend)

	svc, err := buildServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.store.Close()

	// The hub outlives the signal so closing sessions can still leave the room.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hubDone := make(chan struct{})
	go func() {
		svc.hub.Run(hubCtx)
		close(hubDone)
	}()

	addr := cfg.Addr()
	mcpClient := mcp.NewClient("http://" + addr)
	handler := newRouter(svc.api, mcpClient)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Infow("HTTP server listening",
			"addr", addr,
			"websocket", fmt.Sprintf("ws://%s/ws?nickname=<nickname>", addr),
			"api", fmt.Sprintf("http://%s/api/room", addr),
			"mcp", fmt.Sprintf("http://%s/mcp", addr))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), handler, log.Named("ngrok"))
		}()
	}

	select {
	case <-ctx.Done():
		log.Infow("shutting down")
	case err = <-serverErr:
		log.Errorw("HTTP server failed", "error", err)
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	}

	wg.Wait()

	if err := svc.hub.Drain(shutdownCtx); err != nil {
		log.Warnw("connections still open at shutdown", "sessions", svc.sessions.Count(), "error", err)
	}
	stopHub()
	<-hubDone

	log.Infow("server stopped")
	return err
}

// runNgrok serves handler through an ngrok tunnel until ctx is cancelled.
func runNgrok(ctx context.Context, authToken, domain string, handler http.Handler, log *zap.SugaredLogger) {
	if authToken == "" {
		log.Warnw("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Infow("using custom ngrok domain", "domain", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Errorw("failed to start ngrok tunnel", "error", err)
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			log.Warnw("failed to close ngrok tunnel", "error", err)
		}
	}()

	log.Infow("ngrok tunnel established", "url", tun.URL())

	tunnelServer := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		tunnelServer.Close()
	}()

	if err := tunnelServer.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorw("ngrok server error", "error", err)
	}
	log.Infow("ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server. It reuses an API already listening
// on the configured address; otherwise it serves the lobby on a random
// loopback port and points the MCP tools at that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	externalURL := "http://" + cfg.Addr()
	baseURL := externalURL

	if !apiAvailable(externalURL) {
		log.Infow("no external API server found, starting internal HTTP server", "checked", externalURL)

		svc, err := buildServices(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer svc.store.Close()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go svc.hub.Run(ctx)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		httpServer := &http.Server{Handler: svc.api}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("internal HTTP server error", "error", err)
			}
		}()
		defer httpServer.Close()

		baseURL = "http://" + listener.Addr().String()
	}

	log.Infow("MCP stdio server ready", "api", baseURL)

	mcpClient := mcp.NewClient(baseURL)
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// apiAvailable reports whether a lobby API answers its health check at baseURL.
func apiAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
