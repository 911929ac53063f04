package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/wricardo/drawing-lobby/game/lobby"
	"github.com/wricardo/drawing-lobby/game/session"
	"github.com/wricardo/drawing-lobby/logger"
	"github.com/wricardo/drawing-lobby/transport/websocket"
	"go.uber.org/zap"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// RoomResponse is the body of GET /api/room
type RoomResponse struct {
	RoomID      string              `json:"room_id"`
	Phase       lobby.Phase         `json:"phase"`
	Admin       string              `json:"admin"`
	Players     []lobby.LobbyPlayer `json:"players"`
	Connections int                 `json:"connections"`
}

// SessionsResponse is the body of GET /api/sessions
type SessionsResponse struct {
	Count    int            `json:"count"`
	Sessions []session.Info `json:"sessions"`
}

// Options configure a Server
type Options struct {
	// Health is pinged by /healthz. Nil always reports healthy.
	Health Pinger

	Logger *zap.SugaredLogger
}

// Server represents the HTTP API server
type Server struct {
	rooms    lobby.Service
	sessions *session.Manager
	hub      *websocket.Hub
	health   Pinger
	router   *mux.Router
	log      *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(rooms lobby.Service, sessions *session.Manager, hub *websocket.Hub, opts Options) *Server {
	s := &Server{
		rooms:    rooms,
		sessions: sessions,
		hub:      hub,
		health:   opts.Health,
		router:   mux.NewRouter(),
		log:      logger.OrNop(opts.Logger),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/room", s.handleGetRoom).Methods("GET")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := s.sessions.RoomID()

	snapshot, err := s.rooms.Snapshot(r.Context(), roomID)
	if err != nil {
		s.log.Errorw("failed to read room", "room", roomID, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	view, err := s.rooms.LobbyView(r.Context(), roomID)
	if err != nil {
		s.log.Errorw("failed to build lobby view", "room", roomID, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	connections, err := s.hub.GroupSize(r.Context(), lobby.GroupID(roomID))
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, RoomResponse{
		RoomID:      roomID,
		Phase:       snapshot.Phase,
		Admin:       snapshot.Admin,
		Players:     view,
		Connections: connections,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	open := s.sessions.List()

	infos := make([]session.Info, 0, len(open))
	for _, sess := range open {
		infos = append(infos, sess.Info())
	}

	respondJSON(w, http.StatusOK, SessionsResponse{
		Count:    len(infos),
		Sessions: infos,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, s.sessions, r.URL.Query().Get("nickname"))
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.log.Warnw("health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
