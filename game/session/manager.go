package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/wricardo/drawing-lobby/game/lobby"
	"github.com/wricardo/drawing-lobby/logger"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidNickname = errors.New("invalid nickname")
)

// Options configure the sessions a Manager creates
type Options struct {
	// RoomID is the room every session joins.
	RoomID string

	// MaxNicknameLength is the longest accepted nickname, in characters.
	MaxNicknameLength int

	// FlaggedNickname marks players whose nickname equals it, ignoring case.
	FlaggedNickname string

	Logger *zap.SugaredLogger
}

// Manager creates sessions and tracks the ones that are open
type Manager struct {
	rooms    lobby.Service
	group    lobby.Group
	opts     Options
	log      *zap.SugaredLogger
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager creates a session manager backed by the given room service and group
func NewManager(rooms lobby.Service, group lobby.Group, opts Options) *Manager {
	if opts.RoomID == "" {
		opts.RoomID = lobby.DefaultRoomID
	}
	if opts.MaxNicknameLength <= 0 {
		opts.MaxNicknameLength = 16
	}

	return &Manager{
		rooms:    rooms,
		group:    group,
		opts:     opts,
		log:      logger.OrNop(opts.Logger),
		sessions: make(map[string]*Session),
	}
}

// RoomID returns the room sessions join
func (m *Manager) RoomID() string {
	return m.opts.RoomID
}

// ValidateNickname rejects empty nicknames and ones longer than the limit.
func (m *Manager) ValidateNickname(nickname string) error {
	if nickname == "" {
		return fmt.Errorf("%w: empty", ErrInvalidNickname)
	}
	if n := utf8.RuneCountInString(nickname); n > m.opts.MaxNicknameLength {
		return fmt.Errorf("%w: %d characters, max %d", ErrInvalidNickname, n, m.opts.MaxNicknameLength)
	}
	return nil
}

// IsFlagged reports whether nickname matches the flagged marker.
func (m *Manager) IsFlagged(nickname string) bool {
	return m.opts.FlaggedNickname != "" && strings.EqualFold(nickname, m.opts.FlaggedNickname)
}

// NewSession validates nickname and builds an unopened session for member.
// No room state is touched until Open.
func (m *Manager) NewSession(member lobby.Member, nickname string) (*Session, error) {
	if err := m.ValidateNickname(nickname); err != nil {
		return nil, err
	}

	return &Session{
		ID:          member.ConnectionID(),
		RoomID:      m.opts.RoomID,
		Nickname:    nickname,
		Flagged:     m.IsFlagged(nickname),
		ConnectedAt: time.Now(),
		member:      member,
		manager:     m,
		log:         m.log.With("conn", member.ConnectionID(), "nickname", nickname),
	}, nil
}

// Get returns an open session by connection id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// List returns the open sessions, oldest first
func (m *Manager) List() []*Session {
	m.mu.RLock()
	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ConnectedAt.Equal(result[j].ConnectedAt) {
			return result[i].ConnectedAt.Before(result[j].ConnectedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Count returns the number of open sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.log.Infow("session opened", "conn", s.ID, "room", s.RoomID, "total", total)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	_, existed := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	total := len(m.sessions)
	m.mu.Unlock()

	if existed {
		m.log.Infow("session closed", "conn", s.ID, "room", s.RoomID, "remaining", total)
	}
}
