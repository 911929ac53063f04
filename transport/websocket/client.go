package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wricardo/drawing-lobby/game/session"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. A larger frame ends the
	// connection because the reader cannot skip it.
	maxMessageSize = 64 * 1024
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect from whatever origin serves the frontend.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection. It implements lobby.Member.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	// closed by Close; send itself is never closed so Deliver cannot panic
	done      chan struct{}
	closeOnce sync.Once

	log *zap.SugaredLogger
}

// newClient creates a client before its connection exists; ServeWS attaches
// conn after the upgrade.
func newClient(bufferSize int, log *zap.SugaredLogger) *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
		log:  log.With("conn", id),
	}
}

// ConnectionID returns the id assigned when the connection was accepted
func (c *Client) ConnectionID() string {
	return c.id
}

// Deliver queues payload for the write pump without blocking.
func (c *Client) Deliver(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// ServeWS runs a session for nickname over an upgraded connection. An invalid
// nickname is answered with a bare 403 before the upgrade, and a draining hub
// answers 503.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessions *session.Manager, nickname string) {
	client := newClient(h.sendBuffer, h.log)

	sess, err := sessions.NewSession(client, nickname)
	if err != nil {
		h.log.Debugw("refusing connection", "nickname", nickname, "error", err)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if !h.track(client) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		h.untrack(client)
		return
	}
	client.conn = conn

	// The request context ends when this handler returns.
	ctx := context.WithoutCancel(r.Context())

	go client.writePump()
	go func() {
		defer h.untrack(client)
		client.readPump(ctx, sess)
	}()
}

// readPump opens the session, pumps inbound frames into it and closes it
// when the connection ends
func (c *Client) readPump(ctx context.Context, sess *session.Session) {
	defer func() {
		if err := sess.Close(ctx); err != nil {
			c.log.Errorw("failed to close session", "error", err)
		}
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := sess.Open(ctx); err != nil {
		c.log.Errorw("failed to open session", "error", err)
		return
	}

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warnw("websocket read error", "error", err)
			}
			return
		}

		if err := sess.HandleMessage(ctx, message); err != nil {
			c.log.Errorw("failed to handle message", "error", err)
		}
	}
}

// writePump writes queued frames to the connection, one event per frame
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
