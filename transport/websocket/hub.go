package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/wricardo/drawing-lobby/game/lobby"
	"github.com/wricardo/drawing-lobby/logger"
	"go.uber.org/zap"
)

// ErrHubClosed is returned by requests made after Run has stopped.
var ErrHubClosed = errors.New("hub closed")

// HubOptions configure a Hub
type HubOptions struct {
	// SendBufferSize is the number of outbound frames a client may queue
	// before it is treated as a slow consumer.
	SendBufferSize int

	Logger *zap.SugaredLogger
}

type subscription struct {
	groupID string
	member  lobby.Member
	reply   chan struct{}
}

type broadcast struct {
	groupID string
	payload []byte
	reply   chan int
}

type sizeQuery struct {
	groupID string
	reply   chan int
}

// Hub maintains broadcast groups and fans events out to their members
type Hub struct {
	// Members by group id, then connection id. Owned by Run.
	groups map[string]map[string]lobby.Member

	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan broadcast
	size        chan sizeQuery

	done       chan struct{}
	sendBuffer int
	log        *zap.SugaredLogger

	// Connections accepted by ServeWS whose read pump has not returned.
	mu       sync.Mutex
	clients  map[*Client]struct{}
	draining bool
	active   sync.WaitGroup
}

// NewHub creates a new WebSocket hub
func NewHub(opts HubOptions) *Hub {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}

	return &Hub{
		groups:      make(map[string]map[string]lobby.Member),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		broadcast:   make(chan broadcast),
		size:        make(chan sizeQuery),
		done:        make(chan struct{}),
		clients:     make(map[*Client]struct{}),
		sendBuffer:  opts.SendBufferSize,
		log:         logger.OrNop(opts.Logger),
	}
}

// Run handles hub requests until ctx is cancelled. Members still subscribed
// at that point are closed.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-h.subscribe:
			h.add(req.groupID, req.member)
			req.reply <- struct{}{}

		case req := <-h.unsubscribe:
			h.remove(req.groupID, req.member.ConnectionID())
			req.reply <- struct{}{}

		case req := <-h.broadcast:
			req.reply <- h.fanOut(req.groupID, req.payload)

		case req := <-h.size:
			req.reply <- len(h.groups[req.groupID])
		}
	}
}

// Subscribe adds m to groupID. Subscribing twice is a no-op.
func (h *Hub) Subscribe(ctx context.Context, groupID string, m lobby.Member) error {
	req := subscription{groupID: groupID, member: m, reply: make(chan struct{}, 1)}
	if err := sendOn(ctx, h.done, h.subscribe, req); err != nil {
		return err
	}
	return wait(ctx, h.done, req.reply)
}

// Unsubscribe removes m from groupID. Removing a non-member is a no-op.
func (h *Hub) Unsubscribe(ctx context.Context, groupID string, m lobby.Member) error {
	req := subscription{groupID: groupID, member: m, reply: make(chan struct{}, 1)}
	if err := sendOn(ctx, h.done, h.unsubscribe, req); err != nil {
		return err
	}
	return wait(ctx, h.done, req.reply)
}

// SendToGroup delivers event to every member of groupID exactly once and
// returns how many members accepted it.
func (h *Hub) SendToGroup(ctx context.Context, groupID string, event lobby.Event) (int, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	req := broadcast{groupID: groupID, payload: payload, reply: make(chan int, 1)}
	if err := sendOn(ctx, h.done, h.broadcast, req); err != nil {
		return 0, err
	}

	select {
	case n := <-req.reply:
		return n, nil
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// GroupSize returns the number of members subscribed to groupID.
func (h *Hub) GroupSize(ctx context.Context, groupID string) (int, error) {
	req := sizeQuery{groupID: groupID, reply: make(chan int, 1)}
	if err := sendOn(ctx, h.done, h.size, req); err != nil {
		return 0, err
	}

	select {
	case n := <-req.reply:
		return n, nil
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Drain stops accepting connections, closes the open ones and waits until
// each has finished its session. Call it while Run is still going so the
// sessions can leave their rooms; it returns ctx.Err() if they do not finish
// in time.
func (h *Hub) Drain(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	open := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		open = append(open, c)
	}
	h.mu.Unlock()

	h.log.Infow("draining connections", "open", len(open))
	for _, c := range open {
		c.Close()
	}

	finished := make(chan struct{})
	go func() {
		h.active.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers a connection, refusing it once Drain has started.
func (h *Hub) track(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.clients[c] = struct{}{}
	h.active.Add(1)
	return true
}

func (h *Hub) untrack(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.active.Done()
}

func sendOn[T any](ctx context.Context, done <-chan struct{}, ch chan<- T, req T) error {
	select {
	case ch <- req:
		return nil
	case <-done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wait(ctx context.Context, done <-chan struct{}, reply <-chan struct{}) error {
	select {
	case <-reply:
		return nil
	case <-done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) add(groupID string, m lobby.Member) {
	if h.groups[groupID] == nil {
		h.groups[groupID] = make(map[string]lobby.Member)
	}
	h.groups[groupID][m.ConnectionID()] = m

	h.log.Debugw("member subscribed", "group", groupID, "conn", m.ConnectionID(), "total", len(h.groups[groupID]))
}

func (h *Hub) remove(groupID, connectionID string) {
	members, ok := h.groups[groupID]
	if !ok {
		return
	}
	if _, ok := members[connectionID]; !ok {
		return
	}

	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.groups, groupID)
	}

	h.log.Debugw("member unsubscribed", "group", groupID, "conn", connectionID, "remaining", len(members))
}

// fanOut hands payload to each member. Members that refuse it are dropped
// from the group and closed.
func (h *Hub) fanOut(groupID string, payload []byte) int {
	delivered := 0
	for id, m := range h.groups[groupID] {
		if err := m.Deliver(payload); err != nil {
			h.log.Warnw("dropping member", "group", groupID, "conn", id, "error", err)
			h.remove(groupID, id)
			m.Close()
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) shutdown() {
	close(h.done)

	for groupID, members := range h.groups {
		for _, m := range members {
			m.Close()
		}
		delete(h.groups, groupID)
	}
	h.log.Infow("hub stopped")
}
