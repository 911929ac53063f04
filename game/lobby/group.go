package lobby

import "context"

// Member is one connection subscribed to a group.
type Member interface {
	// ConnectionID identifies the member within its group.
	ConnectionID() string

	// Deliver queues an encoded event for the connection. It must not block;
	// an error means the member could not take the event.
	Deliver(payload []byte) error

	// Close tears the connection down. Called when a member is dropped.
	Close()
}

// Group is the publish/subscribe substrate that fans events out to a room.
type Group interface {
	// Subscribe adds member to groupID. Subscribing twice is a no-op.
	Subscribe(ctx context.Context, groupID string, member Member) error

	// Unsubscribe removes member from groupID. Removing an unknown member is a no-op.
	Unsubscribe(ctx context.Context, groupID string, member Member) error

	// SendToGroup delivers event once to every member subscribed to groupID
	// and reports how many members received it.
	SendToGroup(ctx context.Context, groupID string, event Event) (int, error)
}

// GroupID returns the broadcast group name for a room.
func GroupID(roomID string) string {
	return "game_" + roomID
}
