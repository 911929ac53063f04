package lobby

import "sync"

// roomLocks hands out one mutex per room. Entries are reference counted and
// dropped once no goroutine holds or waits for them.
type roomLocks struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{
		rooms: make(map[string]*roomLock),
	}
}

// lock blocks until the room's mutex is held and returns its release func.
func (l *roomLocks) lock(roomID string) func() {
	l.mu.Lock()
	rl, ok := l.rooms[roomID]
	if !ok {
		rl = &roomLock{}
		l.rooms[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			rl.mu.Unlock()

			l.mu.Lock()
			rl.refs--
			if rl.refs == 0 {
				delete(l.rooms, roomID)
			}
			l.mu.Unlock()
		})
	}
}

// size reports how many rooms currently have a lock entry.
func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rooms)
}
