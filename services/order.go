package services

import "sync"

// RoomOrder serializes the persist-then-broadcast section per room so the
// broadcast order inside one room always follows the order in which each
// message's persistence completed. No ordering is promised across rooms.
type RoomOrder struct {
	mu    sync.Mutex
	rooms map[string]*sync.Mutex
}

func NewRoomOrder() *RoomOrder {
	return &RoomOrder{rooms: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex of one room, creating it on first use. The
// returned mutex is already held; the caller unlocks it.
func (o *RoomOrder) Lock(room string) *sync.Mutex {
	o.mu.Lock()
	m, ok := o.rooms[room]
	if !ok {
		m = &sync.Mutex{}
		o.rooms[room] = m
	}
	o.mu.Unlock()

	m.Lock()
	return m
}
