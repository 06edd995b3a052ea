// Package runtime holds the process-local presence state: which sockets
// are live, who is behind them, and where they are. All of it is soft
// state; after a restart clients reconnect and re-register.
package runtime

import (
	"sort"
	"sync"
	"time"

	"relaychat/contract"
	"relaychat/domain"
)

// ConnectionEntry is the registry's record of one live, authenticated
// connection. An entry exists only after a successful handshake.
type ConnectionEntry struct {
	SocketID      string
	Identity      domain.Identity
	Room          string
	VoiceChannel  string
	LastHeartbeat time.Time
}

type connection struct {
	entry ConnectionEntry
	sink  contract.EventSink
}

// Registry owns the connection map and the per-user connection counters.
// Both are guarded by one RWMutex; callers only ever see copies, never the
// shared maps themselves.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*connection
	counters    map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*connection),
		counters:    make(map[string]int),
	}
}

// Register records an authenticated connection and increments the user's
// connection counter. It returns the new counter value; 1 means the user
// just came online.
func (r *Registry) Register(socketID string, identity domain.Identity, sink contract.EventSink, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[socketID] = &connection{
		entry: ConnectionEntry{
			SocketID:      socketID,
			Identity:      identity,
			LastHeartbeat: now,
		},
		sink: sink,
	}
	r.counters[identity.UserID]++
	return r.counters[identity.UserID]
}

// Unregister removes the entry, closes its sink, and decrements the user's
// counter. It is idempotent: a second call for the same socket reports
// ok=false and mutates nothing, so cleanup paths may race safely.
func (r *Registry) Unregister(socketID string) (ConnectionEntry, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[socketID]
	if !ok {
		return ConnectionEntry{}, 0, false
	}
	delete(r.connections, socketID)
	conn.sink.Close()

	userID := conn.entry.Identity.UserID
	remaining := r.counters[userID] - 1
	if remaining <= 0 {
		delete(r.counters, userID)
		remaining = 0
	} else {
		r.counters[userID] = remaining
	}
	return conn.entry, remaining, true
}

// SetRoom moves the connection's room pointer and returns the previous room.
func (r *Registry) SetRoom(socketID, room string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[socketID]
	if !ok {
		return "", false
	}
	prev := conn.entry.Room
	conn.entry.Room = room
	return prev, true
}

// ClearRoom resets the room pointer if it still references the given room
// and reports whether this call did the clearing. Concurrent teardown paths
// (transport close, eviction, logout) use the return value to decide which
// of them announces the departure.
func (r *Registry) ClearRoom(socketID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[socketID]; ok && conn.entry.Room == room {
		conn.entry.Room = ""
		return true
	}
	return false
}

// SetVoiceChannel moves the connection's voice pointer and returns the
// previous voice channel.
func (r *Registry) SetVoiceChannel(socketID, channel string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[socketID]
	if !ok {
		return "", false
	}
	prev := conn.entry.VoiceChannel
	conn.entry.VoiceChannel = channel
	return prev, true
}

// Touch refreshes the liveness timestamp; any inbound activity counts.
func (r *Registry) Touch(socketID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[socketID]; ok {
		conn.entry.LastHeartbeat = now
	}
}

// Get returns a copy of the entry for the socket.
func (r *Registry) Get(socketID string) (ConnectionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[socketID]
	if !ok {
		return ConnectionEntry{}, false
	}
	return conn.entry, true
}

// SinkFor returns the outbound sink of one socket.
func (r *Registry) SinkFor(socketID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[socketID]
	if !ok {
		return nil, false
	}
	return conn.sink, true
}

// SinksForRoom resolves the live sinks of every room member.
func (r *Registry) SinksForRoom(room string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sinks []contract.EventSink
	for _, conn := range r.connections {
		if conn.entry.Room == room {
			sinks = append(sinks, conn.sink)
		}
	}
	return sinks
}

// AllSinks returns every live sink; the heartbeat monitor probes them all.
func (r *Registry) AllSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sinks := make([]contract.EventSink, 0, len(r.connections))
	for _, conn := range r.connections {
		sinks = append(sinks, conn.sink)
	}
	return sinks
}

// Snapshot lists the identities present in a room, sorted by nickname so
// consumers see a stable order.
func (r *Registry) Snapshot(room string) []domain.Presence {
	return r.SnapshotExcluding(room, "")
}

// SnapshotExcluding is Snapshot minus one socket, used when broadcasting
// the presence of a room someone is leaving.
func (r *Registry) SnapshotExcluding(room, excludeSocketID string) []domain.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]domain.Presence, 0)
	for _, conn := range r.connections {
		if conn.entry.Room != room || conn.entry.SocketID == excludeSocketID {
			continue
		}
		snapshot = append(snapshot, domain.Presence{
			Nickname: conn.entry.Identity.Nickname,
			Role:     conn.entry.Identity.Role,
		})
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Nickname < snapshot[j].Nickname
	})
	return snapshot
}

// FindByNickname locates a live connection by nickname within a room.
// Private messaging is room-scoped, so the lookup is too.
func (r *Registry) FindByNickname(room, nickname string) (ConnectionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.connections {
		if conn.entry.Room == room && conn.entry.Identity.Nickname == nickname {
			return conn.entry, true
		}
	}
	return ConnectionEntry{}, false
}

// SocketsForUser lists every socket a user currently holds. The HTTP layer
// uses this to force-disconnect a user on logout or moderation.
func (r *Registry) SocketsForUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sockets []string
	for socketID, conn := range r.connections {
		if conn.entry.Identity.UserID == userID {
			sockets = append(sockets, socketID)
		}
	}
	return sockets
}

// VoicePeers lists the other connections in a voice channel.
func (r *Registry) VoicePeers(channel, excludeSocketID string) []ConnectionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var peers []ConnectionEntry
	for _, conn := range r.connections {
		if conn.entry.VoiceChannel == channel && conn.entry.SocketID != excludeSocketID {
			peers = append(peers, conn.entry)
		}
	}
	return peers
}

// StaleSockets returns the sockets whose last heartbeat is older than the
// cutoff. The sweep evicts them.
func (r *Registry) StaleSockets(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []string
	for socketID, conn := range r.connections {
		if conn.entry.LastHeartbeat.Before(cutoff) {
			stale = append(stale, socketID)
		}
	}
	return stale
}

// Count returns the user's current connection count.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[userID]
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
