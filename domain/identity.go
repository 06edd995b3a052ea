// Package domain contains core concepts of the chat system.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is the authenticated principal behind a realtime connection.
// It is resolved once, at handshake time, and never mutated afterwards.
type Identity struct {
	UserID   string
	Nickname string
	Role     string
}

// Handshake is the auth payload a client must present before any other
// realtime event is accepted.
type Handshake struct {
	SessionID string
	CSRFToken string
	UserAgent string
}

// ConnectionContext is the immutable per-connection state created at
// authentication and passed to every event handler. Mutable connection
// state (room, heartbeat) lives in the presence registry, never here.
type ConnectionContext struct {
	SocketID string
	Identity Identity
}

// Presence is the projection of a live connection shared with room members.
type Presence struct {
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}
