package domain

import "time"

// Session is the server-held authenticated state tied to a client. The
// CSRF token acts as a fingerprint that every realtime handshake must
// reproduce exactly. Sessions are created at login or register and
// destroyed at logout; the handshake never creates one.
type Session struct {
	ID           string
	UserID       string
	Nickname     string
	Role         string
	CSRFToken    string
	UserAgent    string
	LoginTime    time.Time
	LastActivity time.Time
}
