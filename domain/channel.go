package domain

import "time"

// Channel is a named broadcast scope. Membership is derived from live
// connections in the presence registry, never persisted here.
type Channel struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
