package domain

import "time"

// User statuses persisted in the store.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type User struct {
	ID           string
	Nickname     string
	PasswordHash string
	Role         string
	Status       string
	Banned       bool
	BanReason    string
	BanExpires   *time.Time
	MuteExpires  *time.Time
	CreatedAt    time.Time
}

// BanActive reports whether the ban applies at the given instant.
// A set flag with no expiry is a permanent ban.
func (u User) BanActive(now time.Time) bool {
	if !u.Banned {
		return false
	}
	return u.BanExpires == nil || u.BanExpires.After(now)
}

// MuteActive reports whether the user is muted at the given instant.
func (u User) MuteActive(now time.Time) bool {
	return u.MuteExpires != nil && u.MuteExpires.After(now)
}
