package auth

import (
	"time"

	"github.com/google/uuid"

	"relaychat/domain"
)

// NewSession mints a fresh session for a user who just proved their
// credentials. The CSRF token is the fingerprint the realtime handshake
// must reproduce exactly; it is never derived from anything the client
// could guess.
func NewSession(user domain.User, userAgent string, now time.Time) domain.Session {
	return domain.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Nickname:     user.Nickname,
		Role:         user.Role,
		CSRFToken:    uuid.NewString(),
		UserAgent:    userAgent,
		LoginTime:    now.UTC(),
		LastActivity: now.UTC(),
	}
}
