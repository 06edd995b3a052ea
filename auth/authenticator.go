package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"relaychat/domain"
	"relaychat/errors"
	"relaychat/repositories"
	"relaychat/resilience"
)

// Authenticator validates a realtime handshake against a stored session and
// its CSRF fingerprint. It only resolves identity; it creates no presence
// state, so a rejection on any step leaves nothing to clean up.
type Authenticator struct {
	sessions repositories.ISessionRepository
	users    repositories.IUserRepository
	store    *resilience.Breaker
	scores   resilience.ScoreRecorder
	log      *slog.Logger
	now      func() time.Time
}

func NewAuthenticator(
	sessions repositories.ISessionRepository,
	users repositories.IUserRepository,
	store *resilience.Breaker,
	scores resilience.ScoreRecorder,
	log *slog.Logger,
) *Authenticator {
	return &Authenticator{
		sessions: sessions,
		users:    users,
		store:    store,
		scores:   scores,
		log:      log,
		now:      time.Now,
	}
}

// Authenticate resolves the handshake to an Identity or rejects it.
// The checks run in a fixed order: session existence, CSRF fingerprint,
// user existence, ban policy. Ban rejections surface a *errors.BanError so
// the transport can emit the banned event before closing.
func (a *Authenticator) Authenticate(ctx context.Context, hs domain.Handshake) (domain.Identity, error) {
	if hs.SessionID == "" {
		return domain.Identity{}, errors.ErrNoSession
	}

	var session domain.Session
	err := a.store.Do(ctx, func(ctx context.Context) error {
		found, err := a.sessions.GetSession(hs.SessionID)
		session = found
		return err
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrSessionNotFound) {
			return domain.Identity{}, errors.ErrNoSession
		}
		return domain.Identity{}, fmt.Errorf("session lookup: %w", err)
	}

	// Exact match only. A session that exists but presents the wrong
	// fingerprint is a stolen-cookie signal, so it costs trust.
	if hs.CSRFToken == "" || hs.CSRFToken != session.CSRFToken {
		a.penalize(ctx, session.UserID, resilience.OutcomeSuspicious)
		return domain.Identity{}, errors.ErrCSRFMismatch
	}

	var user domain.User
	err = a.store.Do(ctx, func(ctx context.Context) error {
		found, err := a.users.GetUserByID(session.UserID)
		user = found
		return err
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return domain.Identity{}, errors.ErrUserNotFound
		}
		return domain.Identity{}, fmt.Errorf("user lookup: %w", err)
	}

	if user.BanActive(a.now()) {
		a.penalize(ctx, user.ID, resilience.OutcomeAuthFailure)
		return domain.Identity{}, &errors.BanError{
			Reason:  user.BanReason,
			Expires: user.BanExpires,
		}
	}

	go a.touchSession(session.ID)

	return domain.Identity{
		UserID:   user.ID,
		Nickname: user.Nickname,
		Role:     user.Role,
	}, nil
}

func (a *Authenticator) penalize(ctx context.Context, userID string, outcome resilience.Outcome) {
	if a.scores != nil {
		a.scores.Record(ctx, userID, outcome)
	}
}

// touchSession refreshes last-activity in the background; the handshake
// result never depends on it.
func (a *Authenticator) touchSession(sessionID string) {
	if err := a.sessions.TouchSession(sessionID, a.now()); err != nil {
		a.log.Debug("Session activity refresh failed", "session_id", sessionID, "error", err)
	}
}
