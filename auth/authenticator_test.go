package auth_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"relaychat/auth"
	"relaychat/domain"
	"relaychat/errors"
	"relaychat/mocks"
	"relaychat/resilience"
)

type authFixture struct {
	sessions *mocks.MockISessionRepository
	users    *mocks.MockIUserRepository
	scores   *mocks.MockScoreRecorder
	auth     *auth.Authenticator
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	sessions := mocks.NewMockISessionRepository(ctrl)
	users := mocks.NewMockIUserRepository(ctrl)
	scores := mocks.NewMockScoreRecorder(ctrl)
	breaker := resilience.NewBreaker(resilience.BreakerSettings{
		Name:             "store",
		FailureThreshold: 100,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
	}, slog.Default())

	return authFixture{
		sessions: sessions,
		users:    users,
		scores:   scores,
		auth:     auth.NewAuthenticator(sessions, users, breaker, scores, slog.Default()),
	}
}

func storedSession() domain.Session {
	now := time.Now().UTC()
	return domain.Session{
		ID:           "sess-1",
		UserID:       "u1",
		Nickname:     "alice",
		Role:         "user",
		CSRFToken:    "fingerprint",
		LoginTime:    now,
		LastActivity: now,
	}
}

func storedUser() domain.User {
	return domain.User{
		ID:       "u1",
		Nickname: "alice",
		Role:     "user",
		Status:   domain.StatusOffline,
	}
}

func TestAuthenticator_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject an empty session id without touching the store", func(t *testing.T) {
		req := require.New(t)
		f := newAuthFixture(t)

		f.sessions.EXPECT().GetSession(gomock.Any()).Times(0)

		_, err := f.auth.Authenticate(ctx, domain.Handshake{CSRFToken: "fingerprint"})
		req.ErrorIs(err, errors.ErrNoSession)
	})

	t.Run("should reject an unknown session", func(t *testing.T) {
		req := require.New(t)
		f := newAuthFixture(t)

		f.sessions.EXPECT().GetSession("ghost").
			Return(domain.Session{}, errors.ErrSessionNotFound).Times(1)
		f.users.EXPECT().GetUserByID(gomock.Any()).Times(0)

		_, err := f.auth.Authenticate(ctx, domain.Handshake{SessionID: "ghost", CSRFToken: "x"})
		req.ErrorIs(err, errors.ErrNoSession)
	})

	t.Run("should reject a wrong fingerprint and penalize the user", func(t *testing.T) {
		req := require.New(t)
		f := newAuthFixture(t)

		f.sessions.EXPECT().GetSession("sess-1").Return(storedSession(), nil).Times(1)
		f.scores.EXPECT().Record(gomock.Any(), "u1", resilience.OutcomeSuspicious).Times(1)
		// User lookup never happens after the fingerprint check fails.
		f.users.EXPECT().GetUserByID(gomock.Any()).Times(0)

		_, err := f.auth.Authenticate(ctx, domain.Handshake{
			SessionID: "sess-1",
			CSRFToken: "stolen",
		})
		req.ErrorIs(err, errors.ErrCSRFMismatch)
	})

	t.Run("should reject an empty fingerprint even if the session has one", func(t *testing.T) {
		req := require.New(t)
		f := newAuthFixture(t)

		f.sessions.EXPECT().GetSession("sess-1").Return(storedSession(), nil).Times(1)
		f.scores.EXPECT().Record(gomock.Any(), "u1", resilience.OutcomeSuspicious).Times(1)

		_, err := f.auth.Authenticate(ctx, domain.Handshake{SessionID: "sess-1"})
		req.ErrorIs(err, errors.ErrCSRFMismatch)
	})

	t.Run("should reject a banned user with the ban details", func(t *testing.T) {
		req := require.New(t)
		f := newAuthFixture(t)

		expires := time.Now().Add(time.Hour)
		banned := storedUser()
		banned.Banned = true
		banned.BanReason = "spam"
		banned.BanExpires = &expires

		f.sessions.EXPECT().GetSession("sess-1").Return(storedSession(), nil).Times(1)
		f.users.EXPECT().GetUserByID("u1").Return(banned, nil).Times(1)
		f.scores.EXPECT().Record(gomock.Any(), "u1", resilience.OutcomeAuthFailure).Times(1)
		f.sessions.EXPECT().TouchSession(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.auth.Authenticate(ctx, domain.Handshake{
			SessionID: "sess-1",
			CSRFToken: "fingerprint",
		})

		var banErr *errors.BanError
		req.ErrorAs(err, &banErr)
		req.Equal("spam", banErr.Reason)
		req.NotNil(banErr.Expires)
		req.ErrorIs(err, errors.ErrBanned)
	})

	t.Run("should let an expired ban through", func(t *testing.T) {
		req := require.New(t)
		f := newAuthFixture(t)

		expired := time.Now().Add(-time.Hour)
		user := storedUser()
		user.Banned = true
		user.BanExpires = &expired

		touched := make(chan struct{})
		f.sessions.EXPECT().GetSession("sess-1").Return(storedSession(), nil).Times(1)
		f.users.EXPECT().GetUserByID("u1").Return(user, nil).Times(1)
		f.sessions.EXPECT().TouchSession("sess-1", gomock.Any()).
			DoAndReturn(func(string, time.Time) error {
				close(touched)
				return nil
			}).Times(1)

		identity, err := f.auth.Authenticate(ctx, domain.Handshake{
			SessionID: "sess-1",
			CSRFToken: "fingerprint",
		})
		req.NoError(err)
		req.Equal("alice", identity.Nickname)

		select {
		case <-touched:
		case <-time.After(time.Second):
			req.Fail("expected the session activity to be refreshed")
		}
	})
}

func TestAuthenticator_Success(t *testing.T) {
	req := require.New(t)
	f := newAuthFixture(t)

	touched := make(chan struct{})
	f.sessions.EXPECT().GetSession("sess-1").Return(storedSession(), nil).Times(1)
	f.users.EXPECT().GetUserByID("u1").Return(storedUser(), nil).Times(1)
	f.sessions.EXPECT().TouchSession("sess-1", gomock.Any()).
		DoAndReturn(func(string, time.Time) error {
			close(touched)
			return nil
		}).Times(1)

	identity, err := f.auth.Authenticate(context.Background(), domain.Handshake{
		SessionID: "sess-1",
		CSRFToken: "fingerprint",
		UserAgent: "test-agent",
	})
	req.NoError(err)
	req.Equal(domain.Identity{UserID: "u1", Nickname: "alice", Role: "user"}, identity)

	select {
	case <-touched:
	case <-time.After(time.Second):
		req.Fail("expected the session activity to be refreshed")
	}
}
