//go:generate go run go.uber.org/mock/mockgen -source=presence_service.go -destination=../mocks/mock_presence_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"relaychat/contract"
	"relaychat/domain"
	"relaychat/errors"
	"relaychat/observability"
	"relaychat/repositories"
	"relaychat/resilience"
	"relaychat/runtime"
)

type IPresenceService interface {
	Connect(socketID string, identity domain.Identity, sink contract.EventSink)
	Disconnect(ctx context.Context, socketID string)
	DisconnectUser(ctx context.Context, userID string) int
}

// PresenceService owns the connection lifecycle around the registry:
// registering authenticated sockets, tearing them down from every path
// (client close, eviction, logout, moderation), and keeping the persisted
// user status in sync with the connection counter.
type PresenceService struct {
	registry *runtime.Registry
	rooms    IRoomService
	voice    IVoiceService
	users    repositories.IUserRepository
	store    *resilience.Breaker
	monitor  *observability.Monitor
	log      *slog.Logger
}

func NewPresenceService(
	registry *runtime.Registry,
	rooms IRoomService,
	voice IVoiceService,
	users repositories.IUserRepository,
	store *resilience.Breaker,
	monitor *observability.Monitor,
	log *slog.Logger,
) *PresenceService {
	return &PresenceService{
		registry: registry,
		rooms:    rooms,
		voice:    voice,
		users:    users,
		store:    store,
		monitor:  monitor,
		log:      log,
	}
}

// Connect registers an authenticated connection. The first connection of a
// user flips their persisted status to online, asynchronously: presence
// must not wait on the store.
func (s *PresenceService) Connect(socketID string, identity domain.Identity, sink contract.EventSink) {
	count := s.registry.Register(socketID, identity, sink, time.Now())
	s.monitor.IncrConnectionsOpened()
	if count == 1 {
		go s.markStatus(identity.UserID, domain.StatusOnline)
	}
}

// Disconnect tears a connection down completely. It is unconditional and
// idempotent: whatever state a prior operation managed to build, every
// piece is removed exactly once.
func (s *PresenceService) Disconnect(ctx context.Context, socketID string) {
	if _, ok := s.registry.Get(socketID); !ok {
		return
	}

	s.voice.Leave(ctx, socketID)
	s.rooms.Leave(ctx, socketID)

	entry, remaining, ok := s.registry.Unregister(socketID)
	if !ok {
		return
	}
	s.monitor.IncrConnectionsClosed()
	if remaining == 0 {
		go s.markStatus(entry.Identity.UserID, domain.StatusOffline)
	}
}

// DisconnectUser force-disconnects every socket of a user and returns how
// many were closed. The HTTP layer calls this on logout and moderation.
func (s *PresenceService) DisconnectUser(ctx context.Context, userID string) int {
	sockets := s.registry.SocketsForUser(userID)
	for _, socketID := range sockets {
		s.Disconnect(ctx, socketID)
	}
	return len(sockets)
}

// markStatus is best-effort by design: a store outage must never take the
// presence subsystem down with it.
func (s *PresenceService) markStatus(userID, status string) {
	err := s.store.Do(context.Background(), func(ctx context.Context) error {
		return s.users.UpdateUserStatus(userID, status)
	})
	if err != nil && !stderrors.Is(err, errors.ErrUserNotFound) {
		s.log.Warn("User status update failed", "user_id", userID, "status", status, "error", err)
	}
}
