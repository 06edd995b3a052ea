//go:generate go run go.uber.org/mock/mockgen -source=room_service.go -destination=../mocks/mock_room_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"relaychat/domain"
	"relaychat/errors"
	"relaychat/observability"
	"relaychat/repositories"
	"relaychat/resilience"
	"relaychat/runtime"
)

const (
	maxRoomLength = 50
	historyLimit  = 100
	joinAttempts  = 3
	joinBackoff   = 500 * time.Millisecond
)

type IRoomService interface {
	Join(ctx context.Context, socketID, room string) error
	Leave(ctx context.Context, socketID string)
	History(ctx context.Context, socketID string) ([]MessageEvent, error)
}

// RoomService drives the per-connection join state machine:
// Unjoined -> Joining -> Joined, re-entrant on re-join. All store calls go
// through the breaker; transient failures are retried with backoff before
// the join surfaces JOIN_ROOM_FAILED.
type RoomService struct {
	registry *runtime.Registry
	channels repositories.IChannelRepository
	messages repositories.IMessageRepository
	store    *resilience.Breaker
	order    *RoomOrder
	monitor  *observability.Monitor
	log      *slog.Logger
	backoff  time.Duration
}

func NewRoomService(
	registry *runtime.Registry,
	channels repositories.IChannelRepository,
	messages repositories.IMessageRepository,
	store *resilience.Breaker,
	order *RoomOrder,
	monitor *observability.Monitor,
	log *slog.Logger,
) *RoomService {
	return &RoomService{
		registry: registry,
		channels: channels,
		messages: messages,
		store:    store,
		order:    order,
		monitor:  monitor,
		log:      log,
		backoff:  joinBackoff,
	}
}

// Join validates the room, verifies the channel exists, leaves any prior
// room, announces the arrival, and replays the history to the joiner.
// Nothing is mutated before the channel existence check succeeds.
func (s *RoomService) Join(ctx context.Context, socketID, room string) error {
	if strings.TrimSpace(room) == "" {
		return errors.ErrMissingRoom
	}
	if !validRoomName(room) {
		return errors.ErrInvalidRoomFormat
	}

	if err := s.verifyChannel(ctx, room); err != nil {
		return err
	}

	entry, ok := s.registry.Get(socketID)
	if !ok {
		// The socket vanished while we were checking the store.
		return fmt.Errorf("join %q: %w", room, errors.ErrSinkClosed)
	}

	if entry.Room != "" {
		s.announceLeave(ctx, entry)
	}

	if _, ok := s.registry.SetRoom(socketID, room); !ok {
		return fmt.Errorf("join %q: %w", room, errors.ErrSinkClosed)
	}

	s.announce(ctx, room, fmt.Sprintf("%s joined the room", entry.Identity.Nickname))
	s.broadcast(room, domain.Event{
		Name: domain.EventOnlineUsers,
		Data: s.registry.Snapshot(room),
	})

	history, err := s.History(ctx, socketID)
	if err != nil {
		s.log.Warn("History replay failed on join", "room", room, "error", err)
		history = []MessageEvent{}
	}
	if sink, ok := s.registry.SinkFor(socketID); ok {
		if err := sink.Send(domain.Event{Name: domain.EventHistory, Data: history}); err != nil {
			s.log.Debug("History delivery dropped", "socket_id", socketID, "error", err)
		}
	}
	return nil
}

// Leave announces the departure and clears the room pointer. It is
// idempotent and tolerates partially inconsistent state: calling it on a
// socket with no room, or twice, does nothing.
func (s *RoomService) Leave(ctx context.Context, socketID string) {
	entry, ok := s.registry.Get(socketID)
	if !ok || entry.Room == "" {
		return
	}
	s.announceLeave(ctx, entry)
}

// History returns the room's chronological tail, filtered to what the
// requesting identity may see.
func (s *RoomService) History(ctx context.Context, socketID string) ([]MessageEvent, error) {
	entry, ok := s.registry.Get(socketID)
	if !ok || entry.Room == "" {
		return nil, errors.ErrMissingRoom
	}

	var messages []domain.Message
	err := s.store.Do(ctx, func(ctx context.Context) error {
		found, err := s.messages.GetMessages(entry.Room, historyLimit)
		messages = found
		return err
	})
	if err != nil {
		return nil, err
	}

	visible := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.VisibleTo(entry.Identity) {
			visible = append(visible, m)
		}
	}
	return toMessageEvents(visible), nil
}

// verifyChannel checks the channel exists, retrying transient store
// failures with a linear backoff. A definite not-found is never retried.
func (s *RoomService) verifyChannel(ctx context.Context, room string) error {
	var lastErr error
	for attempt := 1; attempt <= joinAttempts; attempt++ {
		err := s.store.Do(ctx, func(ctx context.Context) error {
			_, err := s.channels.GetChannel(room)
			return err
		})
		if err == nil {
			return nil
		}
		if stderrors.Is(err, errors.ErrChannelNotFound) {
			return errors.ErrChannelNotFound
		}
		if stderrors.Is(err, errors.ErrBreakerOpen) {
			// The breaker already decided the store is down; retrying
			// only delays the failure the caller will get anyway.
			return fmt.Errorf("%w: %v", errors.ErrJoinRoomFailed, err)
		}
		lastErr = err
		if attempt < joinAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", errors.ErrJoinRoomFailed, ctx.Err())
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
	}
	return fmt.Errorf("%w: %v", errors.ErrJoinRoomFailed, lastErr)
}

// announceLeave clears the leaver's room pointer first so neither the
// system message nor the refreshed snapshot includes them. The clear is a
// compare-and-clear: when two teardown paths race past the entry lookup,
// only the one that actually cleared the pointer announces.
func (s *RoomService) announceLeave(ctx context.Context, entry runtime.ConnectionEntry) {
	room := entry.Room
	if !s.registry.ClearRoom(entry.SocketID, room) {
		return
	}
	s.announce(ctx, room, fmt.Sprintf("%s left the room", entry.Identity.Nickname))
	s.broadcast(room, domain.Event{
		Name: domain.EventOnlineUsers,
		Data: s.registry.SnapshotExcluding(room, entry.SocketID),
	})
}

// announce persists and broadcasts a system message. Persistence failures
// are logged, not surfaced: presence changes must never be blocked by a
// store hiccup.
func (s *RoomService) announce(ctx context.Context, room, text string) {
	message := domain.Message{
		ID:      uuid.New(),
		Author:  domain.SystemAuthor,
		Channel: room,
		Content: text,
		Type:    domain.MessageSystem,
		At:      time.Now().UTC(),
	}

	m := s.order.Lock(room)
	defer m.Unlock()

	err := s.store.Do(ctx, func(ctx context.Context) error {
		return s.messages.StoreMessage(message)
	})
	if err != nil {
		s.log.Warn("System message not persisted", "room", room, "error", err)
	}
	s.broadcast(room, domain.Event{Name: domain.EventMessage, Data: toMessageEvent(message)})
}

func (s *RoomService) broadcast(room string, e domain.Event) {
	for _, sink := range s.registry.SinksForRoom(room) {
		if err := sink.Send(e); err != nil {
			s.log.Debug("Broadcast delivery dropped", "room", room, "event", e.Name, "error", err)
		}
	}
	s.monitor.IncrBroadcasts()
}

// validRoomName rejects names that cannot be channel ids.
func validRoomName(room string) bool {
	if utf8.RuneCountInString(room) > maxRoomLength {
		return false
	}
	for _, r := range room {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
