//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"relaychat/domain"
	"relaychat/errors"
	"relaychat/observability"
	"relaychat/repositories"
	"relaychat/resilience"
	"relaychat/runtime"
)

const maxNicknameLength = 50

type IMessageService interface {
	SendPublic(ctx context.Context, socketID, text string) error
	SendPrivate(ctx context.Context, socketID, target, text string) error
}

// MessageService validates, persists, and routes chat messages. Every
// violation is returned to the sender alone; other connections never see a
// failed attempt.
type MessageService struct {
	registry *runtime.Registry
	users    repositories.IUserRepository
	messages repositories.IMessageRepository
	store    *resilience.Breaker
	scores   resilience.ScoreRecorder
	order    *RoomOrder
	monitor  *observability.Monitor
	log      *slog.Logger
	now      func() time.Time
}

func NewMessageService(
	registry *runtime.Registry,
	users repositories.IUserRepository,
	messages repositories.IMessageRepository,
	store *resilience.Breaker,
	scores resilience.ScoreRecorder,
	order *RoomOrder,
	monitor *observability.Monitor,
	log *slog.Logger,
) *MessageService {
	return &MessageService{
		registry: registry,
		users:    users,
		messages: messages,
		store:    store,
		scores:   scores,
		order:    order,
		monitor:  monitor,
		log:      log,
		now:      time.Now,
	}
}

// SendPublic persists and broadcasts a public message to the sender's
// current room. Preconditions: the sender is in a room, the trimmed text is
// non-empty, and the sender is neither banned nor muted.
func (s *MessageService) SendPublic(ctx context.Context, socketID, text string) error {
	entry, ok := s.registry.Get(socketID)
	if !ok || entry.Room == "" {
		return errors.ErrMissingRoom
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return errors.ErrEmptyMessage
	}

	if err := s.checkAuthorPolicy(ctx, entry.Identity.UserID); err != nil {
		return err
	}

	message := domain.Message{
		ID:      uuid.New(),
		Author:  entry.Identity.Nickname,
		Channel: entry.Room,
		Content: text,
		Type:    domain.MessagePublic,
		At:      s.now().UTC(),
	}

	m := s.order.Lock(entry.Room)
	defer m.Unlock()

	err := s.store.Do(ctx, func(ctx context.Context) error {
		return s.messages.StoreMessage(message)
	})
	if err != nil {
		s.record(ctx, entry.Identity.UserID, resilience.OutcomeFailure)
		return fmt.Errorf("persist message: %w", err)
	}

	s.broadcast(entry.Room, domain.Event{Name: domain.EventMessage, Data: toMessageEvent(message)})
	s.monitor.IncrMessagesRouted()
	s.record(ctx, entry.Identity.UserID, resilience.OutcomeSuccess)
	return nil
}

// SendPrivate routes a message to one nickname in the sender's room.
// The message is persisted with its target regardless of live delivery so
// history can store-and-forward it; only then is presence checked.
func (s *MessageService) SendPrivate(ctx context.Context, socketID, target, text string) error {
	entry, ok := s.registry.Get(socketID)
	if !ok || entry.Room == "" {
		return errors.ErrMissingRoom
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return errors.ErrEmptyMessage
	}

	length := utf8.RuneCountInString(target)
	if length < 1 || length > maxNicknameLength {
		return errors.ErrInvalidTargetNickname
	}
	if target == entry.Identity.Nickname {
		return errors.ErrSelfMessage
	}

	if err := s.checkAuthorPolicy(ctx, entry.Identity.UserID); err != nil {
		return err
	}

	message := domain.Message{
		ID:      uuid.New(),
		Author:  entry.Identity.Nickname,
		Channel: entry.Room,
		Content: text,
		Type:    domain.MessagePrivate,
		Target:  target,
		At:      s.now().UTC(),
	}

	m := s.order.Lock(entry.Room)

	err := s.store.Do(ctx, func(ctx context.Context) error {
		return s.messages.StoreMessage(message)
	})
	m.Unlock()
	if err != nil {
		s.record(ctx, entry.Identity.UserID, resilience.OutcomeFailure)
		return fmt.Errorf("persist message: %w", err)
	}

	event := domain.Event{Name: domain.EventPrivateMessage, Data: toMessageEvent(message)}

	targetEntry, found := s.registry.FindByNickname(entry.Room, target)
	if !found {
		// Persisted for store-and-forward, but the sender must learn the
		// target is not here.
		return errors.ErrTargetNotInRoom
	}

	// A target present in the room but with a saturated sink is not an
	// error; the message is stored and the sender still gets the echo.
	if sink, ok := s.registry.SinkFor(targetEntry.SocketID); ok {
		if err := sink.Send(event); err != nil {
			s.log.Debug("Private delivery dropped", "target", target, "error", err)
		}
	}
	if sink, ok := s.registry.SinkFor(socketID); ok {
		if err := sink.Send(event); err != nil {
			s.log.Debug("Private echo dropped", "socket_id", socketID, "error", err)
		}
	}

	s.monitor.IncrMessagesRouted()
	s.record(ctx, entry.Identity.UserID, resilience.OutcomeSuccess)
	return nil
}

// checkAuthorPolicy enforces ban and mute at send time. Policy violations
// cost behavior score: a muted user hammering send is a signal.
func (s *MessageService) checkAuthorPolicy(ctx context.Context, userID string) error {
	var user domain.User
	err := s.store.Do(ctx, func(ctx context.Context) error {
		found, err := s.users.GetUserByID(userID)
		user = found
		return err
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return errors.ErrUserNotFound
		}
		return fmt.Errorf("author lookup: %w", err)
	}

	now := s.now()
	if user.BanActive(now) {
		s.record(ctx, userID, resilience.OutcomeSuspicious)
		return errors.ErrUserBanned
	}
	if user.MuteActive(now) {
		s.record(ctx, userID, resilience.OutcomeSuspicious)
		return errors.ErrUserMuted
	}
	return nil
}

func (s *MessageService) record(ctx context.Context, userID string, outcome resilience.Outcome) {
	if s.scores != nil {
		s.scores.Record(ctx, userID, outcome)
	}
}

func (s *MessageService) broadcast(room string, e domain.Event) {
	for _, sink := range s.registry.SinksForRoom(room) {
		if err := sink.Send(e); err != nil {
			s.log.Debug("Broadcast delivery dropped", "room", room, "event", e.Name, "error", err)
		}
	}
	s.monitor.IncrBroadcasts()
}
