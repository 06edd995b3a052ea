package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"relaychat/domain"
	"relaychat/mocks"
	"relaychat/observability"
	"relaychat/runtime"
	"relaychat/sink"
)

type presenceFixture struct {
	registry *runtime.Registry
	users    *mocks.MockIUserRepository
	messages *mocks.MockIMessageRepository
	monitor  *observability.Monitor
	presence *PresenceService
}

func newPresenceFixture(t *testing.T) presenceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIUserRepository(ctrl)
	channels := mocks.NewMockIChannelRepository(ctrl)
	messages := mocks.NewMockIMessageRepository(ctrl)
	registry := runtime.NewRegistry()
	monitor := observability.NewMonitor()
	breaker := testBreaker()
	log := slog.Default()
	order := NewRoomOrder()

	rooms := NewRoomService(registry, channels, messages, breaker, order, monitor, log)
	voice := NewVoiceService(registry, channels, breaker, log)
	presence := NewPresenceService(registry, rooms, voice, users, breaker, monitor, log)

	return presenceFixture{
		registry: registry,
		users:    users,
		messages: messages,
		monitor:  monitor,
		presence: presence,
	}
}

func identity(nickname string) domain.Identity {
	return domain.Identity{UserID: "user-" + nickname, Nickname: nickname, Role: "user"}
}

// statusBarrier returns a channel closed when the expected status write
// lands; the transition happens on a background goroutine.
func statusBarrier(users *mocks.MockIUserRepository, userID, status string) <-chan struct{} {
	done := make(chan struct{})
	users.EXPECT().UpdateUserStatus(userID, status).
		DoAndReturn(func(string, string) error {
			close(done)
			return nil
		}).Times(1)
	return done
}

func await(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestPresenceService_StatusTransitions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newPresenceFixture(t)

	s1 := sink.NewSocketSink(16, 100*time.Millisecond, slog.Default())
	s2 := sink.NewSocketSink(16, 100*time.Millisecond, slog.Default())

	t.Run("should mark the user online on the first connection only", func(t *testing.T) {
		online := statusBarrier(f.users, "user-alice", domain.StatusOnline)

		f.presence.Connect("s1", identity("alice"), s1)
		await(t, online, "online transition")

		// Second socket of the same user: no extra status write.
		f.presence.Connect("s2", identity("alice"), s2)
		req.Equal(2, f.registry.Count("user-alice"))
	})

	t.Run("should mark the user offline when the last connection drops", func(t *testing.T) {
		f.presence.Disconnect(ctx, "s1")
		req.Equal(1, f.registry.Count("user-alice"))

		offline := statusBarrier(f.users, "user-alice", domain.StatusOffline)
		f.presence.Disconnect(ctx, "s2")
		await(t, offline, "offline transition")
		req.Equal(0, f.registry.Count("user-alice"))
	})

	t.Run("should ignore a disconnect for an unknown socket", func(t *testing.T) {
		f.presence.Disconnect(ctx, "s1") // already gone
		req.Equal(0, f.registry.Len())
	})
}

func TestPresenceService_DisconnectLeavesRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newPresenceFixture(t)

	aliceSink := sink.NewSocketSink(16, 100*time.Millisecond, slog.Default())
	bobSink := sink.NewSocketSink(16, 100*time.Millisecond, slog.Default())

	online := statusBarrier(f.users, "user-alice", domain.StatusOnline)
	bobOnline := statusBarrier(f.users, "user-bob", domain.StatusOnline)
	f.presence.Connect("s1", identity("alice"), aliceSink)
	f.presence.Connect("s2", identity("bob"), bobSink)
	await(t, online, "online transition")
	await(t, bobOnline, "online transition")

	f.registry.SetRoom("s1", "general")
	f.registry.SetRoom("s2", "general")

	// The departure announcement is persisted best-effort.
	f.messages.EXPECT().StoreMessage(gomock.Any()).Return(nil).Times(1)
	offline := statusBarrier(f.users, "user-alice", domain.StatusOffline)

	f.presence.Disconnect(ctx, "s1")
	await(t, offline, "offline transition")

	// Bob saw the leave announcement and the refreshed roster.
	bobEvents := drain(bobSink)
	req.Equal([]string{domain.EventMessage, domain.EventOnlineUsers}, eventNames(bobEvents))

	// Alice's sink is closed so the transport tears the socket down.
	select {
	case <-aliceSink.Done():
	default:
		req.Fail("expected the sink to be closed on disconnect")
	}
}

func TestPresenceService_DisconnectUser(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newPresenceFixture(t)

	sinks := make([]*sink.SocketSink, 3)
	online := statusBarrier(f.users, "user-alice", domain.StatusOnline)
	for i, socketID := range []string{"s1", "s2", "s3"} {
		sinks[i] = sink.NewSocketSink(16, 100*time.Millisecond, slog.Default())
		f.presence.Connect(socketID, identity("alice"), sinks[i])
	}
	await(t, online, "online transition")

	offline := statusBarrier(f.users, "user-alice", domain.StatusOffline)
	dropped := f.presence.DisconnectUser(ctx, "user-alice")
	await(t, offline, "offline transition")

	req.Equal(3, dropped)
	req.Equal(0, f.registry.Count("user-alice"))
	for _, s := range sinks {
		select {
		case <-s.Done():
		default:
			req.Fail("every sink should be closed")
		}
	}

	// A user with no sockets reports zero.
	req.Equal(0, f.presence.DisconnectUser(ctx, "user-alice"))
}
