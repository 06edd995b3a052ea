package ws

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"relaychat/auth"
	"relaychat/contract"
	"relaychat/domain"
	"relaychat/errors"
	"relaychat/observability"
	"relaychat/resilience"
	"relaychat/runtime"
	"relaychat/services"
	"relaychat/sink"
)

// Config tunes the websocket endpoint.
type Config struct {
	// HandshakeTimeout bounds how long a client may take to send
	// its auth frame after the upgrade.
	HandshakeTimeout time.Duration
	// BufferSize is the per-connection outbound event buffer.
	BufferSize int
	// DeliveryTimeout bounds how long an event may wait for a slot
	// in a full buffer before being dropped.
	DeliveryTimeout time.Duration
}

// Server upgrades HTTP requests to websocket connections and drives
// the per-connection read and write loops.
type Server struct {
	authenticator *auth.Authenticator
	presence      services.IPresenceService
	rooms         services.IRoomService
	messages      services.IMessageService
	voice         services.IVoiceService
	registry      *runtime.Registry
	limiter       *resilience.Limiter
	monitor       *observability.Monitor
	upgrader      websocket.Upgrader
	config        Config
	log           *slog.Logger
}

func NewServer(
	authenticator *auth.Authenticator,
	presence services.IPresenceService,
	rooms services.IRoomService,
	messages services.IMessageService,
	voice services.IVoiceService,
	registry *runtime.Registry,
	limiter *resilience.Limiter,
	monitor *observability.Monitor,
	config Config,
	log *slog.Logger,
) *Server {
	return &Server{
		authenticator: authenticator,
		presence:      presence,
		rooms:         rooms,
		messages:      messages,
		voice:         voice,
		registry:      registry,
		limiter:       limiter,
		monitor:       monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		config: config,
		log:    log,
	}
}

// Handle is the websocket endpoint handler.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	identity, ok := s.handshake(r, conn)
	if !ok {
		return
	}

	socketID := uuid.NewString()
	socketSink := sink.NewSocketSink(s.config.BufferSize, s.config.DeliveryTimeout, s.log)
	s.presence.Connect(socketID, identity, socketSink)
	s.log.Info("Websocket client connected",
		slog.String("socketId", socketID),
		slog.String("nickname", identity.Nickname))

	writerDone := make(chan struct{})
	go s.writeLoop(conn, socketSink, writerDone)

	s.readLoop(r.Context(), conn, socketID, identity)

	s.presence.Disconnect(context.Background(), socketID)
	<-writerDone
	s.log.Info("Websocket client disconnected",
		slog.String("socketId", socketID),
		slog.String("nickname", identity.Nickname))
}

// handshake reads the auth frame and resolves the caller's identity.
// All rejections are written directly to the connection because the
// writer goroutine is not running yet.
func (s *Server) handshake(r *http.Request, conn *websocket.Conn) (domain.Identity, bool) {
	if err := conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout)); err != nil {
		return domain.Identity{}, false
	}

	if !s.limiter.Allow(r.Context(), "") {
		s.monitor.IncrRateLimited()
		s.writeDirect(conn, domain.EventError, ErrorPayload{
			Message: "too many requests",
			Code:    errors.CodeRateLimited,
		})
		return domain.Identity{}, false
	}

	var payload AuthPayload
	if err := conn.ReadJSON(&payload); err != nil {
		s.log.Debug("Handshake frame unreadable", slog.String("error", err.Error()))
		return domain.Identity{}, false
	}

	identity, err := s.authenticator.Authenticate(r.Context(), domain.Handshake{
		SessionID: payload.SessionID,
		CSRFToken: payload.CSRFToken,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.monitor.IncrAuthRejections()
		var banErr *errors.BanError
		if stderrors.As(err, &banErr) {
			s.writeDirect(conn, domain.EventBanned, BannedPayload{
				Reason:  banErr.Reason,
				Expires: banErr.Expires,
			})
			return domain.Identity{}, false
		}
		s.writeDirect(conn, domain.EventError, ErrorPayload{
			Message: err.Error(),
			Code:    errors.CodeOf(err),
		})
		return domain.Identity{}, false
	}

	// Lift the handshake deadline, idle connections are the
	// heartbeat sweeper's job from here on.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return domain.Identity{}, false
	}
	return identity, true
}

// writeLoop owns all writes to the connection after the handshake.
func (s *Server) writeLoop(conn *websocket.Conn, socketSink contract.EventSink, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case event := <-socketSink.Events():
			if err := conn.WriteJSON(outbound{Event: event.Name, Data: event.Data}); err != nil {
				s.log.Debug("Websocket write failed", slog.String("error", err.Error()))
				return
			}
		case <-socketSink.Done():
			// Forced teardown (eviction, logout, admin kick).
			// Closing the connection unblocks the read loop.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, socketID string, identity domain.Identity) {
	for {
		var envelope Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return
		}
		s.registry.Touch(socketID, time.Now())

		if !s.limiter.Allow(ctx, identity.UserID) {
			s.monitor.IncrRateLimited()
			s.reply(socketID, domain.EventError, ErrorPayload{
				Message: "too many requests",
				Code:    errors.CodeRateLimited,
			})
			continue
		}

		s.dispatch(ctx, socketID, identity, envelope)
	}
}

func (s *Server) dispatch(ctx context.Context, socketID string, identity domain.Identity, envelope Envelope) {
	switch envelope.Event {
	case eventJoinRoom:
		var payload JoinRoomPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.replyError(socketID, errors.ErrInvalidRoomFormat)
			return
		}
		if err := s.rooms.Join(ctx, socketID, payload.Room); err != nil {
			s.replyError(socketID, err)
		}

	case eventMessage:
		var payload MessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.replyError(socketID, errors.ErrEmptyMessage)
			return
		}
		if err := s.messages.SendPublic(ctx, socketID, payload.Text); err != nil {
			s.replyError(socketID, err)
		}

	case eventPrivateMessage:
		var payload PrivateMessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.replyError(socketID, errors.ErrInvalidTargetNickname)
			return
		}
		if err := s.messages.SendPrivate(ctx, socketID, payload.To, payload.Text); err != nil {
			s.replyError(socketID, err)
		}

	case eventGetHistory:
		history, err := s.rooms.History(ctx, socketID)
		if err != nil {
			s.replyError(socketID, err)
			return
		}
		s.reply(socketID, domain.EventHistory, history)

	case eventHeartbeat:
		// Touch already recorded above, nothing else to do.

	case eventSpeaking:
		var payload SpeakingPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		s.voice.Speaking(socketID, payload.Speaking)

	case eventJoinVoiceChannel:
		var payload JoinVoicePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.replyVoiceError(socketID, errors.ErrChannelNotFound)
			return
		}
		if err := s.voice.Join(ctx, socketID, payload.ChannelID); err != nil {
			s.replyVoiceError(socketID, err)
		}

	case eventLeaveVoiceChan:
		s.voice.Leave(ctx, socketID)

	case eventVoiceOffer, eventVoiceAnswer, eventICECandidate:
		var payload map[string]any
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		target, _ := payload["targetSocketId"].(string)
		if err := s.voice.Relay(socketID, envelope.Event, target, payload); err != nil {
			s.replyVoiceError(socketID, err)
		}

	default:
		s.log.Debug("Unknown client event",
			slog.String("event", envelope.Event),
			slog.String("nickname", identity.Nickname))
	}
}

func (s *Server) reply(socketID string, name string, data any) {
	socketSink, ok := s.registry.SinkFor(socketID)
	if !ok {
		return
	}
	if err := socketSink.Send(domain.Event{Name: name, Data: data}); err != nil {
		s.log.Debug("Reply dropped",
			slog.String("socketId", socketID),
			slog.String("event", name))
	}
}

func (s *Server) replyError(socketID string, err error) {
	s.reply(socketID, domain.EventError, ErrorPayload{
		Message: err.Error(),
		Code:    errors.CodeOf(err),
	})
}

func (s *Server) replyVoiceError(socketID string, err error) {
	s.reply(socketID, domain.EventVoiceError, ErrorPayload{
		Message: err.Error(),
		Code:    errors.CodeOf(err),
	})
}

// writeDirect is only safe before the writer goroutine starts.
func (s *Server) writeDirect(conn *websocket.Conn, name string, data any) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(outbound{Event: name, Data: data})
}
