package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"relaychat/domain"
	"relaychat/errors"
	"relaychat/repositories"
	"relaychat/resilience"
	"relaychat/runtime"
)

type IVoiceService interface {
	Join(ctx context.Context, socketID, channelID string) error
	Leave(ctx context.Context, socketID string)
	Relay(socketID, event, targetSocketID string, payload map[string]any) error
	Speaking(socketID string, speaking bool)
}

// VoiceService tracks voice-channel membership in the presence registry and
// relays WebRTC signaling frames between peers. The media itself never
// touches this process.
type VoiceService struct {
	registry *runtime.Registry
	channels repositories.IChannelRepository
	store    *resilience.Breaker
	log      *slog.Logger
}

func NewVoiceService(
	registry *runtime.Registry,
	channels repositories.IChannelRepository,
	store *resilience.Breaker,
	log *slog.Logger,
) *VoiceService {
	return &VoiceService{registry: registry, channels: channels, store: store, log: log}
}

// Join verifies the voice channel exists, records the membership, acks the
// joiner with the current peer list, and notifies the peers.
func (v *VoiceService) Join(ctx context.Context, socketID, channelID string) error {
	if channelID == "" {
		return errors.ErrMissingRoom
	}

	err := v.store.Do(ctx, func(ctx context.Context) error {
		_, err := v.channels.GetChannel(channelID)
		return err
	})
	if err != nil {
		return err
	}

	entry, ok := v.registry.Get(socketID)
	if !ok {
		return fmt.Errorf("voice join: %w", errors.ErrSinkClosed)
	}
	if entry.VoiceChannel != "" {
		v.Leave(ctx, socketID)
	}

	if _, ok := v.registry.SetVoiceChannel(socketID, channelID); !ok {
		return fmt.Errorf("voice join: %w", errors.ErrSinkClosed)
	}

	peers := v.registry.VoicePeers(channelID, socketID)
	v.send(socketID, domain.Event{
		Name: domain.EventVoiceJoined,
		Data: map[string]any{
			"channelId": channelID,
			"peers": lo.Map(peers, func(p runtime.ConnectionEntry, _ int) VoicePeerEvent {
				return VoicePeerEvent{SocketID: p.SocketID, Nickname: p.Identity.Nickname}
			}),
		},
	})
	v.notifyPeers(peers, domain.Event{
		Name: domain.EventUserJoinedVoice,
		Data: VoicePeerEvent{SocketID: socketID, Nickname: entry.Identity.Nickname},
	})
	return nil
}

// Leave clears the membership and notifies remaining peers. Idempotent:
// leaving while not in a voice channel does nothing.
func (v *VoiceService) Leave(_ context.Context, socketID string) {
	entry, ok := v.registry.Get(socketID)
	if !ok || entry.VoiceChannel == "" {
		return
	}
	channel := entry.VoiceChannel
	v.registry.SetVoiceChannel(socketID, "")

	v.send(socketID, domain.Event{
		Name: domain.EventVoiceLeft,
		Data: map[string]any{"channelId": channel},
	})
	v.notifyPeers(v.registry.VoicePeers(channel, socketID), domain.Event{
		Name: domain.EventUserLeftVoice,
		Data: VoicePeerEvent{SocketID: socketID, Nickname: entry.Identity.Nickname},
	})
}

// Relay forwards an opaque signaling payload to one peer of the sender's
// voice channel. The payload passes through untouched apart from the
// fromSocketId stamp the receiver needs to answer.
func (v *VoiceService) Relay(socketID, event, targetSocketID string, payload map[string]any) error {
	entry, ok := v.registry.Get(socketID)
	if !ok || entry.VoiceChannel == "" {
		return errors.ErrTargetNotInRoom
	}
	target, ok := v.registry.Get(targetSocketID)
	if !ok || target.VoiceChannel != entry.VoiceChannel {
		return errors.ErrTargetNotInRoom
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payload["fromSocketId"] = socketID
	v.send(targetSocketID, domain.Event{Name: event, Data: payload})
	return nil
}

// Speaking fans the indicator out to the sender's voice channel peers.
// Unpersisted soft state, like presence.
func (v *VoiceService) Speaking(socketID string, speaking bool) {
	entry, ok := v.registry.Get(socketID)
	if !ok || entry.VoiceChannel == "" {
		return
	}
	v.notifyPeers(v.registry.VoicePeers(entry.VoiceChannel, socketID), domain.Event{
		Name: domain.EventSpeaking,
		Data: map[string]any{
			"socketId": socketID,
			"nickname": entry.Identity.Nickname,
			"speaking": speaking,
		},
	})
}

func (v *VoiceService) notifyPeers(peers []runtime.ConnectionEntry, e domain.Event) {
	for _, peer := range peers {
		v.send(peer.SocketID, e)
	}
}

func (v *VoiceService) send(socketID string, e domain.Event) {
	sink, ok := v.registry.SinkFor(socketID)
	if !ok {
		return
	}
	if err := sink.Send(e); err != nil {
		v.log.Debug("Voice event dropped", "socket_id", socketID, "event", e.Name, "error", err)
	}
}
