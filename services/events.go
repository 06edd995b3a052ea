package services

import (
	"time"

	"github.com/samber/lo"

	"relaychat/domain"
)

// MessageEvent is the wire shape of a chat message, shared by live
// broadcasts and history replies.
type MessageEvent struct {
	ID     string    `json:"id"`
	Author string    `json:"author"`
	Room   string    `json:"room"`
	Text   string    `json:"text"`
	Type   string    `json:"type"`
	Target string    `json:"target,omitempty"`
	At     time.Time `json:"at"`
}

// toMessageEvent strips the target: recipients learn they were targeted
// from the event name, and nobody else learns who was.
func toMessageEvent(m domain.Message) MessageEvent {
	return MessageEvent{
		ID:     m.ID.String(),
		Author: m.Author,
		Room:   m.Channel,
		Text:   m.Content,
		Type:   string(m.Type),
		At:     m.At,
	}
}

// toMessageEvents keeps the target: history is filtered to messages the
// requester authored or received, so the field leaks nothing.
func toMessageEvents(messages []domain.Message) []MessageEvent {
	return lo.Map(messages, func(m domain.Message, _ int) MessageEvent {
		e := toMessageEvent(m)
		e.Target = m.Target
		return e
	})
}

// VoicePeerEvent describes one participant of a voice channel.
type VoicePeerEvent struct {
	SocketID string `json:"socketId"`
	Nickname string `json:"nickname"`
}
