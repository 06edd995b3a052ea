// This file defines Message events and related rules.
// Messages are immutable and validated before they reach the store.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessagePublic  MessageType = "public"
	MessagePrivate MessageType = "private"
	MessageSystem  MessageType = "system"
)

// SystemAuthor is the reserved author of join/leave system messages.
const SystemAuthor = "system"

// Message represents an immutable chat event.
type Message struct {
	ID      uuid.UUID
	Author  string // nickname of the sender, or SystemAuthor
	Channel string
	Content string
	Type    MessageType
	Target  string // nickname of the recipient, private messages only
	At      time.Time
}

// VisibleTo reports whether a stored message belongs in the history
// returned to the given identity: public and system messages, plus private
// messages the identity authored or was targeted by.
func (m Message) VisibleTo(id Identity) bool {
	switch m.Type {
	case MessagePublic, MessageSystem:
		return true
	case MessagePrivate:
		return m.Author == id.Nickname || m.Target == id.Nickname
	default:
		return false
	}
}
