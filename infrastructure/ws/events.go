package ws

import (
	"encoding/json"
	"time"

	"relaychat/errors"
)

// Envelope frames every client frame after the handshake.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound is the server-side frame shape.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client-to-server event names.
const (
	eventJoinRoom         = "join_room"
	eventMessage          = "message"
	eventPrivateMessage   = "private_message"
	eventGetHistory       = "get_history"
	eventHeartbeat        = "heartbeat"
	eventSpeaking         = "speaking"
	eventJoinVoiceChannel = "join_voice_channel"
	eventLeaveVoiceChan   = "leave_voice_channel"
	eventVoiceOffer       = "voice_offer"
	eventVoiceAnswer      = "voice_answer"
	eventICECandidate     = "ice_candidate"
)

// AuthPayload is the first frame a client must send after the upgrade.
type AuthPayload struct {
	CSRFToken string `json:"csrfToken"`
	SessionID string `json:"sessionId"`
}

type JoinRoomPayload struct {
	Room string `json:"room"`
}

type MessagePayload struct {
	Text string `json:"text"`
}

type PrivateMessagePayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type SpeakingPayload struct {
	Speaking bool `json:"speaking"`
}

type JoinVoicePayload struct {
	ChannelID string `json:"channelId"`
}

type ErrorPayload struct {
	Message string      `json:"message"`
	Code    errors.Code `json:"code"`
}

type BannedPayload struct {
	Reason  string     `json:"reason"`
	Expires *time.Time `json:"expires,omitempty"`
}
