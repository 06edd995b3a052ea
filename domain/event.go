package domain

// Event is a transport-neutral server-to-client event. The websocket layer
// wraps it in the wire envelope before writing it out.
type Event struct {
	Name string
	Data any
}

// Server-to-client event names.
const (
	EventMessage          = "message"
	EventHistory          = "history"
	EventOnlineUsers      = "online_users"
	EventError            = "error"
	EventBanned           = "banned"
	EventHeartbeatRequest = "heartbeat_request"
	EventPrivateMessage   = "private_message"
	EventSpeaking         = "speaking"
	EventVoiceJoined      = "voice_joined"
	EventVoiceLeft        = "voice_left"
	EventVoiceError       = "voice_error"
	EventUserJoinedVoice  = "user_joined_voice"
	EventUserLeftVoice    = "user_left_voice"
)
