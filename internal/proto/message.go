// Package proto defines the JSON envelopes exchanged with clients.
package proto

// Inbound actions.
const (
	ActionSubscribe   = "subscribe"
	ActionMessageSend = "message:send"
	ActionTypingStart = "typing:start"
	ActionTypingStop  = "typing:stop"
)

// Outbound event names.
const (
	EventMessageNew   = "message:new"
	EventTypingUpdate = "typing:update"
	EventError        = "error"
)

// Inbound is the envelope for events coming from the client. Unknown
// fields and unknown actions are tolerated so older servers survive
// newer clients.
type Inbound struct {
	Action    string `json:"action"`
	ChannelID string `json:"channel_id"`
	Text      string `json:"text,omitempty"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// MessageData is the payload of a message:new event. It echoes the
// persisted row, identity and timestamps included.
type MessageData struct {
	ID           string `json:"id"`
	ChannelID    string `json:"channel_id"`
	SenderID     string `json:"sender_id"`
	Text         string `json:"text"`
	OriginPortal string `json:"origin_portal"`
	CreatedAt    string `json:"created_at"`
}

// TypingData is the payload of a typing:update event.
type TypingData struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	IsTyping  bool   `json:"is_typing"`
}

// ErrorData describes a rejected inbound event.
type ErrorData struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
