package domain

import "encoding/json"

// Event names on the realtime wire.
const (
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventNewMessage        = "new_message"
	EventMessagesRead      = "messages_read"
	EventUnreadCountUpdate = "unread_count_update"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
)

// ClientEvent is the client→server envelope. The only operations this core
// sends are join_room and leave_room; chat sends belong to the chat UI.
type ClientEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

// ServerEvent is the server→client envelope. Fields are populated per event
// type; the rest stay at their zero value.
//
//	new_message:         receiver_id, sender_id, message
//	messages_read:       sender_id, receiver_id
//	unread_count_update: user_id, count
//	user_online/offline: user_id (the counterparty)
type ServerEvent struct {
	Type       string          `json:"type"`
	UserID     int64           `json:"user_id,omitempty"`
	SenderID   int64           `json:"sender_id,omitempty"`
	ReceiverID int64           `json:"receiver_id,omitempty"`
	Count      int             `json:"count,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
}
