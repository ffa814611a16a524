package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EventType is the closed set of events carried over the live channel.
// Dispatch switches over this set; an unknown value is a protocol error,
// not a silent no-op.
type EventType string

const (
	// client -> server
	EventAdminJoinRoom EventType = "admin_join_room"
	EventSendMessage   EventType = "send_message"
	EventTypingStart   EventType = "typing_start"
	EventTypingStop    EventType = "typing_stop"
	EventDeleteMessage EventType = "delete_message"
	EventDeleteRoom    EventType = "delete_room"
	EventClearHistory  EventType = "clear_history"

	// server -> client
	EventNewMessage             EventType = "new_message"
	EventNewMessageNotification EventType = "new_message_notification"
	EventMessageDeleted         EventType = "message_deleted"
	EventRoomDeleted            EventType = "room_deleted"
	EventShowTyping             EventType = "show_typing"
	EventHideTyping             EventType = "hide_typing"
	EventNewNotification        EventType = "new_notification"
)

// Envelope frames every event on the wire.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event EventType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

type JoinRoomPayload struct {
	RoomID uuid.UUID `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID  uuid.UUID   `json:"roomId"`
	Type    MessageType `json:"type"`
	Content *string     `json:"content,omitempty"`
	FileURL *string     `json:"file_url,omitempty"`
}

type RoomPayload struct {
	RoomID uuid.UUID `json:"roomId"`
}

type DeleteMessagePayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

type MessageNotificationPayload struct {
	Message Message   `json:"message"`
	RoomID  uuid.UUID `json:"roomId"`
}

type MessageDeletedPayload struct {
	MessageID uuid.UUID `json:"messageId"`
	RoomID    uuid.UUID `json:"roomId"`
}

type TypingPayload struct {
	RoomID uuid.UUID `json:"roomId"`
}
