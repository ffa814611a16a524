package models

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Room pairs one guest user with the admin pool. At most one room
// exists per guest (enforced by the store).
type Room struct {
	ID          uuid.UUID `json:"id"`
	GuestID     uuid.UUID `json:"guest_id"`
	LastMessage string    `json:"last_message"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedAt   time.Time `json:"created_at"`
	// HistoryClearedAt marks the guest's soft-clear point. History
	// fetched for the guest starts after it; admin fetches ignore it.
	HistoryClearedAt *time.Time `json:"history_cleared_at,omitempty"`
}

// RoomSummary is the inbox row an admin sees for an active room.
type RoomSummary struct {
	Room
	GuestName   string  `json:"guest_name"`
	GuestAvatar *string `json:"guest_avatar,omitempty"`
	IsOnline    bool    `json:"is_online"`
}

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeAudio MessageType = "audio"
	MessageTypeFile  MessageType = "file"
)

// Message is immutable once created; deletion is the only mutation.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	RoomID    uuid.UUID   `json:"room_id"`
	SenderID  uuid.UUID   `json:"sender_id"`
	Type      MessageType `json:"type"`
	Content   *string     `json:"content"`
	FileURL   *string     `json:"file_url"`
	CreatedAt time.Time   `json:"created_at"`
}

const previewRuneLimit = 30

// Preview renders the inbox preview line for a message: truncated text,
// or the media type for non-text messages.
func (m *Message) Preview() string {
	if m.Type == MessageTypeText && m.Content != nil {
		return TruncatePreview(*m.Content, previewRuneLimit)
	}
	return "📎 " + string(m.Type)
}

func TruncatePreview(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}

// GuestSnapshot is the initial REST payload for a guest: their single
// room (nil when no contact has happened yet) and its visible history.
type GuestSnapshot struct {
	Room     *Room     `json:"room"`
	Messages []Message `json:"messages"`
}

// AdminSnapshot is the initial REST payload for an admin: rooms with at
// least one message, newest activity first, plus users no room has been
// opened with yet. The two lists are disjoint.
type AdminSnapshot struct {
	ActiveRooms    []RoomSummary `json:"active_rooms"`
	CandidateUsers []User        `json:"candidate_users"`
}
