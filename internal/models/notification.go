package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an out-of-band alert (ticket/vehicle events as well
// as chat activity) persisted so a client can rebuild its feed after a
// reconnect.
type Notification struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	IsRead       bool      `json:"is_read"`
	CreatedAt    time.Time `json:"created_at"`
}
