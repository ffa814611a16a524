package models

import (
	"time"

	"github.com/google/uuid"
)

// User is owned by the account system; this service only reads it.
// Admin is the single branch point for room and inbox behavior.
type User struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Admin          bool      `json:"admin"`
	ProfilePicture *string   `json:"profile_picture,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
