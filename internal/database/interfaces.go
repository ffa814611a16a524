package database

import (
	"context"
	"errors"
	"time"

	"fleetdesk/internal/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

type UserRepository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// ListCandidateUsers returns guests that no active room exists for
	// yet, available to start a new conversation with.
	ListCandidateUsers(ctx context.Context) ([]models.User, error)
}

type RoomRepository interface {
	GetRoomByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByGuest(ctx context.Context, guestID uuid.UUID) (*models.Room, error)
	// FindOrCreateRoom is idempotent: concurrent callers for the same
	// guest all observe the single surviving room.
	FindOrCreateRoom(ctx context.Context, guestID uuid.UUID) (*models.Room, error)
	ListActiveRooms(ctx context.Context) ([]models.RoomSummary, error)
	TouchRoom(ctx context.Context, roomID uuid.UUID, preview string, at time.Time) error
	DeleteRoom(ctx context.Context, roomID uuid.UUID) error
	ClearGuestHistory(ctx context.Context, roomID uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	// SaveMessage assigns id and created_at and returns the stored row.
	SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// LoadRoomHistory returns the room's messages in creation order.
	// A non-nil since filters to messages created after it (the guest's
	// soft-clear point).
	LoadRoomHistory(ctx context.Context, roomID uuid.UUID, since *time.Time) ([]models.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
}

type NotificationRepository interface {
	SaveNotification(ctx context.Context, n *models.Notification) (*models.Notification, error)
	ListRecentNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error
}

type Database interface {
	UserRepository
	RoomRepository
	MessageRepository
	NotificationRepository
	Close() error
}
