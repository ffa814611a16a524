package services

import (
	"context"
	"errors"
	"time"

	"fleetdesk/internal/database"
	"fleetdesk/internal/models"

	"github.com/google/uuid"
)

// Presence answers whether a user currently holds a live connection.
// The websocket hub implements it; isOnline is derived, never stored.
type Presence interface {
	IsOnline(userID uuid.UUID) bool
}

type RoomService struct {
	db       database.Database
	presence Presence
}

func NewRoomService(db database.Database, presence Presence) *RoomService {
	return &RoomService{db: db, presence: presence}
}

// GuestSnapshot returns the guest's single room and its visible history.
// A guest with no prior contact gets a nil room and empty history.
func (s *RoomService) GuestSnapshot(ctx context.Context, guest *models.User) (*models.GuestSnapshot, error) {
	room, err := s.db.GetRoomByGuest(ctx, guest.ID)
	if errors.Is(err, database.ErrNotFound) {
		return &models.GuestSnapshot{Room: nil, Messages: []models.Message{}}, nil
	}
	if err != nil {
		return nil, err
	}

	messages, err := s.db.LoadRoomHistory(ctx, room.ID, room.HistoryClearedAt)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}

	return &models.GuestSnapshot{Room: room, Messages: messages}, nil
}

// AdminSnapshot returns the inbox: rooms with at least one message,
// newest activity first, and the disjoint list of users no conversation
// has been started with yet.
func (s *RoomService) AdminSnapshot(ctx context.Context) (*models.AdminSnapshot, error) {
	rooms, err := s.db.ListActiveRooms(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		rooms[i].IsOnline = s.presence.IsOnline(rooms[i].GuestID)
	}
	if rooms == nil {
		rooms = []models.RoomSummary{}
	}

	candidates, err := s.db.ListCandidateUsers(ctx)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []models.User{}
	}

	return &models.AdminSnapshot{ActiveRooms: rooms, CandidateUsers: candidates}, nil
}

// FindOrCreateRoom opens (or returns) the room for targetID. Admin only;
// the target must be an existing guest.
func (s *RoomService) FindOrCreateRoom(ctx context.Context, requester *models.User, targetID uuid.UUID) (*models.Room, error) {
	if !requester.Admin {
		return nil, database.ErrForbidden
	}

	target, err := s.db.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Admin {
		return nil, database.ErrForbidden
	}

	return s.db.FindOrCreateRoom(ctx, targetID)
}

// History returns a room's messages for a requester, applying the
// guest's soft-clear point. Admins see the full history.
func (s *RoomService) History(ctx context.Context, requester *models.User, roomID uuid.UUID) ([]models.Message, error) {
	room, err := s.db.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !s.CanAccess(requester, room) {
		return nil, database.ErrForbidden
	}

	var since *time.Time
	if !requester.Admin {
		since = room.HistoryClearedAt
	}

	messages, err := s.db.LoadRoomHistory(ctx, roomID, since)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// CanAccess reports whether a user participates in a room: guests only
// in their own, admins in any.
func (s *RoomService) CanAccess(user *models.User, room *models.Room) bool {
	return user.Admin || room.GuestID == user.ID
}
