package ws

import (
	"context"
	"errors"
	"strings"
	"time"

	"fleetdesk/internal/database"
	"fleetdesk/internal/models"
	"fleetdesk/pkg/logger"

	"github.com/google/uuid"
)

// handleJoinRoom subscribes an admin connection to one room's live
// stream, leaving whatever room it viewed before. Guests never join
// explicitly; their own room is implicit.
func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, p models.JoinRoomPayload) {
	if !c.user.Admin {
		logger.Warn("Guest %s attempted admin_join_room", c.user.Username)
		return
	}

	if _, err := h.db.GetRoomByID(ctx, p.RoomID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Warn("Admin %s joined unknown room %s", c.user.Username, p.RoomID)
		} else {
			logger.Error("Error loading room %s: %v", p.RoomID, err)
		}
		return
	}

	h.subscribe(c, p.RoomID)
	logger.Debug("Admin %s viewing room %s", c.user.Username, p.RoomID)
}

// handleSendMessage persists a message and fans it out: the full event
// to every connection on the room's live stream, a compact preview to
// every other related connection.
func (h *Hub) handleSendMessage(ctx context.Context, c *Client, p models.SendMessagePayload) {
	hasContent := p.Content != nil && strings.TrimSpace(*p.Content) != ""
	hasFile := p.FileURL != nil && *p.FileURL != ""
	if !hasContent && !hasFile {
		logger.Warn("Empty message from %s dropped", c.user.Username)
		return
	}
	if p.Type == "" {
		p.Type = models.MessageTypeText
	}

	var room *models.Room
	var err error
	if c.user.Admin {
		room, err = h.db.GetRoomByID(ctx, p.RoomID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				logger.Warn("Message from %s to unknown room %s dropped", c.user.Username, p.RoomID)
			} else {
				logger.Error("Error loading room %s: %v", p.RoomID, err)
			}
			return
		}
	} else {
		// A guest's first message creates their room lazily.
		room, err = h.db.FindOrCreateRoom(ctx, c.user.ID)
		if err != nil {
			logger.Error("Error resolving room for guest %s: %v", c.user.Username, err)
			return
		}
		if p.RoomID != uuid.Nil && p.RoomID != room.ID {
			logger.Warn("Guest %s sent to foreign room %s", c.user.Username, p.RoomID)
			return
		}
		h.subscribe(c, room.ID)
	}

	// The room's guest may have connected before the room existed;
	// their implicit subscription starts with the first message.
	if gc, ok := h.clients[room.GuestID]; ok && h.viewing[gc] != room.ID {
		h.subscribe(gc, room.ID)
	}

	saved, err := h.db.SaveMessage(ctx, &models.Message{
		RoomID:   room.ID,
		SenderID: c.user.ID,
		Type:     p.Type,
		Content:  p.Content,
		FileURL:  p.FileURL,
	})
	if err != nil {
		logger.Error("Error saving message from %s: %v", c.user.Username, err)
		return
	}

	if err := h.db.TouchRoom(ctx, room.ID, saved.Preview(), saved.CreatedAt); err != nil {
		logger.Error("Error updating room %s preview: %v", room.ID, err)
	}

	full, err := models.NewEnvelope(models.EventNewMessage, saved)
	if err != nil {
		logger.Error("Error marshaling message: %v", err)
		return
	}
	for viewer := range h.viewers[room.ID] {
		h.enqueue(viewer, full)
	}

	compact, err := models.NewEnvelope(models.EventNewMessageNotification, models.MessageNotificationPayload{
		Message: *saved,
		RoomID:  room.ID,
	})
	if err != nil {
		logger.Error("Error marshaling notification: %v", err)
		return
	}
	for _, other := range h.clients {
		if other == c || h.viewing[other] == room.ID {
			continue
		}
		// Related parties: every admin, plus the room's guest.
		if other.user.Admin || other.user.ID == room.GuestID {
			h.enqueue(other, compact)
		}
	}
}

// handleDeleteMessage removes one message. Only the sender or an admin
// may delete; everyone on the room's stream is told to evict it.
func (h *Hub) handleDeleteMessage(ctx context.Context, c *Client, p models.DeleteMessagePayload) {
	msg, err := h.db.GetMessage(ctx, p.MessageID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Warn("Delete of unknown message %s by %s", p.MessageID, c.user.Username)
		} else {
			logger.Error("Error loading message %s: %v", p.MessageID, err)
		}
		return
	}

	if !c.user.Admin && msg.SenderID != c.user.ID {
		logger.Warn("Unauthorized delete of message %s by %s", p.MessageID, c.user.Username)
		return
	}

	if err := h.db.DeleteMessage(ctx, msg.ID); err != nil {
		logger.Error("Error deleting message %s: %v", msg.ID, err)
		return
	}

	data, err := models.NewEnvelope(models.EventMessageDeleted, models.MessageDeletedPayload{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
	})
	if err != nil {
		logger.Error("Error marshaling deletion: %v", err)
		return
	}
	for viewer := range h.viewers[msg.RoomID] {
		h.enqueue(viewer, data)
	}
}

// handleDeleteRoom hard-deletes a room and its history (admin only) and
// tells every admin and the room's guest to evict it.
func (h *Hub) handleDeleteRoom(ctx context.Context, c *Client, p models.RoomPayload) {
	if !c.user.Admin {
		logger.Warn("Guest %s attempted delete_room", c.user.Username)
		return
	}

	room, err := h.db.GetRoomByID(ctx, p.RoomID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Warn("Delete of unknown room %s by %s", p.RoomID, c.user.Username)
		} else {
			logger.Error("Error loading room %s: %v", p.RoomID, err)
		}
		return
	}

	if err := h.db.DeleteRoom(ctx, room.ID); err != nil {
		logger.Error("Error deleting room %s: %v", room.ID, err)
		return
	}

	data, err := models.NewEnvelope(models.EventRoomDeleted, models.RoomPayload{RoomID: room.ID})
	if err != nil {
		logger.Error("Error marshaling room deletion: %v", err)
		return
	}

	notified := make(map[*Client]bool)
	for viewer := range h.viewers[room.ID] {
		notified[viewer] = true
	}
	for _, other := range h.clients {
		if other.user.Admin || other.user.ID == room.GuestID {
			notified[other] = true
		}
	}
	for target := range notified {
		h.enqueue(target, data)
	}

	h.evictRoom(room.ID)
}

// handleClearHistory records the guest's soft-clear point. The admin
// copy of the history is untouched.
func (h *Hub) handleClearHistory(ctx context.Context, c *Client, p models.RoomPayload) {
	if c.user.Admin {
		logger.Warn("Admin %s attempted clear_history", c.user.Username)
		return
	}

	room, err := h.db.GetRoomByGuest(ctx, c.user.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Warn("Guest %s cleared history with no room", c.user.Username)
		} else {
			logger.Error("Error loading room for guest %s: %v", c.user.Username, err)
		}
		return
	}
	if p.RoomID != room.ID {
		logger.Warn("Guest %s cleared foreign room %s", c.user.Username, p.RoomID)
		return
	}

	if err := h.db.ClearGuestHistory(ctx, room.ID, time.Now()); err != nil {
		logger.Error("Error clearing history for room %s: %v", room.ID, err)
	}
}

// evictRoom drops all live state for a deleted room.
func (h *Hub) evictRoom(roomID uuid.UUID) {
	for viewer := range h.viewers[roomID] {
		delete(h.viewing, viewer)
	}
	delete(h.viewers, roomID)

	for key, timer := range h.typingTimers {
		if key.roomID == roomID {
			timer.Stop()
			delete(h.typingTimers, key)
		}
	}
}
