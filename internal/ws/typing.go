package ws

import (
	"time"

	"fleetdesk/internal/models"
	"fleetdesk/pkg/logger"

	"github.com/google/uuid"
)

type typingKey struct {
	roomID uuid.UUID
	userID uuid.UUID
}

// handleTypingStart relays show_typing to the room's other viewers and
// arms (or rearms) the safety timer that synthesizes a stop if the
// client goes silent. Repeated starts inside the window fan out nothing
// new.
func (h *Hub) handleTypingStart(c *Client, p models.TypingPayload) {
	if h.viewing[c] != p.RoomID {
		logger.Warn("Typing from %s for room %s they are not viewing", c.user.Username, p.RoomID)
		return
	}

	key := typingKey{roomID: p.RoomID, userID: c.user.ID}
	if timer, ok := h.typingTimers[key]; ok {
		timer.Stop()
	} else {
		h.fanTyping(key, models.EventShowTyping)
	}
	h.typingTimers[key] = time.AfterFunc(h.typingTTL, func() {
		select {
		case h.expired <- key:
		case <-h.done:
		}
	})
}

func (h *Hub) handleTypingStop(c *Client, p models.TypingPayload) {
	h.stopTyping(typingKey{roomID: p.RoomID, userID: c.user.ID})
}

func (h *Hub) expireTyping(key typingKey) {
	h.stopTyping(key)
}

func (h *Hub) stopTyping(key typingKey) {
	timer, ok := h.typingTimers[key]
	if !ok {
		return
	}
	timer.Stop()
	delete(h.typingTimers, key)
	h.fanTyping(key, models.EventHideTyping)
}

// clearTypingFor stops every typing signal a connection owns. Called on
// room switch and disconnect so an indicator can never stick.
func (h *Hub) clearTypingFor(c *Client) {
	for key := range h.typingTimers {
		if key.userID == c.user.ID {
			h.stopTyping(key)
		}
	}
}

func (h *Hub) fanTyping(key typingKey, event models.EventType) {
	data, err := models.NewEnvelope(event, models.TypingPayload{RoomID: key.roomID})
	if err != nil {
		logger.Error("Error marshaling typing event: %v", err)
		return
	}
	for viewer := range h.viewers[key.roomID] {
		if viewer.user.ID == key.userID {
			continue
		}
		h.enqueue(viewer, data)
	}
}
