package ws

import (
	"context"

	"fleetdesk/internal/models"
)

// Notify persists an out-of-band alert (ticket events, vehicle events,
// anything outside the chat relay) and pushes it to the target user if
// they hold a connection. Safe to call from any goroutine.
func (h *Hub) Notify(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	saved, err := h.db.SaveNotification(ctx, n)
	if err != nil {
		return nil, err
	}

	data, err := models.NewEnvelope(models.EventNewNotification, saved)
	if err != nil {
		return nil, err
	}

	select {
	case h.notify <- notifyDelivery{userID: saved.UserID, data: data}:
	case <-h.done:
	}

	return saved, nil
}
