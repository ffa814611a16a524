package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"fleetdesk/internal/auth"
	"fleetdesk/internal/database"
	"fleetdesk/internal/models"
	"fleetdesk/internal/ws"
	"fleetdesk/pkg/logger"

	"github.com/google/uuid"
)

// feedLimit bounds the alert feed a client rebuilds on reconnect.
const feedLimit = 10

type NotificationHandlers struct {
	db          database.NotificationRepository
	hub         *ws.Hub
	authService *auth.Service
}

func NewNotificationHandlers(db database.NotificationRepository, hub *ws.Hub, authService *auth.Service) *NotificationHandlers {
	return &NotificationHandlers{
		db:          db,
		hub:         hub,
		authService: authService,
	}
}

// List serves the caller's recent alerts, newest first.
func (h *NotificationHandlers) List(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	notifications, err := h.db.ListRecentNotifications(r.Context(), user.ID, feedLimit)
	if err != nil {
		logger.Error("List notifications error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	writeJSON(w, http.StatusOK, notifications)
}

type createNotificationRequest struct {
	UserID       uuid.UUID `json:"user_id"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
}

// Create is the entry point for out-of-band alerts (ticket and vehicle
// events). Admin only; the target gets a new_notification push when
// connected.
func (h *NotificationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !user.Admin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil || req.Message == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	saved, err := h.hub.Notify(r.Context(), &models.Notification{
		UserID:       req.UserID,
		Title:        req.Title,
		Message:      req.Message,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
	})
	if err != nil {
		logger.Error("Create notification error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}

// MarkRead acknowledges one alert. Idempotent.
func (h *NotificationHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := h.getNotificationIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid notification ID", http.StatusBadRequest)
		return
	}

	if err := h.db.MarkNotificationRead(r.Context(), user.ID, id); err != nil {
		logger.Error("Mark notification read error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead acknowledges every alert for the caller. Idempotent.
func (h *NotificationHandlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.db.MarkAllNotificationsRead(r.Context(), user.ID); err != nil {
		logger.Error("Mark all notifications read error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandlers) getUserFromToken(r *http.Request) (*models.User, error) {
	return userFromRequest(r, h.authService)
}

func (h *NotificationHandlers) getNotificationIDFromPath(r *http.Request) (uuid.UUID, error) {
	parts := strings.Split(r.URL.Path, "/")
	for i, part := range parts {
		if part == "notifications" && i+1 < len(parts) {
			return uuid.Parse(parts[i+1])
		}
	}
	return uuid.Nil, fmt.Errorf("invalid path")
}
