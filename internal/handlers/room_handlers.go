package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fleetdesk/internal/auth"
	"fleetdesk/internal/database"
	"fleetdesk/internal/models"
	"fleetdesk/internal/services"
	"fleetdesk/pkg/logger"

	"github.com/google/uuid"
)

type RoomHandlers struct {
	roomService *services.RoomService
	authService *auth.Service
}

func NewRoomHandlers(roomService *services.RoomService, authService *auth.Service) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
		authService: authService,
	}
}

// Inbox serves the admin's initial snapshot: active rooms plus users no
// conversation exists with yet.
func (h *RoomHandlers) Inbox(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !user.Admin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	snapshot, err := h.roomService.AdminSnapshot(r.Context())
	if err != nil {
		logger.Error("Admin snapshot error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// MyRoom serves the guest's initial snapshot: their room (or null) and
// its visible history.
func (h *RoomHandlers) MyRoom(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if user.Admin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	snapshot, err := h.roomService.GuestSnapshot(r.Context(), user)
	if err != nil {
		logger.Error("Guest snapshot error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

type createRoomRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// CreateRoom finds or creates the room for a target guest. Calling it
// twice yields the same room.
func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	room, err := h.roomService.FindOrCreateRoom(r.Context(), user, req.UserID)
	if err != nil {
		writeServiceError(w, "Create room", err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// RoomMessages serves a room's full visible history.
func (h *RoomHandlers) RoomMessages(w http.ResponseWriter, r *http.Request) {
	user, err := h.getUserFromToken(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, err := h.getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	messages, err := h.roomService.History(r.Context(), user, roomID)
	if err != nil {
		writeServiceError(w, "Room history", err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *RoomHandlers) getUserFromToken(r *http.Request) (*models.User, error) {
	return userFromRequest(r, h.authService)
}

// userFromRequest resolves the session token (query param or bearer
// header) to a user.
func userFromRequest(r *http.Request, authService *auth.Service) (*models.User, error) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			tokenStr = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if tokenStr == "" {
		return nil, fmt.Errorf("missing token")
	}

	return authService.GetUserFromToken(r.Context(), tokenStr)
}

func (h *RoomHandlers) getRoomIDFromPath(r *http.Request) (uuid.UUID, error) {
	parts := strings.Split(r.URL.Path, "/")
	for i, part := range parts {
		if part == "rooms" && i+1 < len(parts) {
			return uuid.Parse(parts[i+1])
		}
	}
	return uuid.Nil, fmt.Errorf("invalid path")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, database.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		logger.Error("%s error: %v", op, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
