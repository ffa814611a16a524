package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleetdesk/internal/database"
	"fleetdesk/internal/models"
	"fleetdesk/internal/services"

	"github.com/google/uuid"
)

// fakeDB backs the room and notification handler tests. Methods the
// handlers never reach come from the embedded interface.
type fakeDB struct {
	database.Database

	users         map[uuid.UUID]*models.User
	rooms         map[uuid.UUID]*models.Room
	roomsByGuest  map[uuid.UUID]*models.Room
	messages      map[uuid.UUID][]models.Message
	active        []models.RoomSummary
	notifications []models.Notification
	readMarks     []uuid.UUID
	readAllFor    []uuid.UUID
}

func newHandlerFakeDB() *fakeDB {
	return &fakeDB{
		users:        make(map[uuid.UUID]*models.User),
		rooms:        make(map[uuid.UUID]*models.Room),
		roomsByGuest: make(map[uuid.UUID]*models.Room),
		messages:     make(map[uuid.UUID][]models.Message),
	}
}

func (f *fakeDB) addUser(u *models.User) { f.users[u.ID] = u }

func (f *fakeDB) addRoom(room *models.Room) {
	f.rooms[room.ID] = room
	f.roomsByGuest[room.GuestID] = room
}

func (f *fakeDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeDB) ListCandidateUsers(ctx context.Context) ([]models.User, error) {
	return nil, nil
}

func (f *fakeDB) GetRoomByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	if r, ok := f.rooms[id]; ok {
		return r, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeDB) GetRoomByGuest(ctx context.Context, guestID uuid.UUID) (*models.Room, error) {
	if r, ok := f.roomsByGuest[guestID]; ok {
		return r, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeDB) FindOrCreateRoom(ctx context.Context, guestID uuid.UUID) (*models.Room, error) {
	if r, ok := f.roomsByGuest[guestID]; ok {
		return r, nil
	}
	room := &models.Room{ID: uuid.New(), GuestID: guestID}
	f.addRoom(room)
	return room, nil
}

func (f *fakeDB) ListActiveRooms(ctx context.Context) ([]models.RoomSummary, error) {
	return f.active, nil
}

func (f *fakeDB) LoadRoomHistory(ctx context.Context, roomID uuid.UUID, since *time.Time) ([]models.Message, error) {
	return f.messages[roomID], nil
}

func (f *fakeDB) SaveNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	saved := *n
	saved.ID = uuid.New()
	f.notifications = append(f.notifications, saved)
	return &saved, nil
}

func (f *fakeDB) ListRecentNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDB) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error {
	f.readMarks = append(f.readMarks, id)
	return nil
}

func (f *fakeDB) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error {
	f.readAllFor = append(f.readAllFor, userID)
	return nil
}

type offlinePresence struct{}

func (offlinePresence) IsOnline(uuid.UUID) bool { return false }

func newRoomHandlers(db database.Database) *RoomHandlers {
	authService := newTestAuthService(db)
	return NewRoomHandlers(services.NewRoomService(db, offlinePresence{}), authService)
}

func TestInboxAdminOnly(t *testing.T) {
	db := newHandlerFakeDB()
	guest := &models.User{ID: uuid.New(), Username: "alice"}
	admin := &models.User{ID: uuid.New(), Username: "bob", Admin: true}
	db.addUser(guest)
	db.addUser(admin)
	db.active = []models.RoomSummary{{Room: models.Room{ID: uuid.New(), GuestID: guest.ID}}}

	h := newRoomHandlers(db)

	r := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	w := httptest.NewRecorder()
	h.Inbox(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	authorize(r, mintToken(t, guest.ID))
	w = httptest.NewRecorder()
	h.Inbox(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("guest: status = %d, want 403", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	authorize(r, mintToken(t, admin.ID))
	w = httptest.NewRecorder()
	h.Inbox(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, body %s", w.Code, w.Body.String())
	}
	var snap models.AdminSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.ActiveRooms) != 1 {
		t.Fatalf("active rooms = %d, want 1", len(snap.ActiveRooms))
	}
}

func TestMyRoomGuestOnly(t *testing.T) {
	db := newHandlerFakeDB()
	guest := &models.User{ID: uuid.New(), Username: "alice"}
	admin := &models.User{ID: uuid.New(), Username: "bob", Admin: true}
	db.addUser(guest)
	db.addUser(admin)

	h := newRoomHandlers(db)

	r := httptest.NewRequest(http.MethodGet, "/api/chat/my-room", nil)
	authorize(r, mintToken(t, admin.ID))
	w := httptest.NewRecorder()
	h.MyRoom(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("admin: status = %d, want 403", w.Code)
	}

	// A guest with no room yet gets a null room, not an error.
	r = httptest.NewRequest(http.MethodGet, "/api/chat/my-room", nil)
	authorize(r, mintToken(t, guest.ID))
	w = httptest.NewRecorder()
	h.MyRoom(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("guest: status = %d, body %s", w.Code, w.Body.String())
	}
	var snap models.GuestSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Room != nil {
		t.Fatal("expected null room before first contact")
	}
	if snap.Messages == nil {
		t.Fatal("messages must serialize as an empty array, not null")
	}
}

func TestCreateRoomIdempotent(t *testing.T) {
	db := newHandlerFakeDB()
	guest := &models.User{ID: uuid.New(), Username: "alice"}
	admin := &models.User{ID: uuid.New(), Username: "bob", Admin: true}
	db.addUser(guest)
	db.addUser(admin)

	h := newRoomHandlers(db)
	token := mintToken(t, admin.ID)

	create := func() *models.Room {
		payload, _ := json.Marshal(map[string]string{"user_id": guest.ID.String()})
		r := httptest.NewRequest(http.MethodPost, "/api/chat/rooms", bytes.NewReader(payload))
		authorize(r, token)
		w := httptest.NewRecorder()
		h.CreateRoom(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		var room models.Room
		if err := json.Unmarshal(w.Body.Bytes(), &room); err != nil {
			t.Fatalf("decode room: %v", err)
		}
		return &room
	}

	first := create()
	second := create()
	if first.ID != second.ID {
		t.Fatalf("repeat create made a new room: %s vs %s", first.ID, second.ID)
	}

	// Guests cannot open rooms.
	payload, _ := json.Marshal(map[string]string{"user_id": guest.ID.String()})
	r := httptest.NewRequest(http.MethodPost, "/api/chat/rooms", bytes.NewReader(payload))
	authorize(r, mintToken(t, guest.ID))
	w := httptest.NewRecorder()
	h.CreateRoom(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("guest create: status = %d, want 403", w.Code)
	}
}

func TestRoomMessagesAccess(t *testing.T) {
	db := newHandlerFakeDB()
	guest := &models.User{ID: uuid.New(), Username: "alice"}
	stranger := &models.User{ID: uuid.New(), Username: "eve"}
	db.addUser(guest)
	db.addUser(stranger)
	room := &models.Room{ID: uuid.New(), GuestID: guest.ID}
	db.addRoom(room)
	db.messages[room.ID] = []models.Message{{ID: uuid.New(), RoomID: room.ID}}

	h := newRoomHandlers(db)
	path := "/api/chat/rooms/" + room.ID.String() + "/messages"

	r := httptest.NewRequest(http.MethodGet, path, nil)
	authorize(r, mintToken(t, stranger.ID))
	w := httptest.NewRecorder()
	h.RoomMessages(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("stranger: status = %d, want 403", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, path, nil)
	authorize(r, mintToken(t, guest.ID))
	w = httptest.NewRecorder()
	h.RoomMessages(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("guest: status = %d, body %s", w.Code, w.Body.String())
	}
	var messages []models.Message
	if err := json.Unmarshal(w.Body.Bytes(), &messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}

	r = httptest.NewRequest(http.MethodGet, "/api/chat/rooms/not-a-uuid/messages", nil)
	authorize(r, mintToken(t, guest.ID))
	w = httptest.NewRecorder()
	h.RoomMessages(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d, want 400", w.Code)
	}
}
