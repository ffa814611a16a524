package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetdesk/internal/database"
	"fleetdesk/internal/models"

	"github.com/google/uuid"
)

// fakeDB implements only the database methods this package touches;
// the embedded interface panics on anything else.
type fakeDB struct {
	database.Database

	users        map[uuid.UUID]*models.User
	rooms        map[uuid.UUID]*models.Room
	roomsByGuest map[uuid.UUID]*models.Room
	messages     map[uuid.UUID][]models.Message
	active       []models.RoomSummary
	candidates   []models.User
}

func newFakeDB() *fakeDB {
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

func (f *fakeDB) LoadRoomHistory(ctx context.Context, roomID uuid.UUID, since *time.Time) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range f.messages[roomID] {
		if since != nil && !msg.CreatedAt.After(*since) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (f *fakeDB) ListActiveRooms(ctx context.Context) ([]models.RoomSummary, error) {
	return f.active, nil
}

func (f *fakeDB) ListCandidateUsers(ctx context.Context) ([]models.User, error) {
	return f.candidates, nil
}

type presenceStub map[uuid.UUID]bool

func (p presenceStub) IsOnline(userID uuid.UUID) bool { return p[userID] }

func TestGuestSnapshotNoRoomYet(t *testing.T) {
	db := newFakeDB()
	svc := NewRoomService(db, presenceStub{})

	guest := &models.User{ID: uuid.New(), Username: "alice"}
	snap, err := svc.GuestSnapshot(context.Background(), guest)
	if err != nil {
		t.Fatalf("GuestSnapshot: %v", err)
	}
	if snap.Room != nil {
		t.Fatal("expected nil room before first contact")
	}
	if snap.Messages == nil || len(snap.Messages) != 0 {
		t.Fatalf("expected empty history, got %v", snap.Messages)
	}
}

func TestGuestSnapshotHonorsClearMarker(t *testing.T) {
	db := newFakeDB()
	svc := NewRoomService(db, presenceStub{})

	guest := &models.User{ID: uuid.New(), Username: "alice"}
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cleared := base.Add(time.Minute)
	room := &models.Room{ID: uuid.New(), GuestID: guest.ID, HistoryClearedAt: &cleared}
	db.addRoom(room)
	db.messages[room.ID] = []models.Message{
		{ID: uuid.New(), RoomID: room.ID, CreatedAt: base},
		{ID: uuid.New(), RoomID: room.ID, CreatedAt: cleared.Add(time.Minute)},
	}

	snap, err := svc.GuestSnapshot(context.Background(), guest)
	if err != nil {
		t.Fatalf("GuestSnapshot: %v", err)
	}
	if len(snap.Messages) != 1 {
		t.Fatalf("guest sees %d messages, want 1", len(snap.Messages))
	}
	if !snap.Messages[0].CreatedAt.After(cleared) {
		t.Fatal("message from before the clear point leaked through")
	}
}

func TestHistoryAccessAndClearScope(t *testing.T) {
	db := newFakeDB()
	svc := NewRoomService(db, presenceStub{})

	guest := &models.User{ID: uuid.New(), Username: "alice"}
	stranger := &models.User{ID: uuid.New(), Username: "eve"}
	admin := &models.User{ID: uuid.New(), Username: "bob", Admin: true}

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cleared := base.Add(time.Minute)
	room := &models.Room{ID: uuid.New(), GuestID: guest.ID, HistoryClearedAt: &cleared}
	db.addRoom(room)
	db.messages[room.ID] = []models.Message{
		{ID: uuid.New(), RoomID: room.ID, CreatedAt: base},
		{ID: uuid.New(), RoomID: room.ID, CreatedAt: cleared.Add(time.Minute)},
	}

	if _, err := svc.History(context.Background(), stranger, room.ID); !errors.Is(err, database.ErrForbidden) {
		t.Fatalf("stranger access: got %v, want ErrForbidden", err)
	}

	guestHistory, err := svc.History(context.Background(), guest, room.ID)
	if err != nil {
		t.Fatalf("guest History: %v", err)
	}
	if len(guestHistory) != 1 {
		t.Fatalf("guest sees %d messages, want 1", len(guestHistory))
	}

	// The clear point is guest-scoped; admins keep the full transcript.
	adminHistory, err := svc.History(context.Background(), admin, room.ID)
	if err != nil {
		t.Fatalf("admin History: %v", err)
	}
	if len(adminHistory) != 2 {
		t.Fatalf("admin sees %d messages, want 2", len(adminHistory))
	}

	if _, err := svc.History(context.Background(), admin, uuid.New()); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("unknown room: got %v, want ErrNotFound", err)
	}
}

func TestAdminSnapshotFillsPresence(t *testing.T) {
	db := newFakeDB()
	online := uuid.New()
	offline := uuid.New()
	db.active = []models.RoomSummary{
		{Room: models.Room{ID: uuid.New(), GuestID: online}, GuestName: "alice"},
		{Room: models.Room{ID: uuid.New(), GuestID: offline}, GuestName: "amy"},
	}
	db.candidates = []models.User{{ID: uuid.New(), Username: "carl"}}

	svc := NewRoomService(db, presenceStub{online: true})
	snap, err := svc.AdminSnapshot(context.Background())
	if err != nil {
		t.Fatalf("AdminSnapshot: %v", err)
	}
	if !snap.ActiveRooms[0].IsOnline || snap.ActiveRooms[1].IsOnline {
		t.Fatalf("presence not applied: %+v", snap.ActiveRooms)
	}
	if len(snap.CandidateUsers) != 1 {
		t.Fatalf("candidates = %d, want 1", len(snap.CandidateUsers))
	}
}

func TestAdminSnapshotNeverNil(t *testing.T) {
	svc := NewRoomService(newFakeDB(), presenceStub{})
	snap, err := svc.AdminSnapshot(context.Background())
	if err != nil {
		t.Fatalf("AdminSnapshot: %v", err)
	}
	if snap.ActiveRooms == nil || snap.CandidateUsers == nil {
		t.Fatal("snapshot slices must not be nil")
	}
}

func TestFindOrCreateRoom(t *testing.T) {
	db := newFakeDB()
	svc := NewRoomService(db, presenceStub{})

	guest := &models.User{ID: uuid.New(), Username: "alice"}
	admin := &models.User{ID: uuid.New(), Username: "bob", Admin: true}
	otherAdmin := &models.User{ID: uuid.New(), Username: "carol", Admin: true}
	db.addUser(guest)
	db.addUser(otherAdmin)

	if _, err := svc.FindOrCreateRoom(context.Background(), guest, guest.ID); !errors.Is(err, database.ErrForbidden) {
		t.Fatalf("guest as requester: got %v, want ErrForbidden", err)
	}
	if _, err := svc.FindOrCreateRoom(context.Background(), admin, otherAdmin.ID); !errors.Is(err, database.ErrForbidden) {
		t.Fatalf("room with admin target: got %v, want ErrForbidden", err)
	}
	if _, err := svc.FindOrCreateRoom(context.Background(), admin, uuid.New()); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("unknown target: got %v, want ErrNotFound", err)
	}

	first, err := svc.FindOrCreateRoom(context.Background(), admin, guest.ID)
	if err != nil {
		t.Fatalf("FindOrCreateRoom: %v", err)
	}
	second, err := svc.FindOrCreateRoom(context.Background(), admin, guest.ID)
	if err != nil {
		t.Fatalf("FindOrCreateRoom (repeat): %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("repeat call made a new room: %s vs %s", first.ID, second.ID)
	}
}
