package chatclient

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"fleetdesk/internal/models"
	"fleetdesk/pkg/logger"

	"github.com/google/uuid"
)

// feedLimit bounds the recent-alert feed.
const feedLimit = 10

var ErrSendInFlight = errors.New("a send is already in flight")

// View is the chat UI's position. Transitions are synchronous local
// state; entering chat additionally requires joining the room and
// fetching history (the caller drives those).
type View int

const (
	ViewInbox View = iota
	ViewChat
	ViewInfo
	ViewProfilePic
)

// Store owns all client-side chat state. Every live event and UI action
// is a method on it and every cross-cutting read is an accessor; nothing
// else holds chat state.
type Store struct {
	mu sync.Mutex
	me models.User

	view     View
	chatOpen bool
	unread   int
	feed     []models.Notification

	room        *models.Room // a guest's own room
	viewingRoom uuid.UUID    // room whose messages are loaded
	messages    []models.Message
	activeRooms []models.RoomSummary
	candidates  []models.User
	typing      map[uuid.UUID]bool

	sendInFlight bool
}

func NewStore(me models.User) *Store {
	return &Store{
		me:     me,
		typing: make(map[uuid.UUID]bool),
	}
}

// MergeHistory reconciles a REST-fetched history snapshot with live
// events that arrived around it: deduplicated by message id, ordered by
// creation time with id as tie-break. Pure function.
func MergeHistory(snapshot, live []models.Message) []models.Message {
	seen := make(map[uuid.UUID]bool, len(snapshot))
	merged := make([]models.Message, 0, len(snapshot)+len(live))
	for _, msg := range snapshot {
		if !seen[msg.ID] {
			seen[msg.ID] = true
			merged = append(merged, msg)
		}
	}
	for _, msg := range live {
		if !seen[msg.ID] {
			seen[msg.ID] = true
			merged = append(merged, msg)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.Before(merged[j].CreatedAt)
		}
		return merged[i].ID.String() < merged[j].ID.String()
	})
	return merged
}

// Apply reduces one live event into the store. Events referencing rooms
// this client does not hold are ignored, never fatal.
func (s *Store) Apply(env models.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Event {
	case models.EventNewMessage:
		var msg models.Message
		if !s.decode(env, &msg) {
			return
		}
		s.applyNewMessage(msg)

	case models.EventNewMessageNotification:
		var p models.MessageNotificationPayload
		if !s.decode(env, &p) {
			return
		}
		s.applyMessageNotification(p)

	case models.EventMessageDeleted:
		var p models.MessageDeletedPayload
		if !s.decode(env, &p) {
			return
		}
		s.applyMessageDeleted(p)

	case models.EventRoomDeleted:
		var p models.RoomPayload
		if !s.decode(env, &p) {
			return
		}
		s.applyRoomDeleted(p.RoomID)

	case models.EventShowTyping:
		var p models.TypingPayload
		if s.decode(env, &p) {
			s.typing[p.RoomID] = true
		}

	case models.EventHideTyping:
		var p models.TypingPayload
		if s.decode(env, &p) {
			delete(s.typing, p.RoomID)
		}

	case models.EventNewNotification:
		var n models.Notification
		if !s.decode(env, &n) {
			return
		}
		s.feed = append([]models.Notification{n}, s.feed...)
		if len(s.feed) > feedLimit {
			s.feed = s.feed[:feedLimit]
		}
		s.bumpUnread()

	default:
		logger.Debug("Ignoring event %q", env.Event)
	}
}

func (s *Store) decode(env models.Envelope, v interface{}) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		logger.Warn("Malformed %s payload: %v", env.Event, err)
		return false
	}
	return true
}

func (s *Store) applyNewMessage(msg models.Message) {
	if msg.RoomID != s.viewingRoom {
		switch {
		case !s.me.Admin && s.viewingRoom == uuid.Nil:
			// A guest has exactly one room; if it is not known yet (the
			// snapshot fetch is still in flight) adopt it so nothing
			// racing ahead of the fetch is lost.
			s.viewingRoom = msg.RoomID
		case s.knownRoom(msg.RoomID):
			// Leaving the chat view is local only; the server keeps
			// this connection on the room's stream and skips the
			// compact notification for it. Fold the full message into
			// the inbox so the update is not lost.
			s.touchRoomPreview(msg.RoomID, &msg)
			s.bumpUnread()
			return
		default:
			// Unknown room: drop rather than corrupt another room's
			// state.
			return
		}
	}
	for _, existing := range s.messages {
		if existing.ID == msg.ID {
			return
		}
	}
	s.messages = MergeHistory(s.messages, []models.Message{msg})
	s.touchRoomPreview(msg.RoomID, &msg)
	s.bumpUnread()
}

func (s *Store) knownRoom(roomID uuid.UUID) bool {
	if s.room != nil && s.room.ID == roomID {
		return true
	}
	for i := range s.activeRooms {
		if s.activeRooms[i].ID == roomID {
			return true
		}
	}
	return false
}

func (s *Store) applyMessageNotification(p models.MessageNotificationPayload) {
	s.touchRoomPreview(p.RoomID, &p.Message)
	s.bumpUnread()
}

// touchRoomPreview updates the denormalized preview and moves the room
// to the top of the active list.
func (s *Store) touchRoomPreview(roomID uuid.UUID, msg *models.Message) {
	if s.room != nil && s.room.ID == roomID {
		s.room.LastMessage = msg.Preview()
		s.room.UpdatedAt = msg.CreatedAt
	}

	for i := range s.activeRooms {
		if s.activeRooms[i].ID == roomID {
			summary := s.activeRooms[i]
			summary.LastMessage = msg.Preview()
			summary.UpdatedAt = msg.CreatedAt
			s.activeRooms = append(s.activeRooms[:i], s.activeRooms[i+1:]...)
			s.activeRooms = append([]models.RoomSummary{summary}, s.activeRooms...)
			return
		}
	}

	if s.me.Admin {
		// First message in a brand-new room: surface it at the top.
		// The sender may be an admin, so the guest identity waits for
		// the next snapshot refresh.
		summary := models.RoomSummary{
			Room: models.Room{
				ID:          roomID,
				LastMessage: msg.Preview(),
				UpdatedAt:   msg.CreatedAt,
			},
		}
		s.activeRooms = append([]models.RoomSummary{summary}, s.activeRooms...)
	}
}

func (s *Store) applyMessageDeleted(p models.MessageDeletedPayload) {
	if p.RoomID != s.viewingRoom {
		return
	}
	for i := range s.messages {
		if s.messages[i].ID == p.MessageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

func (s *Store) applyRoomDeleted(roomID uuid.UUID) {
	for i := range s.activeRooms {
		if s.activeRooms[i].ID == roomID {
			s.activeRooms = append(s.activeRooms[:i], s.activeRooms[i+1:]...)
			break
		}
	}

	if s.room != nil && s.room.ID == roomID {
		s.room = nil
	}

	if s.viewingRoom == roomID {
		s.viewingRoom = uuid.Nil
		s.messages = nil
		delete(s.typing, roomID)
		if s.view != ViewInbox {
			s.view = ViewInbox
		}
	}
}

func (s *Store) bumpUnread() {
	if !s.chatOpen {
		s.unread++
	}
}

// LoadGuestSnapshot installs the REST-fetched guest state, merging with
// any live messages that raced ahead of the fetch.
func (s *Store) LoadGuestSnapshot(snapshot models.GuestSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.room = snapshot.Room
	if snapshot.Room != nil {
		s.viewingRoom = snapshot.Room.ID
		s.messages = MergeHistory(snapshot.Messages, s.messages)
	} else if s.viewingRoom == uuid.Nil {
		// No room and nothing adopted from a raced live message.
		s.messages = nil
	}
}

// LoadAdminSnapshot installs the REST-fetched inbox.
func (s *Store) LoadAdminSnapshot(snapshot models.AdminSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeRooms = snapshot.ActiveRooms
	s.candidates = snapshot.CandidateUsers
}

// LoadHistory installs a room's REST-fetched history, merging with live
// messages already applied for that room.
func (s *Store) LoadHistory(roomID uuid.UUID, history []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.viewingRoom != roomID {
		return
	}
	s.messages = MergeHistory(history, s.messages)
}

// LoadFeed installs the REST-fetched alert feed (reconnect path).
func (s *Store) LoadFeed(feed []models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(feed) > feedLimit {
		feed = feed[:feedLimit]
	}
	s.feed = feed
}

// ToggleChat flips the chat UI open or closed. The closed->open
// transition zeroes unread atomically with the state change; stored
// alerts keep their own read flags.
func (s *Store) ToggleChat(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if open && !s.chatOpen {
		s.unread = 0
	}
	s.chatOpen = open
}

// EnterChat transitions inbox->chat for a room (admins; guests are
// already in their room). Typing indicators from the previous room are
// dropped so none can stick across a switch.
func (s *Store) EnterChat(roomID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view != ViewInbox {
		return
	}
	delete(s.typing, s.viewingRoom)
	s.viewingRoom = roomID
	s.messages = nil
	s.view = ViewChat
}

// Back walks one step back: profile_pic->info, info->chat, chat->inbox.
func (s *Store) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.view {
	case ViewProfilePic:
		s.view = ViewInfo
	case ViewInfo:
		s.view = ViewChat
	case ViewChat:
		delete(s.typing, s.viewingRoom)
		s.viewingRoom = uuid.Nil
		s.messages = nil
		s.view = ViewInbox
	}
}

// OpenInfo transitions chat->info.
func (s *Store) OpenInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == ViewChat {
		s.view = ViewInfo
	}
}

// OpenProfilePic transitions info->profile_pic.
func (s *Store) OpenProfilePic() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == ViewInfo {
		s.view = ViewProfilePic
	}
}

// ClearLocalHistory empties the guest's local message list (the server
// keeps the admin's copy).
func (s *Store) ClearLocalHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// BeginSend gates against double-submitting while a send (or its upload
// chain) is pending.
func (s *Store) BeginSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendInFlight {
		return ErrSendInFlight
	}
	s.sendInFlight = true
	return nil
}

func (s *Store) EndSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendInFlight = false
}

// ClearTyping drops every typing indicator. Called on disconnect.
func (s *Store) ClearTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = make(map[uuid.UUID]bool)
}

func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Store) ChatOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatOpen
}

func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Store) Feed() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.feed...)
}

func (s *Store) Room() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	room := *s.room
	return &room
}

func (s *Store) ViewingRoom() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewingRoom
}

func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

func (s *Store) ActiveRooms() []models.RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RoomSummary(nil), s.activeRooms...)
}

func (s *Store) CandidateUsers() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.User(nil), s.candidates...)
}

func (s *Store) TypingIn(roomID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[roomID]
}
