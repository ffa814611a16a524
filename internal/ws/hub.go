package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"fleetdesk/internal/database"
	"fleetdesk/internal/models"
	"fleetdesk/pkg/logger"

	"github.com/google/uuid"
)

const defaultTypingTTL = 2 * time.Second

type inbound struct {
	client *Client
	env    models.Envelope
}

type notifyDelivery struct {
	userID uuid.UUID
	data   []byte
}

// Hub owns all live-channel state: one connection per user, the
// per-room viewer sets, and the typing timers. Every mutation happens
// on the Run loop, one event at a time; the only cross-goroutine reads
// go through the mutex-guarded online set.
type Hub struct {
	db database.Database

	clients map[uuid.UUID]*Client          // userID -> the one live connection
	viewers map[uuid.UUID]map[*Client]bool // roomID -> connections on its live stream
	viewing map[*Client]uuid.UUID          // connection -> room it currently views

	typingTimers map[typingKey]*time.Timer
	typingTTL    time.Duration

	Register   chan *Client
	Unregister chan *Client
	events     chan inbound
	notify     chan notifyDelivery
	expired    chan typingKey

	done     chan struct{}
	stopOnce sync.Once

	online   map[uuid.UUID]bool
	onlineMu sync.RWMutex
}

func NewHub(db database.Database) *Hub {
	return &Hub{
		db:           db,
		clients:      make(map[uuid.UUID]*Client),
		viewers:      make(map[uuid.UUID]map[*Client]bool),
		viewing:      make(map[*Client]uuid.UUID),
		typingTimers: make(map[typingKey]*time.Timer),
		typingTTL:    defaultTypingTTL,
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		events:       make(chan inbound),
		notify:       make(chan notifyDelivery, 16),
		expired:      make(chan typingKey, 16),
		done:         make(chan struct{}),
		online:       make(map[uuid.UUID]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for _, c := range h.clients {
				h.drop(c)
			}
			return

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case in := <-h.events:
			h.dispatch(in.client, in.env)

		case d := <-h.notify:
			if c, ok := h.clients[d.userID]; ok {
				h.enqueue(c, d.data)
			}

		case key := <-h.expired:
			h.expireTyping(key)
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// IsOnline reports whether a user holds an open connection. Safe to
// call from REST handlers.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.onlineMu.RLock()
	defer h.onlineMu.RUnlock()
	return h.online[userID]
}

func (h *Hub) register(c *Client) {
	// One channel per user: a new connection replaces the old one.
	if prev, ok := h.clients[c.user.ID]; ok && prev != c {
		h.drop(prev)
	}
	h.clients[c.user.ID] = c

	h.onlineMu.Lock()
	h.online[c.user.ID] = true
	h.onlineMu.Unlock()

	// Guests are permanently subscribed to their own room.
	if !c.user.Admin {
		room, err := h.db.GetRoomByGuest(context.Background(), c.user.ID)
		if err == nil {
			h.subscribe(c, room.ID)
		} else if !errors.Is(err, database.ErrNotFound) {
			logger.Error("Error loading room for guest %s: %v", c.user.Username, err)
		}
	}

	logger.Info("User %s connected", c.user.Username)
}

func (h *Hub) unregister(c *Client) {
	// Ignore the late unregister of a connection that was replaced.
	if current, ok := h.clients[c.user.ID]; !ok || current != c {
		if !c.closed {
			h.drop(c)
		}
		return
	}
	h.drop(c)
	delete(h.clients, c.user.ID)

	h.onlineMu.Lock()
	delete(h.online, c.user.ID)
	h.onlineMu.Unlock()

	logger.Info("User %s disconnected", c.user.Username)
}

// drop detaches a connection from all hub state and closes its send
// channel. A disconnect implicitly cancels subscriptions and typing.
func (h *Hub) drop(c *Client) {
	h.unsubscribe(c)
	h.clearTypingFor(c)
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (h *Hub) subscribe(c *Client, roomID uuid.UUID) {
	if prev, ok := h.viewing[c]; ok {
		if prev == roomID {
			return
		}
		h.unsubscribe(c)
		h.clearTypingFor(c)
	}
	if h.viewers[roomID] == nil {
		h.viewers[roomID] = make(map[*Client]bool)
	}
	h.viewers[roomID][c] = true
	h.viewing[c] = roomID
}

func (h *Hub) unsubscribe(c *Client) {
	roomID, ok := h.viewing[c]
	if !ok {
		return
	}
	delete(h.viewing, c)
	if set, ok := h.viewers[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.viewers, roomID)
		}
	}
}

func (h *Hub) enqueue(c *Client, data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow consumer: cut it loose rather than block the loop.
		h.drop(c)
		delete(h.clients, c.user.ID)
		h.onlineMu.Lock()
		delete(h.online, c.user.ID)
		h.onlineMu.Unlock()
	}
}

// dispatch routes one inbound event. The event set is closed; anything
// outside it is a protocol error.
func (h *Hub) dispatch(c *Client, env models.Envelope) {
	ctx := context.Background()

	switch env.Event {
	case models.EventAdminJoinRoom:
		var p models.JoinRoomPayload
		if decode(c, env, &p) {
			h.handleJoinRoom(ctx, c, p)
		}
	case models.EventSendMessage:
		var p models.SendMessagePayload
		if decode(c, env, &p) {
			h.handleSendMessage(ctx, c, p)
		}
	case models.EventTypingStart:
		var p models.TypingPayload
		if decode(c, env, &p) {
			h.handleTypingStart(c, p)
		}
	case models.EventTypingStop:
		var p models.TypingPayload
		if decode(c, env, &p) {
			h.handleTypingStop(c, p)
		}
	case models.EventDeleteMessage:
		var p models.DeleteMessagePayload
		if decode(c, env, &p) {
			h.handleDeleteMessage(ctx, c, p)
		}
	case models.EventDeleteRoom:
		var p models.RoomPayload
		if decode(c, env, &p) {
			h.handleDeleteRoom(ctx, c, p)
		}
	case models.EventClearHistory:
		var p models.RoomPayload
		if decode(c, env, &p) {
			h.handleClearHistory(ctx, c, p)
		}
	default:
		logger.Warn("Unknown event %q from %s", env.Event, c.user.Username)
	}
}

func decode(c *Client, env models.Envelope, v interface{}) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		logger.Warn("Bad %s payload from %s: %v", env.Event, c.user.Username, err)
		return false
	}
	return true
}
