package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleetdesk/internal/models"
	"fleetdesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrNoCredential = errors.New("no session credential")
	ErrNotConnected = errors.New("channel not established")
)

// ConnState is the observable lifecycle of the live channel. "Not yet
// established" is a state, not an error.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

type Option func(*Client)

// WithStateFunc observes connect/disconnect transitions.
func WithStateFunc(fn func(ConnState)) Option {
	return func(c *Client) { c.onState = fn }
}

// WithMaxRetries caps reconnection attempts per outage.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoff sets the base reconnect delay (doubled per attempt,
// capped at 30s).
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.baseBackoff = d }
}

// Client holds the one live channel a logged-in user gets, reconnecting
// with capped backoff when the transport drops.
type Client struct {
	url     string
	token   string
	store   *Store
	dialer  *websocket.Dialer
	onState func(ConnState)

	maxRetries  int
	baseBackoff time.Duration

	mu    sync.Mutex
	conn  *websocket.Conn
	state ConnState

	done      chan struct{}
	closeOnce sync.Once
}

// Dial establishes the live channel. An empty token means no connection
// is attempted at all.
func Dial(ctx context.Context, url, token string, store *Store, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrNoCredential
	}

	c := &Client{
		url:         url,
		token:       token,
		store:       store,
		dialer:      websocket.DefaultDialer,
		maxRetries:  5,
		baseBackoff: time.Second,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	go c.run()
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, _, err := c.dialer.DialContext(ctx, c.url+"?token="+c.token, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)
	return nil
}

// run reads events into the store until Close, reconnecting with capped
// exponential backoff. Server-side subscriptions do not survive a drop:
// the caller re-joins and re-fetches on every reconnect.
func (c *Client) run() {
	for {
		c.readLoop()

		// Any disconnect clears typing indicators so none can stick.
		c.store.ClearTyping()

		select {
		case <-c.done:
			c.setState(StateDisconnected)
			return
		default:
		}

		if !c.reconnect() {
			c.setState(StateDisconnected)
			return
		}
	}
}

func (c *Client) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.setState(StateDisconnected)
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("Malformed event: %v", err)
			continue
		}
		c.store.Apply(env)
	}
}

func (c *Client) reconnect() bool {
	backoff := c.baseBackoff
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		select {
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		if err := c.connect(context.Background()); err == nil {
			return true
		}
		logger.Warn("Reconnect attempt %d/%d failed", attempt, c.maxRetries)

		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
	return false
}

// Close tears the channel down deterministically.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state ConnState) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	fn := c.onState
	c.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}

func (c *Client) emit(event models.EventType, payload interface{}) error {
	data, err := models.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// JoinRoom subscribes (admins) to one room's live stream.
func (c *Client) JoinRoom(roomID uuid.UUID) error {
	return c.emit(models.EventAdminJoinRoom, models.JoinRoomPayload{RoomID: roomID})
}

// SendText emits one text message.
func (c *Client) SendText(roomID uuid.UUID, text string) error {
	return c.emit(models.EventSendMessage, models.SendMessagePayload{
		RoomID:  roomID,
		Type:    models.MessageTypeText,
		Content: &text,
	})
}

// SendFile emits one media message for an already-uploaded file.
func (c *Client) SendFile(roomID uuid.UUID, fileType models.MessageType, fileURL string) error {
	return c.emit(models.EventSendMessage, models.SendMessagePayload{
		RoomID:  roomID,
		Type:    fileType,
		FileURL: &fileURL,
	})
}

func (c *Client) TypingStart(roomID uuid.UUID) error {
	return c.emit(models.EventTypingStart, models.TypingPayload{RoomID: roomID})
}

func (c *Client) TypingStop(roomID uuid.UUID) error {
	return c.emit(models.EventTypingStop, models.TypingPayload{RoomID: roomID})
}

func (c *Client) DeleteMessage(messageID uuid.UUID) error {
	return c.emit(models.EventDeleteMessage, models.DeleteMessagePayload{MessageID: messageID})
}

func (c *Client) DeleteRoom(roomID uuid.UUID) error {
	return c.emit(models.EventDeleteRoom, models.RoomPayload{RoomID: roomID})
}

// ClearHistory soft-clears the guest's own view of their history and
// empties the local list. The server keeps the admin's copy.
func (c *Client) ClearHistory(roomID uuid.UUID) error {
	if err := c.emit(models.EventClearHistory, models.RoomPayload{RoomID: roomID}); err != nil {
		return err
	}
	c.store.ClearLocalHistory()
	return nil
}

// Uploader moves attached files to storage before their messages are
// emitted. The REST client implements it.
type Uploader interface {
	Upload(ctx context.Context, files []File) ([]UploadResult, error)
}

// SendComposed performs one send action: upload every attached file,
// then emit one media message per file followed by one text message,
// in that order. Uploads complete strictly before any emission; an
// upload failure aborts the whole send with nothing emitted, leaving
// the caller's compose state intact for retry. Re-entrant calls while
// a send is pending fail with ErrSendInFlight.
func (c *Client) SendComposed(ctx context.Context, roomID uuid.UUID, text string, files []File, uploader Uploader) error {
	if err := c.store.BeginSend(); err != nil {
		return err
	}
	defer c.store.EndSend()

	var uploaded []UploadResult
	if len(files) > 0 {
		results, err := uploader.Upload(ctx, files)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		uploaded = results
	}

	for _, result := range uploaded {
		if err := c.SendFile(roomID, result.FileType, result.FileURL); err != nil {
			return err
		}
	}
	if text != "" {
		if err := c.SendText(roomID, text); err != nil {
			return err
		}
	}
	return nil
}

// NewTypingDebouncer wires a per-room debouncer to this channel's
// typing events.
func (c *Client) NewTypingDebouncer(roomID uuid.UUID) *TypingDebouncer {
	return NewTypingDebouncer(typingIdle,
		func() { c.TypingStart(roomID) },
		func() { c.TypingStop(roomID) },
	)
}
