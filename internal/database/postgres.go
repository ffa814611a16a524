package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetdesk/internal/models"
	"fleetdesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT id, username, admin, profile_picture, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Admin, &user.ProfilePicture, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) ListCandidateUsers(ctx context.Context) ([]models.User, error) {
	// A guest stays a candidate until a room with at least one message
	// exists for them.
	query := `
		SELECT u.id, u.username, u.admin, u.profile_picture, u.created_at
		FROM users u
		WHERE u.admin = false
		  AND NOT EXISTS (
			SELECT 1 FROM rooms r
			JOIN messages m ON m.room_id = r.id
			WHERE r.guest_id = u.id
		  )
		ORDER BY u.username`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Admin, &user.ProfilePicture, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Room Repository Implementation
func (db *PostgresDB) GetRoomByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	query := `SELECT id, guest_id, last_message, updated_at, created_at, history_cleared_at FROM rooms WHERE id = $1`
	return db.scanRoom(db.pool.QueryRow(ctx, query, id))
}

func (db *PostgresDB) GetRoomByGuest(ctx context.Context, guestID uuid.UUID) (*models.Room, error) {
	query := `SELECT id, guest_id, last_message, updated_at, created_at, history_cleared_at FROM rooms WHERE guest_id = $1`
	return db.scanRoom(db.pool.QueryRow(ctx, query, guestID))
}

func (db *PostgresDB) scanRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(
		&room.ID, &room.GuestID, &room.LastMessage, &room.UpdatedAt, &room.CreatedAt, &room.HistoryClearedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (db *PostgresDB) FindOrCreateRoom(ctx context.Context, guestID uuid.UUID) (*models.Room, error) {
	// The unique constraint on guest_id makes this race-free: the
	// losing inserter observes the winner's row.
	query := `
		INSERT INTO rooms (id, guest_id, last_message, updated_at, created_at)
		VALUES ($1, $2, '', NOW(), NOW())
		ON CONFLICT (guest_id) DO UPDATE SET guest_id = EXCLUDED.guest_id
		RETURNING id, guest_id, last_message, updated_at, created_at, history_cleared_at`

	return db.scanRoom(db.pool.QueryRow(ctx, query, uuid.New(), guestID))
}

func (db *PostgresDB) ListActiveRooms(ctx context.Context) ([]models.RoomSummary, error) {
	query := `
		SELECT r.id, r.guest_id, r.last_message, r.updated_at, r.created_at, r.history_cleared_at,
		       u.username, u.profile_picture
		FROM rooms r
		JOIN users u ON u.id = r.guest_id
		WHERE EXISTS (SELECT 1 FROM messages m WHERE m.room_id = r.id)
		ORDER BY r.updated_at DESC`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.RoomSummary
	for rows.Next() {
		var s models.RoomSummary
		if err := rows.Scan(
			&s.ID, &s.GuestID, &s.LastMessage, &s.UpdatedAt, &s.CreatedAt, &s.HistoryClearedAt,
			&s.GuestName, &s.GuestAvatar,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, s)
	}

	return rooms, rows.Err()
}

func (db *PostgresDB) TouchRoom(ctx context.Context, roomID uuid.UUID, preview string, at time.Time) error {
	query := `UPDATE rooms SET last_message = $2, updated_at = $3 WHERE id = $1`
	_, err := db.pool.Exec(ctx, query, roomID, preview, at)
	return err
}

func (db *PostgresDB) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE room_id = $1", roomID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM rooms WHERE id = $1", roomID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (db *PostgresDB) ClearGuestHistory(ctx context.Context, roomID uuid.UUID, at time.Time) error {
	query := `UPDATE rooms SET history_cleared_at = $2 WHERE id = $1`
	_, err := db.pool.Exec(ctx, query, roomID, at)
	return err
}

// Message Repository Implementation
func (db *PostgresDB) SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, room_id, sender_id, type, content, file_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, room_id, sender_id, type, content, file_url, created_at`

	saved := &models.Message{}
	err := db.pool.QueryRow(ctx, query, uuid.New(), msg.RoomID, msg.SenderID, msg.Type, msg.Content, msg.FileURL).Scan(
		&saved.ID, &saved.RoomID, &saved.SenderID, &saved.Type, &saved.Content, &saved.FileURL, &saved.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return saved, nil
}

func (db *PostgresDB) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := `SELECT id, room_id, sender_id, type, content, file_url, created_at FROM messages WHERE id = $1`

	msg := &models.Message{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Type, &msg.Content, &msg.FileURL, &msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return msg, nil
}

func (db *PostgresDB) LoadRoomHistory(ctx context.Context, roomID uuid.UUID, since *time.Time) ([]models.Message, error) {
	query := `
		SELECT id, room_id, sender_id, type, content, file_url, created_at
		FROM messages
		WHERE room_id = $1 AND ($2::timestamptz IS NULL OR created_at > $2)
		ORDER BY created_at, id`

	rows, err := db.pool.Query(ctx, query, roomID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Type, &msg.Content, &msg.FileURL, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PostgresDB) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, "DELETE FROM messages WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Notification Repository Implementation
func (db *PostgresDB) SaveNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	query := `
		INSERT INTO notifications (id, user_id, title, message, resource_type, resource_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, NOW())
		RETURNING id, user_id, title, message, resource_type, resource_id, is_read, created_at`

	saved := &models.Notification{}
	err := db.pool.QueryRow(ctx, query, uuid.New(), n.UserID, n.Title, n.Message, n.ResourceType, n.ResourceID).Scan(
		&saved.ID, &saved.UserID, &saved.Title, &saved.Message, &saved.ResourceType, &saved.ResourceID, &saved.IsRead, &saved.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save notification: %w", err)
	}

	return saved, nil
}

func (db *PostgresDB) ListRecentNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, title, message, resource_type, resource_id, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.ResourceType, &n.ResourceID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (db *PostgresDB) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID) error {
	query := `UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`
	_, err := db.pool.Exec(ctx, query, id, userID)
	return err
}

func (db *PostgresDB) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false`
	_, err := db.pool.Exec(ctx, query, userID)
	return err
}
