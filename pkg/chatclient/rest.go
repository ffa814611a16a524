package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"fleetdesk/internal/models"

	"github.com/google/uuid"
)

// File is one attachment queued for upload.
type File struct {
	Name   string
	Reader io.Reader
}

// UploadResult mirrors the server's per-file upload response.
type UploadResult struct {
	FileURL  string             `json:"fileUrl"`
	FileType models.MessageType `json:"fileType"`
}

// REST is the persistence-facing half of the client: history and room
// snapshots, find-or-create, uploads, and the notification feed.
type REST struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewREST(baseURL, token string) *REST {
	return &REST{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *REST) FetchGuestSnapshot(ctx context.Context) (*models.GuestSnapshot, error) {
	var snapshot models.GuestSnapshot
	if err := r.getJSON(ctx, "/api/chat/my-room", &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *REST) FetchAdminSnapshot(ctx context.Context) (*models.AdminSnapshot, error) {
	var snapshot models.AdminSnapshot
	if err := r.getJSON(ctx, "/api/chat/rooms", &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *REST) FetchHistory(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	if err := r.getJSON(ctx, "/api/chat/rooms/"+roomID.String()+"/messages", &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// CreateRoom finds or creates the room for a guest. Idempotent.
func (r *REST) CreateRoom(ctx context.Context, userID uuid.UUID) (*models.Room, error) {
	body, err := json.Marshal(map[string]uuid.UUID{"user_id": userID})
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := r.postJSON(ctx, "/api/chat/rooms", "application/json", bytes.NewReader(body), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *REST) FetchNotifications(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	if err := r.getJSON(ctx, "/api/notifications", &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *REST) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	return r.postJSON(ctx, "/api/notifications/"+id.String()+"/read", "application/json", nil, nil)
}

func (r *REST) MarkAllNotificationsRead(ctx context.Context) error {
	return r.postJSON(ctx, "/api/notifications/read-all", "application/json", nil, nil)
}

// Upload sends every file in one multipart request and returns one
// {fileUrl, fileType} per file, in order.
func (r *REST) Upload(ctx context.Context, files []File) ([]UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, file := range files {
		part, err := writer.CreateFormFile("files", file.Name)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, file.Reader); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var results []UploadResult
	if err := r.postJSON(ctx, "/api/upload", writer.FormDataContentType(), &buf, &results); err != nil {
		return nil, err
	}
	if len(results) != len(files) {
		return nil, fmt.Errorf("expected %d upload results, got %d", len(files), len(results))
	}
	return results, nil
}

func (r *REST) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	return r.do(req, v)
}

func (r *REST) postJSON(ctx context.Context, path, contentType string, body io.Reader, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return r.do(req, v)
}

func (r *REST) do(req *http.Request, v interface{}) error {
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
