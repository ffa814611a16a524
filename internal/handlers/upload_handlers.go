package handlers

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"fleetdesk/internal/auth"
	"fleetdesk/internal/models"
	"fleetdesk/internal/storage"
	"fleetdesk/pkg/logger"
)

type UploadHandlers struct {
	store       storage.FileStore
	authService *auth.Service
	maxBytes    int64
}

func NewUploadHandlers(store storage.FileStore, authService *auth.Service, maxBytes int64) *UploadHandlers {
	return &UploadHandlers{
		store:       store,
		authService: authService,
		maxBytes:    maxBytes,
	}
}

type UploadResult struct {
	FileURL  string             `json:"fileUrl"`
	FileType models.MessageType `json:"fileType"`
}

// Upload accepts one or more files and returns {fileUrl, fileType} per
// file, in request order. Clients upload first and emit send_message
// only once every URL is known; any failure here aborts the whole send.
func (h *UploadHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	if _, err := userFromRequest(r, h.authService); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		http.Error(w, "invalid multipart request", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "no files provided", http.StatusBadRequest)
		return
	}

	results := make([]UploadResult, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			http.Error(w, "failed to read upload", http.StatusBadRequest)
			return
		}

		url, err := h.store.Save(r.Context(), header.Filename, f)
		f.Close()
		if err != nil {
			logger.Error("Upload error for %s: %v", header.Filename, err)
			// Partial success is not success: the client aborts the send.
			http.Error(w, "failed to store file", http.StatusInternalServerError)
			return
		}

		results = append(results, UploadResult{
			FileURL:  url,
			FileType: classifyUpload(header.Filename, header.Header.Get("Content-Type")),
		})
	}

	writeJSON(w, http.StatusOK, results)
}

// classifyUpload maps a file to the message type its delivery will
// carry. Anything unrecognized degrades to a plain file attachment.
func classifyUpload(filename, contentType string) models.MessageType {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	}

	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MessageTypeImage
	case strings.HasPrefix(contentType, "video/"):
		return models.MessageTypeVideo
	case strings.HasPrefix(contentType, "audio/"):
		return models.MessageTypeAudio
	default:
		return models.MessageTypeFile
	}
}
