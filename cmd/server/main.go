package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fleetdesk/internal/auth"
	"fleetdesk/internal/config"
	"fleetdesk/internal/database"
	"fleetdesk/internal/handlers"
	"fleetdesk/internal/services"
	"fleetdesk/internal/storage"
	"fleetdesk/internal/ws"
	"fleetdesk/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize the live-channel hub
	hub := ws.NewHub(db)
	go hub.Run()
	defer hub.Stop()

	// Initialize services
	authService := auth.NewService(db, cfg)
	roomService := services.NewRoomService(db, hub)

	fileStore, err := storage.NewLocalStore(cfg.Upload.Dir, cfg.Upload.PublicPrefix)
	if err != nil {
		logger.Fatal("Failed to initialize upload storage: %v", err)
	}

	// Initialize handlers
	roomHandlers := handlers.NewRoomHandlers(roomService, authService)
	uploadHandlers := handlers.NewUploadHandlers(fileStore, authService, cfg.Upload.MaxBytes)
	notificationHandlers := handlers.NewNotificationHandlers(db, hub, authService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, hub)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, cfg, roomHandlers, uploadHandlers, notificationHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

func setupRoutes(
	mux *http.ServeMux,
	cfg *config.Config,
	roomHandlers *handlers.RoomHandlers,
	uploadHandlers *handlers.UploadHandlers,
	notificationHandlers *handlers.NotificationHandlers,
	wsHandlers *handlers.WebSocketHandlers,
) {
	// Chat routes
	mux.HandleFunc("/api/chat/rooms", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			roomHandlers.Inbox(w, r)
		case http.MethodPost:
			roomHandlers.CreateRoom(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// /api/chat/rooms/{id}/messages
	mux.HandleFunc("/api/chat/rooms/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages") {
			roomHandlers.RoomMessages(w, r)
			return
		}
		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	mux.HandleFunc("/api/chat/my-room", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		roomHandlers.MyRoom(w, r)
	})

	// Upload route
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		uploadHandlers.Upload(w, r)
	})
	mux.Handle(cfg.Upload.PublicPrefix, http.StripPrefix(cfg.Upload.PublicPrefix, http.FileServer(http.Dir(cfg.Upload.Dir))))

	// Notification routes
	mux.HandleFunc("/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			notificationHandlers.List(w, r)
		case http.MethodPost:
			notificationHandlers.Create(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/notifications/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/read-all") {
			notificationHandlers.MarkAllRead(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/read") {
			notificationHandlers.MarkRead(w, r)
			return
		}
		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   GET  /api/chat/rooms")
	logger.Info("   POST /api/chat/rooms")
	logger.Info("   GET  /api/chat/rooms/{id}/messages")
	logger.Info("   GET  /api/chat/my-room")
	logger.Info("   POST /api/upload")
	logger.Info("   GET  /api/notifications")
	logger.Info("   POST /api/notifications")
	logger.Info("   POST /api/notifications/{id}/read")
	logger.Info("   POST /api/notifications/read-all")
}
