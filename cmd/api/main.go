// cmd/api/main.go

package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/auth"
	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/common/database"
	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/config"
	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/connections"
	"github.com/KhurshidShaikh/Alumni-Bridge-sub001/internal/messaging"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.NewPostgresDBFromURL(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	if err := runMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Redis is optional; without it presence is in-process only
	redisClient, err := database.NewRedisClientFromURL(cfg.RedisURL)
	if err != nil {
		log.Printf("Redis unavailable, presence tracking degraded: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Println("Connected to Redis")
	}

	// Auth
	authService := auth.NewService(&auth.Config{
		JWTSecret:         cfg.JWTSecret,
		AccessTokenExpiry: cfg.AccessTokenExpiry,
	})
	authMiddleware := auth.NewMiddleware(authService)

	// Connections
	connectionRepo := connections.NewPostgresRepository(db)
	connectionService := connections.NewService(connectionRepo)
	connectionHandler := connections.NewHandler(connectionService)

	// Messaging
	messagingRepo := messaging.NewPostgresRepository(db)
	messagingService := messaging.NewService(messagingRepo, connectionService, messaging.ServiceConfig{
		MaxMessageLength:     cfg.MaxMessageLength,
		MessagePageSize:      cfg.MessagePageSize,
		ConversationPageSize: cfg.ConversationPageSize,
		SearchResultLimit:    cfg.SearchResultLimit,
		BulkSendMax:          cfg.BulkSendMax,
	})

	presence := messaging.NewPresenceTracker(redisClient, cfg.PresenceTTL)
	hub := messaging.NewHub(messagingService, presence)
	messagingService.SetHub(hub)
	go hub.Run()

	messagingHandler := messaging.NewHandler(messagingService, hub, authService)

	// Routes
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","connections":%d}`, hub.ActiveConnections())
	}).Methods("GET")

	if cfg.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	connections.RegisterRoutes(router, connectionHandler, authMiddleware.Authenticate)
	messaging.RegisterRoutes(router, messagingHandler, authMiddleware.Authenticate, authMiddleware.RequireAdmin)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s (%s)", cfg.Port, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations creates the schema if it does not exist
func runMigrations(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'alumni',
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		batch VARCHAR(20),
		department VARCHAR(100),
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS connection_requests (
		id BIGSERIAL PRIMARY KEY,
		requester_id BIGINT NOT NULL REFERENCES users(id),
		recipient_id BIGINT NOT NULL REFERENCES users(id),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		message TEXT,
		responded_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (requester_id <> recipient_id)
	);

	CREATE TABLE IF NOT EXISTS connections (
		id BIGSERIAL PRIMARY KEY,
		user_a BIGINT NOT NULL REFERENCES users(id),
		user_b BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_a, user_b),
		CHECK (user_a < user_b)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		user_a BIGINT NOT NULL REFERENCES users(id),
		user_b BIGINT NOT NULL REFERENCES users(id),
		last_message_id BIGINT,
		last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_a, user_b),
		CHECK (user_a < user_b)
	);

	CREATE TABLE IF NOT EXISTS conversation_participants (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id),
		user_id BIGINT NOT NULL REFERENCES users(id),
		unread_count INT NOT NULL DEFAULT 0,
		UNIQUE (conversation_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id),
		sender_id BIGINT NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		message_type VARCHAR(20) NOT NULL DEFAULT 'text',
		is_edited BOOLEAN NOT NULL DEFAULT FALSE,
		edited_at TIMESTAMPTZ,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS message_reads (
		id BIGSERIAL PRIMARY KEY,
		message_id BIGINT NOT NULL REFERENCES messages(id),
		user_id BIGINT NOT NULL REFERENCES users(id),
		read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (message_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_connection_requests_recipient ON connection_requests(recipient_id, status);
	CREATE INDEX IF NOT EXISTS idx_connection_requests_requester ON connection_requests(requester_id, status);
	CREATE INDEX IF NOT EXISTS idx_connections_user_a ON connections(user_a);
	CREATE INDEX IF NOT EXISTS idx_connections_user_b ON connections(user_b);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations(user_a, last_message_at DESC);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations(user_b, last_message_at DESC);
	CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_message_reads_message ON message_reads(message_id);
	`

	_, err := db.Exec(schema)
	return err
}

// requestIDMiddleware tags each request with an id for log correlation
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs method, path, status and duration
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Printf("%s %s %d %v [%s]",
			r.Method, r.URL.Path, wrapped.status, time.Since(start), w.Header().Get("X-Request-ID"))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes through so the websocket upgrade still works behind the
// logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// corsMiddleware handles CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
