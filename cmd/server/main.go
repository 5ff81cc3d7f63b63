package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/KrishnaChhetry/Chat-App/internal/chat"
	"github.com/KrishnaChhetry/Chat-App/internal/config"
	"github.com/KrishnaChhetry/Chat-App/internal/db"
	myMiddleware "github.com/KrishnaChhetry/Chat-App/internal/middleware"
	"github.com/KrishnaChhetry/Chat-App/internal/user"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Event bus: redis pub/sub when running more than one instance,
	// in-process loopback otherwise.
	var bus chat.Bus
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
		bus = chat.NewRedisBus(redisClient, cfg.EventChannel)
	} else {
		log.Println("⚠️ REDIS_ADDR not set, running single-instance")
		bus = chat.NewLoopbackBus()
	}

	// 4. User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// 5. Chat Core
	chatRepo := chat.NewRepository(database.Conn)
	presence := chat.NewRegistry()
	hub := chat.NewHub(presence, bus)
	chatService := chat.NewService(chatRepo, userService, presence, hub)
	chatHandler := chat.NewHandler(chatService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("❌ Event bus subscription lost: %v", err)
		}
	}()
	defer hub.Shutdown()

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Get("/api/users", userHandler.ListUsers)
		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Get("/api/conversations/{id}/messages", chatHandler.GetMessages)
	})

	log.Printf("🚀 Server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal(err)
	}
}
