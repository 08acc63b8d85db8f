package main

import (
	"context"
	"net/http"

	"consultgo/backend/internal/api/handler"
	"consultgo/backend/internal/auth"
	"consultgo/backend/internal/chathub"
	"consultgo/backend/internal/config"
	"consultgo/backend/internal/conversation"
	"consultgo/backend/internal/models"
	"consultgo/backend/internal/notify"
	"consultgo/backend/internal/presence"
	"consultgo/backend/internal/storage"
	"consultgo/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config, log *logger.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}

	err = db.AutoMigrate(
		&models.Responder{},
		&models.Conversation{},
		&models.Message{},
		&models.ConversationSession{},
	)
	if err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	log.Info("database and redis connections established, migrations complete")
	return db, rdb
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var log *logger.Logger
	if cfg.Env == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting conversation coordination service")

	db, rdb := setupDependencies(cfg, log)
	store := storage.NewService(db, rdb)

	ctx := context.Background()

	// The registry is empty after a restart, so nobody can be online yet.
	if err := store.ResetAllPresence(ctx); err != nil {
		log.Fatal("failed to reset responder presence", zap.Error(err))
	}
	if ids, err := store.ActiveConversationIDs(ctx); err == nil && len(ids) > 0 {
		log.Info("recovered active conversations", zap.Int("count", len(ids)))
	}

	identity := auth.NewIdentity(cfg.JWTSecret, cfg.JWTTTL, store)
	registry := chathub.NewRegistry()
	tracker := presence.NewTracker(store, log)
	convs := conversation.NewService(store, registry, log)

	var notifier chathub.Notifier
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, log)
		if err != nil {
			log.Fatal("failed to start telegram notifier", zap.Error(err))
		}
		notifier = tg
	}

	hub := chathub.NewGateway(registry, store, convs, tracker, notifier, log)
	hub.StartPubSubListener(ctx)
	go hub.Run(ctx)

	handler.AuthTimeout = cfg.AuthTimeout
	h := handler.New(hub, convs, store, identity, log, cfg.DefaultMaxConversations)

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/auth/token", h.IssueToken)
	r.GET("/ws", h.ServeWebSocket)

	authed := r.Group("/", identity.Middleware())
	authed.GET("/conversations", h.ListConversations)
	authed.GET("/conversations/:id/messages", h.ListMessages)
	authed.GET("/responders/:id/presence", h.GetPresence)
	authed.PATCH("/responders/:id/presence", h.PatchPresence)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	log.Info("listening", zap.String("addr", cfg.HTTPAddr))
	log.Fatal("server stopped", zap.Error(server.ListenAndServe()))
}
