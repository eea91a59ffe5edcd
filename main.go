package main

import (
	"log"
	"os"
	"time"

	"lingochat/internal/api"
	"lingochat/internal/config"
	"lingochat/internal/redis"
	"lingochat/internal/service/ai"
	"lingochat/internal/service/chat"
	"lingochat/internal/session"
	"lingochat/internal/storage"
	"lingochat/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")

	cfgPath := os.Getenv("LINGOCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("LINGOCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: users, rooms, messages, vocab
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	chatService := chat.NewService(db)

	// The chat model is loaded once and shared for the process
	// lifetime.
	generator, err := ai.Shared(cfg)
	if err != nil {
		log.Fatalf("init reply generator: %v", err)
	}
	dispatcher := worker.NewDispatcher(generator, worker.Config{
		Workers:   cfg.BasicConfig.ReplyWorkers,
		QueueSize: cfg.BasicConfig.ReplyQueueSize,
	})
	defer dispatcher.Stop()

	sessionTTL := time.Duration(cfg.BasicConfig.SessionTTL) * time.Minute
	sessions := session.NewStore(rdb, sessionTTL)

	handlers := api.NewHandler(chatService, dispatcher, sessions)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
