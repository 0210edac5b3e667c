package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/realtime-chat/api-server/internal/auth"
	"github.com/realtime-chat/api-server/internal/config"
	"github.com/realtime-chat/api-server/internal/handlers"
	"github.com/realtime-chat/api-server/internal/hub"
	httpx "github.com/realtime-chat/api-server/internal/http"
	"github.com/realtime-chat/api-server/internal/repo"
	"github.com/realtime-chat/api-server/internal/service"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	cfg := config.Load()

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		PoolSize:     10,              // 接続プールサイズ
		MinIdleConns: 5,               // 最小アイドル接続数
		MaxRetries:   3,               // リトライ回数
		DialTimeout:  5 * time.Second, // 接続タイムアウト
		ReadTimeout:  3 * time.Second, // 読み込みタイムアウト
		WriteTimeout: 3 * time.Second, // 書き込みタイムアウト
		PoolTimeout:  4 * time.Second, // プールからの取得タイムアウト
	})

	// Redis接続確認
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	log.Println("connected to redis")

	db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to open sqlite: %v", err)
	}

	userRepo := repo.NewGormUserRepo(db)
	if err := userRepo.Migrate(); err != nil {
		log.Fatalf("failed to migrate users table: %v", err)
	}
	roomRepo := repo.NewRedisRoomRepo(rdb)
	messageRepo := repo.NewRedisMessageRepo(rdb)

	tokens := auth.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)
	hasher := auth.NewPasswordHasher()

	h := hub.NewHub()
	authSvc := service.NewAuthService(userRepo, roomRepo, messageRepo, tokens, hasher)
	roomSvc := service.NewRoomService(roomRepo)
	msgSvc := service.NewMessageService(roomRepo, messageRepo, h)

	authH := handlers.NewAuthHandler(authSvc)
	roomH := handlers.NewRoomHandler(roomSvc, msgSvc)
	wsH := handlers.NewWebSocketHandler(authSvc, roomSvc, msgSvc, h, cfg.AllowedOrigin)

	router := httpx.NewRouter(authSvc, authH, roomH, wsH, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown用のシグナルチャネル
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// サーバーを別goroutineで起動
	go func() {
		log.Printf("listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// シャットダウンシグナルを待つ
	<-sigChan
	log.Println("shutdown signal received, shutting down gracefully...")

	// 30秒のタイムアウトでGraceful Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("server stopped")
}
