package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/npezzotti/rtc-broker/internal/api"
	"github.com/npezzotti/rtc-broker/internal/config"
	"github.com/npezzotti/rtc-broker/internal/credentials"
	"github.com/npezzotti/rtc-broker/internal/ratelimit"
	"github.com/npezzotti/rtc-broker/internal/roomstore"
	"github.com/npezzotti/rtc-broker/internal/server"
)

const (
	chatWindow          = 10 * time.Second
	chatMaxPerWindow    = 10
	restWindow          = 15 * time.Minute
	restMaxPerWindow    = 100
	webhookWindow       = time.Minute
	webhookMaxPerWindow = 50
	asyncWriteQueueSize = 256
	mongoDatabaseName   = "rtcbroker"
	shutdownGracePeriod = 10 * time.Second
	mongoConnectTimeout = 10 * time.Second
)

func main() {
	logger := log.New(os.Stderr, "[rtc-broker] ", log.LstdFlags)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("config:", err)
	}

	pgRepo, err := credentials.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres open:", err)
	}
	defer func() {
		if err := pgRepo.Close(); err != nil {
			logger.Println("postgres close:", err)
		}
	}()

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoRepo, err := roomstore.NewMongoRepository(connectCtx, cfg.MongoURI, mongoDatabaseName)
	cancel()
	if err != nil {
		logger.Fatal("mongo connect:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := mongoRepo.Close(ctx); err != nil {
			logger.Println("mongo close:", err)
		}
	}()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("redis ping:", err)
	}

	tokens := credentials.NewTokenService(cfg.SigningKey)
	credsStore := credentials.NewStore(pgRepo, tokens)

	roomStore := roomstore.NewStore(mongoRepo)
	async := roomstore.NewAsyncWriter(roomStore, logger, asyncWriteQueueSize)

	chatLimiter := ratelimit.NewChatLimiter(chatWindow, chatMaxPerWindow)
	restLimiter := ratelimit.NewRedisLimiter(redisClient, ratelimit.Config{Window: restWindow, RequestsPerWindow: restMaxPerWindow}, "ratelimit:rest:")
	webhookLimiter := ratelimit.NewRedisLimiter(redisClient, ratelimit.Config{Window: webhookWindow, RequestsPerWindow: webhookMaxPerWindow}, "ratelimit:webhook:")

	chatServer := server.NewChatServer(logger, roomStore, async, chatLimiter)
	go chatServer.Run()

	srv := api.NewServer(logger, chatServer, credsStore, roomStore, restLimiter, webhookLimiter, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	chatServer.Shutdown()

	logger.Println("shutdown complete")
}
