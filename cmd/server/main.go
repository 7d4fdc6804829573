package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/storyloom/storyloom/api/handlers"
	"github.com/storyloom/storyloom/api/routes"
	"github.com/storyloom/storyloom/config"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
	"github.com/storyloom/storyloom/pkg/queue"
	storageminio "github.com/storyloom/storyloom/pkg/storage/minio"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/server.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	serverCfg := config.GetServerConfig()
	redisCfg := config.GetRedisConfig()
	pipeCfg := config.GetPipelineConfig()

	st, err := store.Open(serverCfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open store", logger.Error(err))
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	objects, err := storageminio.NewClient(ctx, config.GetMinioConfig(), log)
	if err != nil {
		log.Fatal("Failed to connect to object storage", logger.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	snapshots := progress.NewRedisSnapshots(redisClient, pipeCfg.SnapshotTTL())
	registry := progress.NewRegistry(
		pipeCfg.DiscoveryBufferSize,
		pipeCfg.SubscriberBufferSize,
		snapshots,
		log.Named("progress"),
	)

	queues := queue.New(redisCfg, pipeCfg)
	defer queues.Close()

	launcher := pipeline.NewLauncher(st, queues, log.Named("launcher"))
	dispatcher := pipeline.NewDispatcher(st, launcher, registry, log.Named("dispatcher"))

	h := handlers.NewHandlers(st, objects, dispatcher, registry, pipeCfg, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    serverCfg.Addr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", serverCfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
