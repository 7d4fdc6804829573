package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/storyloom/storyloom/config"
	"github.com/storyloom/storyloom/internal/agent/analyze"
	"github.com/storyloom/storyloom/internal/agent/narrative"
	"github.com/storyloom/storyloom/internal/agent/parse"
	"github.com/storyloom/storyloom/internal/agent/site"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/internal/worker"
	"github.com/storyloom/storyloom/pkg/logger"
	"github.com/storyloom/storyloom/pkg/queue"
	storageminio "github.com/storyloom/storyloom/pkg/storage/minio"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	serverCfg := config.GetServerConfig()
	redisCfg := config.GetRedisConfig()
	pipeCfg := config.GetPipelineConfig()
	providersCfg := config.GetProvidersConfig()

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
	policy := pipeline.NewPolicy(st, launcher, registry, log.Named("policy"))

	httpClient := &http.Client{Timeout: providersCfg.Timeout}
	chain := narrative.NewChain(
		narrative.NewOpenAIClient(providersCfg.Primary, httpClient),
		narrative.NewOllamaClient(providersCfg.Secondary, httpClient),
		pipeCfg.MinNarrativeChars,
		log.Named("narrative"),
	)

	publisher, err := site.NewS3Publisher(ctx, config.GetPublishConfig(), log.Named("publish"))
	if err != nil {
		log.Error("Failed to create publisher", logger.Error(err))
		os.Exit(1)
	}

	h := worker.NewHandlers(
		st,
		queues,
		registry,
		policy,
		objects,
		parse.NewFactory(log.Named("parse")),
		analyze.NewHeuristicAnalyzer(),
		chain,
		site.NewBuilder(st),
		publisher,
		pipeCfg,
		log.Named("worker"),
	)

	stageWorker, err := worker.New(queue.NewServer(redisCfg, pipeCfg), h, log)
	if err != nil {
		log.Error("Failed to create worker", logger.Error(err))
		os.Exit(1)
	}

	if err := stageWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	stageWorker.Stop()
	log.Info("Worker stopped")
}
