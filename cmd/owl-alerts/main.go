package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logpkg "owl-alerts/common/logger"
	rediscommon "owl-alerts/common/redis"
	"owl-alerts/internal/config"
	"owl-alerts/internal/consumer"
	"owl-alerts/internal/service"
	"owl-alerts/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "owl-alerts")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting owl-alerts service")

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	defer rediscommon.Close(redisClient)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = rediscommon.Ping(pingCtx, redisClient)
	pingCancel()
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	repos, persistent, closeRepos := openRepositories(cfg, log)
	defer closeRepos()

	alertService := service.NewAlertService(
		repos,
		store.NewViewCache(store.NewRedisKV(redisClient), cfg.Alert.ViewCacheTTL),
		service.NewRedisEventPublisher(redisClient, cfg.Alert.EventStream),
		service.NewRestyImageFetcher(cfg.Alert.ImageTimeout, cfg.Alert.ImageMaxBytes, log),
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 内存存储没有用户，已读消息只会失败并一直挂起，不启动消费者
	var errChan chan error
	if persistent {
		viewConsumer := consumer.NewViewConsumer(
			redisClient,
			alertService,
			log,
			cfg.Alert.ViewStream,
			cfg.Alert.ConsumerGroup,
			cfg.Alert.ConsumerName,
			int64(cfg.Alert.BatchSize),
			2*time.Second,
		)
		errChan = make(chan error, 1)
		go func() {
			errChan <- viewConsumer.Start(ctx)
		}()
	} else {
		log.Warn("Views cannot be recorded without a database, view consumer disabled",
			zap.String("stream", cfg.Alert.ViewStream),
		)
	}

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		if errChan != nil {
			if err := <-errChan; err != nil {
				log.Error("Error stopping view consumer", zap.Error(err))
			}
		}
	case err := <-errChan:
		if err != nil {
			log.Error("View consumer error", zap.Error(err))
		}
		cancel()
	}

	log.Info("Service stopped")
}
