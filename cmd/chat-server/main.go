package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ce-phus/atlas-path-relocation/internal/api"
	"github.com/ce-phus/atlas-path-relocation/internal/auth"
	"github.com/ce-phus/atlas-path-relocation/internal/config"
	"github.com/ce-phus/atlas-path-relocation/internal/hub"
	"github.com/ce-phus/atlas-path-relocation/internal/media"
	"github.com/ce-phus/atlas-path-relocation/internal/notify"
	"github.com/ce-phus/atlas-path-relocation/internal/store"
	"github.com/ce-phus/atlas-path-relocation/internal/ws"
	"github.com/ce-phus/atlas-path-relocation/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := ws.Deps{Logger: zl}

	if cfg.Mongo.URI != "" {
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err == nil {
			err = client.Ping(connectCtx, nil)
		}
		connectCancel()
		if err != nil {
			zl.Fatalw("mongo connect failed", "error", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		ms := store.NewMongo(client.Database(cfg.Mongo.Database))
		if err := ms.EnsureIndexes(ctx); err != nil {
			zl.Fatalw("index creation failed", "error", err)
		}
		deps.Conversations, deps.Messages, deps.Presence, deps.Users = ms, ms, ms, ms
	} else {
		zl.Warn("no mongo uri configured, using in-memory stores")
		mem := store.NewMemory()
		deps.Conversations, deps.Messages, deps.Presence, deps.Users = mem, mem, mem, mem
	}

	router := hub.New(zl)
	deps.Router = router
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bridge := hub.NewRedisBridge(rdb, router, cfg.Redis.Prefix, zl)
		if err := bridge.Start(ctx); err != nil {
			zl.Fatalw("redis bridge start failed", "error", err)
		}
		zl.Infow("cross-instance broadcast enabled", "addr", cfg.Redis.Addr)
	}

	deps.Push = notify.NopPublisher{}
	if cfg.Kafka.Enabled {
		kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer func() { _ = kp.Close() }()
		deps.Push = kp
	}

	var localMedia *media.MemoryStore
	var mediaStore media.Store
	if cfg.S3.Enabled {
		s3store, err := media.NewS3Store(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.PublicRead,
			time.Duration(cfg.S3.URLTTLHours)*time.Hour)
		if err != nil {
			zl.Fatalw("s3 store init failed", "error", err)
		}
		mediaStore = s3store
	} else {
		localMedia = media.NewMemoryStore("/media/")
		mediaStore = localMedia
	}
	deps.Media = media.NewProcessor(mediaStore, zl)
	deps.Lists = notify.NewListNotifier(router, zl)

	gw := ws.NewGateway(deps, auth.NewValidator(cfg.App.JWTSecret), ws.Config{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
	})
	app := api.NewServer(gw, localMedia)

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		zl.Infow("starting chat server", "addr", addr, "env", cfg.App.Env)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		zl.Fatalw("server error", "error", e)
	case s := <-sig:
		zl.Infow("signal received", "signal", s.String())
	}

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zl.Warnw("shutdown error", "error", err)
	}
	zl.Info("shut down")
}
