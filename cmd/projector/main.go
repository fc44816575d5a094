package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-tour-booking/internal/config"
	kafkax "github.com/ariefcatur/go-tour-booking/internal/kafka"
	"github.com/ariefcatur/go-tour-booking/internal/logging"
	"github.com/ariefcatur/go-tour-booking/internal/projector"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName+"-projector")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("projector exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if cfg.RedisAddr == "" || len(cfg.KafkaBrokers) == 0 {
		return errors.New("projector needs REDIS_ADDR and KAFKA_BROKERS")
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	svc := &projector.Service{
		Cache: redisx.NewStatusCache(rdb),
		Dedup: redisx.NewDedup(rdb, "projector"),
		Log:   log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, kafkax.TopicOrders, cfg.ProjectorWorkers, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("projector consuming",
			zap.String("topic", kafkax.TopicOrders),
			zap.String("group", cfg.ProjectorGroup),
			zap.Int("workers", cfg.ProjectorWorkers))
		return cons.Start(gctx, svc.HandleOrderEvent)
	})
	return g.Wait()
}
