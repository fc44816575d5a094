package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/calendar"
	"github.com/ariefcatur/go-tour-booking/internal/config"
	"github.com/ariefcatur/go-tour-booking/internal/httpx"
	"github.com/ariefcatur/go-tour-booking/internal/idgen"
	kafkax "github.com/ariefcatur/go-tour-booking/internal/kafka"
	"github.com/ariefcatur/go-tour-booking/internal/logging"
	"github.com/ariefcatur/go-tour-booking/internal/memstore"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/postgres"
	"github.com/ariefcatur/go-tour-booking/internal/products"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
	"github.com/ariefcatur/go-tour-booking/internal/reservation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

type repos struct {
	products booking.ProductRepo
	calendar booking.CalendarRepo
	orders   booking.OrderRepo
}

func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (repos, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on exit")
		s := memstore.New()
		return repos{s.Products(), s.Calendar(), s.Orders()}, func() {}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{})
	if err != nil {
		return repos{}, nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return repos{}, nil, err
		}
		log.Info("migrations applied")
	}
	s := &postgres.Store{DB: pool, LockTimeout: cfg.LockTimeout}
	return repos{s.Products(), s.Calendar(), s.Orders()}, pool.Close, nil
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	store, closeStore, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Kafka: one buffered producer per topic
	var (
		events    booking.EventPublisher
		producers []*kafkax.Producer
	)
	if len(cfg.KafkaBrokers) > 0 {
		sinks := map[string]kafkax.Sink{}
		for _, topic := range []string{kafkax.TopicOrders, kafkax.TopicProducts, kafkax.TopicCalendar} {
			p := kafkax.NewProducer(cfg.KafkaBrokers, topic, 1024, log)
			p.Start(ctx)
			producers = append(producers, p)
			sinks[topic] = p
		}
		events = kafkax.NewPublisher(cfg.ServiceName, sinks, log)
	} else {
		log.Warn("KAFKA_BROKERS empty; domain events are not published")
	}
	defer func() {
		for _, p := range producers {
			p.Close()
		}
		for _, p := range producers {
			p.WaitClosed()
		}
	}()

	numbers := idgen.New(store.products, store.orders, idgen.WithAttempts(cfg.IDAttempts))
	h := httpx.NewHandler(
		products.NewService(store.products, numbers, events, log),
		calendar.NewService(store.calendar, store.products, events, log),
		reservation.NewEngine(store.products, store.calendar, store.orders, numbers, events, log,
			reservation.WithEpsilon(cfg.PriceEpsilon)),
		orders.NewService(store.orders, events, log),
		log,
	)

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := pingRedis(ctx, rdb); err != nil {
			log.Warn("redis unreachable; idempotency and status cache degrade to no-ops", zap.Error(err))
		}
		h.Idempotency = redisx.NewIdempotency(rdb)
		h.StatusCache = redisx.NewStatusCache(rdb)
	}

	router := httpx.NewRouter(log)
	h.Register(router)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func pingRedis(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
