package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"season_pass/internal/config"
	"season_pass/internal/database"
	"season_pass/internal/logger"
	"season_pass/internal/queue"
)

// worker 进程：Stream → Kafka 的 relay，以及 Kafka → 站内通知的 consumer。
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	client := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer client.Close()

	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	relay := queue.NewRelay(client, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer, log.Named("relay"))

	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db, log.Named("consumer"))
	defer consumer.Close()

	log.Info("worker started",
		zap.String("stream", cfg.OrderEventStream),
		zap.String("topic", cfg.KafkaTopic),
		zap.Strings("brokers", cfg.KafkaBrokers))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()
	wg.Wait()
	log.Info("worker stopped")
}
