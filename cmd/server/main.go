package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"season_pass/internal/auth"
	"season_pass/internal/billing"
	"season_pass/internal/config"
	"season_pass/internal/database"
	"season_pass/internal/logger"
	"season_pass/internal/middleware"
	"season_pass/internal/payment"
	"season_pass/internal/queue"
	"season_pass/internal/router"
	rdb "season_pass/pkg/redis"
)

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

	// 1. 数据库，自动建表
	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// 2. Redis：限流、webhook 锁、事件 outbox
	client := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed, rate limiting fails open", zap.Error(err))
	}

	// 3. 支付网关与业务服务
	provider := payment.NewClient(cfg.Payment.APIURL, cfg.Payment.ShopID, cfg.Payment.SecretKey, cfg.Payment.Timeout)
	svc := billing.NewService(billing.Dependencies{
		DB:        db,
		Provider:  provider,
		Events:    queue.NewOutbox(client, cfg.OrderEventStream),
		Logger:    log,
		Currency:  cfg.Payment.Currency,
		ReturnURL: cfg.Payment.ReturnURL,
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.RequestLogger(log))
	router.Setup(r, router.Deps{
		DB:         db,
		Billing:    svc,
		Tokens:     auth.NewIssuer(cfg.JWTSecret, 24*time.Hour),
		Limiter:    rdb.NewSlidingWindow(client),
		Locker:     rdb.NewPaymentLock(client, 30*time.Second),
		Logger:     log,
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("db_driver", cfg.DBDriver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}
}
