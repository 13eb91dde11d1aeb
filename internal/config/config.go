package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig 聚合运行时配置：可选 YAML 文件打底，环境变量覆盖。
type AppConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	// DBDriver 取值 sqlite / postgres
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroupID string   `yaml:"kafka_group_id"`

	// Redis Stream outbox（履约后入流，Relay 异步转 Kafka）
	OrderEventStream   string `yaml:"order_event_stream"`
	OrderEventGroup    string `yaml:"order_event_group"`
	OrderEventConsumer string `yaml:"order_event_consumer"`

	// 下单与查单接口的限流
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"-"`

	JWTSecret string `yaml:"jwt_secret"`

	Payment PaymentConfig `yaml:"payment"`
}

// PaymentConfig 支付网关参数。
type PaymentConfig struct {
	APIURL    string        `yaml:"api_url"`
	ShopID    string        `yaml:"shop_id"`
	SecretKey string        `yaml:"secret_key"`
	ReturnURL string        `yaml:"return_url"`
	Currency  string        `yaml:"currency"`
	Timeout   time.Duration `yaml:"-"`
}

func defaults() AppConfig {
	return AppConfig{
		HTTPAddr:           ":8080",
		LogLevel:           "info",
		DBDriver:           "sqlite",
		DBDSN:              "season_pass.db",
		RedisAddr:          "localhost:6379",
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaTopic:         "season-pass.order-paid",
		KafkaGroupID:       "season-pass-notifier",
		OrderEventStream:   "season_pass:order_events",
		OrderEventGroup:    "season-pass-relay-group",
		OrderEventConsumer: "season-pass-relay-1",
		RateLimit:          30,
		RateWindow:         time.Minute,
		Payment: PaymentConfig{
			APIURL:    "https://api.yookassa.ru/v3",
			ReturnURL: "http://localhost:3000/orders/%d/success",
			Currency:  "RUB",
			Timeout:   10 * time.Second,
		},
	}
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return AppConfig{}, err
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", cfg.DBDriver))
	cfg.DBDSN = getEnv("DB_DSN", cfg.DBDSN)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", cfg.KafkaGroupID)
	cfg.OrderEventStream = getEnv("ORDER_EVENT_STREAM", cfg.OrderEventStream)
	cfg.OrderEventGroup = getEnv("ORDER_EVENT_GROUP", cfg.OrderEventGroup)
	cfg.OrderEventConsumer = getEnv("ORDER_EVENT_CONSUMER", cfg.OrderEventConsumer)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.Payment.APIURL = strings.TrimRight(getEnv("PAYMENT_API_URL", cfg.Payment.APIURL), "/")
	cfg.Payment.ShopID = getEnv("PAYMENT_SHOP_ID", cfg.Payment.ShopID)
	cfg.Payment.SecretKey = getEnv("PAYMENT_SECRET_KEY", cfg.Payment.SecretKey)
	cfg.Payment.ReturnURL = getEnv("PAYMENT_RETURN_URL", cfg.Payment.ReturnURL)
	cfg.Payment.Currency = strings.ToUpper(getEnv("PAYMENT_CURRENCY", cfg.Payment.Currency))

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("RATE_LIMIT", cfg.RateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("RATE_LIMIT must be > 0")
	}
	cfg.RateLimit = rateLimit

	rateWindowSec, err := getEnvInt("RATE_WINDOW_SEC", int(cfg.RateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("RATE_WINDOW_SEC must be > 0")
	}
	cfg.RateWindow = time.Duration(rateWindowSec) * time.Second

	timeoutSec, err := getEnvInt("PAYMENT_TIMEOUT_SEC", int(cfg.Payment.Timeout.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid PAYMENT_TIMEOUT_SEC: %w", err)
	}
	if timeoutSec <= 0 {
		return AppConfig{}, fmt.Errorf("PAYMENT_TIMEOUT_SEC must be > 0")
	}
	cfg.Payment.Timeout = time.Duration(timeoutSec) * time.Second

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		return AppConfig{}, fmt.Errorf("DB_DSN must not be empty")
	}
	if cfg.JWTSecret == "" {
		return AppConfig{}, fmt.Errorf("JWT_SECRET must not be empty")
	}
	if cfg.Payment.ShopID == "" || cfg.Payment.SecretKey == "" {
		return AppConfig{}, fmt.Errorf("PAYMENT_SHOP_ID and PAYMENT_SECRET_KEY must not be empty")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.OrderEventStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM must not be empty")
	}
	if cfg.OrderEventGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_GROUP must not be empty")
	}
	if cfg.OrderEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// loadFile 用 YAML 文件覆盖默认值。
func loadFile(path string, cfg *AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
