package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"season_pass/internal/logger"
	"season_pass/internal/payment"
	"season_pass/internal/queue"
)

// Provider 支付网关。
type Provider interface {
	CreatePayment(ctx context.Context, in payment.CreatePaymentInput) (payment.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (payment.Payment, error)
}

// EventSink 履约事件出口（Redis Stream outbox）。
type EventSink interface {
	Append(ctx context.Context, msg queue.OrderPaidMessage) error
}

type Dependencies struct {
	DB       *gorm.DB
	Provider Provider
	Events   EventSink
	Logger   *zap.Logger

	Currency string
	// ReturnURL 支付完成后的回跳地址，可含一个 %d 占位符（订单号）。
	ReturnURL string
}

// Service 负责下单、对账履约、取消与商品维护。
type Service struct {
	db        *gorm.DB
	provider  Provider
	events    EventSink
	log       *zap.Logger
	currency  string
	returnURL string
	now       func() time.Time
}

func NewService(deps Dependencies) *Service {
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "RUB"
	}
	return &Service{
		db:        deps.DB,
		provider:  deps.Provider,
		events:    deps.Events,
		log:       logger.OrNop(deps.Logger),
		currency:  currency,
		returnURL: deps.ReturnURL,
		now:       time.Now,
	}
}

func (s *Service) returnURLFor(orderID uint) string {
	if strings.Contains(s.returnURL, "%d") {
		return fmt.Sprintf(s.returnURL, orderID)
	}
	return s.returnURL
}

// NormalizeSKU 统一 SKU 写法（去空白、大写）。
func NormalizeSKU(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
