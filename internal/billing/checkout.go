package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"season_pass/internal/access"
	"season_pass/internal/model"
	"season_pass/internal/payment"
)

type CheckoutInput struct {
	SKU string
	// TargetUserID 非零且不是自己时为代购。
	TargetUserID uint
}

type CheckoutResult struct {
	OrderID         uint              `json:"order_id"`
	PaymentID       string            `json:"payment_id"`
	ConfirmationURL string            `json:"confirmation_url"`
	Status          model.OrderStatus `json:"status"`
}

// Checkout 下单：校验商品与权限 → 落 PENDING 订单与快照 → 向网关创建支付。
// 网关失败时订单保持 PENDING，之后仍可对账。
func (s *Service) Checkout(ctx context.Context, actor access.Actor, in CheckoutInput) (CheckoutResult, error) {
	if actor.UserID == 0 {
		return CheckoutResult{}, fmt.Errorf("%w: buyer is required", ErrValidation)
	}
	sku := NormalizeSKU(in.SKU)
	if sku == "" {
		return CheckoutResult{}, fmt.Errorf("%w: sku is required", ErrValidation)
	}

	db := s.db.WithContext(ctx)

	// 1. 代购权限先于商品校验
	var target *uint
	if in.TargetUserID != 0 && in.TargetUserID != actor.UserID {
		if !access.Can(actor, access.PurchaseForOther) {
			return CheckoutResult{}, ErrPurchaseForOtherDenied
		}
		var u model.User
		if err := db.Select("id").First(&u, in.TargetUserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return CheckoutResult{}, ErrUserNotFound
			}
			return CheckoutResult{}, err
		}
		id := u.ID
		target = &id
	}

	// 2. 商品必须上架且可见，不做任何替代
	var prod model.Product
	err := db.Where("sku = ? AND is_active = ? AND is_visible = ?", sku, true, true).First(&prod).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CheckoutResult{}, ErrProductNotFound
		}
		return CheckoutResult{}, err
	}
	if prod.Price <= 0 || prod.BPQuantity <= 0 {
		return CheckoutResult{}, fmt.Errorf("%w: product %s is misconfigured", ErrConflict, sku)
	}

	// 3. 赛季限定商品需要进行中的赛季
	if prod.RequiresSeason {
		ok, err := s.hasActiveSeason(ctx)
		if err != nil {
			return CheckoutResult{}, err
		}
		if !ok {
			return CheckoutResult{}, ErrNoActiveSeason
		}
	}

	// 4. 订单 + 快照同事务落库
	order := model.Order{
		UserID:         actor.UserID,
		PurchasedForID: target,
		Status:         model.OrderPending,
		TotalAmount:    prod.Price,
		Currency:       s.currency,
		IdempotenceKey: uuid.NewString(),
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		item := model.OrderItem{
			OrderID:               order.ID,
			ProductID:             prod.ID,
			SKU:                   prod.SKU,
			TitleAtPurchase:       prod.Title,
			PriceAtPurchase:       prod.Price,
			BPUsesTotalAtPurchase: prod.BPQuantity,
			Quantity:              1,
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create order: %w", err)
	}

	// 5. 网关创建支付
	p, err := s.provider.CreatePayment(ctx, payment.CreatePaymentInput{
		AmountMinor:    order.TotalAmount,
		Currency:       order.Currency,
		ReturnURL:      s.returnURLFor(order.ID),
		Description:    fmt.Sprintf("%s, order #%d", prod.Title, order.ID),
		IdempotenceKey: order.IdempotenceKey,
		Metadata: map[string]string{
			"order_id": strconv.FormatUint(uint64(order.ID), 10),
			"user_id":  strconv.FormatUint(uint64(order.Beneficiary()), 10),
			"buyer_id": strconv.FormatUint(uint64(order.UserID), 10),
			"sku":      prod.SKU,
		},
	})
	if err != nil {
		s.log.Warn("create payment failed, order left pending",
			zap.Uint("order_id", order.ID), zap.String("sku", prod.SKU), zap.Error(err))
		return CheckoutResult{}, newGatewayError("create payment", err)
	}

	// 6. 回写支付单号
	if err := db.Model(&model.Order{}).Where("id = ?", order.ID).Update("payment_id", p.ID).Error; err != nil {
		return CheckoutResult{}, fmt.Errorf("store payment id: %w", err)
	}

	s.log.Info("checkout created",
		zap.Uint("order_id", order.ID),
		zap.Uint("buyer_id", order.UserID),
		zap.Uint("beneficiary_id", order.Beneficiary()),
		zap.String("sku", prod.SKU),
		zap.String("payment_id", p.ID))

	return CheckoutResult{
		OrderID:         order.ID,
		PaymentID:       p.ID,
		ConfirmationURL: p.ConfirmationURL(),
		Status:          order.Status,
	}, nil
}

// hasActiveSeason 启用中的赛季很少，取出后按时间窗判断。
func (s *Service) hasActiveSeason(ctx context.Context) (bool, error) {
	var seasons []model.Season
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&seasons).Error; err != nil {
		return false, err
	}
	now := s.now().UTC()
	for _, season := range seasons {
		if season.RunningAt(now) {
			return true, nil
		}
	}
	return false, nil
}
