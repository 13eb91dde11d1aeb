package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"season_pass/internal/access"
	"season_pass/internal/model"
	"season_pass/internal/payment"
	"season_pass/internal/queue"
)

// ReconcileResult 对账结果：网关原始状态 + 本地处理标记。
type ReconcileResult struct {
	PaymentID        string            `json:"payment_id"`
	ProviderStatus   string            `json:"status"`
	OrderID          uint              `json:"order_id,omitempty"`
	OrderStatus      model.OrderStatus `json:"order_status,omitempty"`
	OrderFound       bool              `json:"order_found"`
	Processed        bool              `json:"processed"`
	AlreadyProcessed bool              `json:"already_processed"`
	BattlepassID     uint              `json:"battlepass_id,omitempty"`
}

// ReconcilePayment 按网关支付单号对账（轮询接口、webhook 共用）。
func (s *Service) ReconcilePayment(ctx context.Context, paymentID string) (ReconcileResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: payment_id is required", ErrValidation)
	}

	p, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		return ReconcileResult{}, newGatewayError("get payment", err)
	}
	if p.ID == "" {
		p.ID = paymentID
	}

	order, err := s.findOrderForPayment(ctx, p)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.log.Warn("reconcile: no local order for payment", zap.String("payment_id", p.ID), zap.String("status", p.Status))
			return ReconcileResult{PaymentID: p.ID, ProviderStatus: p.Status}, nil
		}
		return ReconcileResult{}, err
	}
	return s.apply(ctx, order, p)
}

// ReconcileOrder 按订单号对账（支付成功/失败页）。
// 已是终态的订单不再访问网关。
func (s *Service) ReconcileOrder(ctx context.Context, actor access.Actor, orderID uint) (ReconcileResult, error) {
	if orderID == 0 {
		return ReconcileResult{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	var order model.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReconcileResult{}, ErrOrderNotFound
		}
		return ReconcileResult{}, err
	}
	if !CanSeeOrder(actor, order) {
		return ReconcileResult{}, fmt.Errorf("%w: order belongs to another user", ErrForbidden)
	}

	res := ReconcileResult{
		OrderID:     order.ID,
		OrderStatus: order.Status,
		OrderFound:  true,
	}
	if order.PaymentID != nil {
		res.PaymentID = *order.PaymentID
	}

	switch order.Status {
	case model.OrderPaid:
		res.ProviderStatus = payment.StatusSucceeded
		res.AlreadyProcessed = true
		return res, nil
	case model.OrderCancelled:
		return res, nil
	}
	if order.PaymentID == nil {
		return res, nil
	}

	p, err := s.provider.GetPayment(ctx, *order.PaymentID)
	if err != nil {
		return ReconcileResult{}, newGatewayError("get payment", err)
	}
	if p.ID == "" {
		p.ID = *order.PaymentID
	}
	return s.apply(ctx, order, p)
}

// CanSeeOrder 付款人、季票归属人或有查看权限的角色可见。
func CanSeeOrder(actor access.Actor, order model.Order) bool {
	if actor.UserID != 0 && (actor.UserID == order.UserID || actor.UserID == order.Beneficiary()) {
		return true
	}
	return access.Can(actor, access.ViewAnyOrder)
}

// findOrderForPayment 先按支付单号找；回写支付单号前的窗口期再按 metadata.order_id 兜底。
func (s *Service) findOrderForPayment(ctx context.Context, p payment.Payment) (model.Order, error) {
	db := s.db.WithContext(ctx)

	var order model.Order
	err := db.Where("payment_id = ?", p.ID).First(&order).Error
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, err
	}

	rawID := strings.TrimSpace(p.Metadata["order_id"])
	if rawID == "" {
		return model.Order{}, ErrOrderNotFound
	}
	id, perr := strconv.ParseUint(rawID, 10, 64)
	if perr != nil || id == 0 {
		return model.Order{}, ErrOrderNotFound
	}
	err = db.First(&order, uint(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, err
	}
	// 订单已绑定其他支付单，不认这笔
	if order.PaymentID != nil && *order.PaymentID != p.ID {
		return model.Order{}, ErrOrderNotFound
	}
	return order, nil
}

// apply 状态迁移表：
//
//	PENDING   + succeeded → PAID，发季票
//	PAID      + succeeded → 幂等，不动
//	PENDING   + 其他      → 仅回报状态
//	CANCELLED + succeeded → 仅回报，记错误日志人工处理
func (s *Service) apply(ctx context.Context, order model.Order, p payment.Payment) (ReconcileResult, error) {
	res := ReconcileResult{
		PaymentID:      p.ID,
		ProviderStatus: p.Status,
		OrderID:        order.ID,
		OrderStatus:    order.Status,
		OrderFound:     true,
	}

	if p.Status != payment.StatusSucceeded {
		res.AlreadyProcessed = order.Status == model.OrderPaid
		return res, nil
	}

	switch order.Status {
	case model.OrderPaid:
		res.AlreadyProcessed = true
		return res, nil
	case model.OrderCancelled:
		s.log.Error("payment succeeded for cancelled order",
			zap.Uint("order_id", order.ID), zap.String("payment_id", p.ID))
		return res, nil
	}
	if !model.CanTransition(order.Status, model.OrderPaid) {
		return res, nil
	}

	paid, err := p.Amount.MinorUnits()
	if err != nil || paid != order.TotalAmount || !strings.EqualFold(p.Amount.Currency, order.Currency) {
		s.log.Error("paid amount mismatch",
			zap.Uint("order_id", order.ID),
			zap.String("payment_id", p.ID),
			zap.Int64("order_total", order.TotalAmount),
			zap.String("paid_value", p.Amount.Value),
			zap.String("paid_currency", p.Amount.Currency))
		return res, ErrAmountMismatch
	}

	out, err := s.fulfill(ctx, order, p.ID)
	if err != nil {
		return ReconcileResult{}, err
	}
	res.OrderStatus = out.status
	if !out.changed {
		// 并发对账时另一方已完成迁移
		res.AlreadyProcessed = out.status == model.OrderPaid
		return res, nil
	}

	res.Processed = true
	res.BattlepassID = out.battlepass.ID
	s.log.Info("order fulfilled",
		zap.Uint("order_id", order.ID),
		zap.String("payment_id", p.ID),
		zap.Uint("battlepass_id", out.battlepass.ID),
		zap.Uint("user_id", out.battlepass.UserID),
		zap.Int("uses_total", out.battlepass.UsesTotal))

	s.publishPaid(ctx, order, p.ID, out)
	return res, nil
}

type fulfillment struct {
	changed    bool
	status     model.OrderStatus
	battlepass model.Battlepass
	sku        string
	paidAt     time.Time
}

// fulfill 用条件更新完成 PENDING→PAID，受影响行数决定谁来发季票。
func (s *Service) fulfill(ctx context.Context, order model.Order, paymentID string) (fulfillment, error) {
	var out fulfillment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		upd := tx.Model(&model.Order{}).
			Where("id = ? AND status = ?", order.ID, model.OrderPending).
			Updates(map[string]any{
				"status":     model.OrderPaid,
				"paid_at":    now,
				"payment_id": paymentID,
			})
		if upd.Error != nil {
			return fmt.Errorf("mark order paid: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			var cur model.Order
			if err := tx.Select("id", "status").First(&cur, order.ID).Error; err != nil {
				return err
			}
			out.status = cur.Status
			return nil
		}

		var item model.OrderItem
		if err := tx.Where("order_id = ?", order.ID).First(&item).Error; err != nil {
			return fmt.Errorf("load order item snapshot: %w", err)
		}
		bp, err := IssueBattlepass(tx, order.Beneficiary(), item.BPUsesTotalAtPurchase, order.ID)
		if err != nil {
			return err
		}
		out = fulfillment{
			changed:    true,
			status:     model.OrderPaid,
			battlepass: bp,
			sku:        item.SKU,
			paidAt:     now,
		}
		return nil
	})
	if err != nil {
		return fulfillment{}, err
	}
	return out, nil
}

// publishPaid 事件尽力投递，失败只记日志；订单状态以 DB 为准。
func (s *Service) publishPaid(ctx context.Context, order model.Order, paymentID string, out fulfillment) {
	if s.events == nil {
		return
	}
	msg := queue.OrderPaidMessage{
		EventID:      uuid.NewString(),
		OrderID:      order.ID,
		BuyerID:      order.UserID,
		UserID:       out.battlepass.UserID,
		PaymentID:    paymentID,
		BattlepassID: out.battlepass.ID,
		UsesTotal:    out.battlepass.UsesTotal,
		SKU:          out.sku,
		PaidAt:       out.paidAt,
	}
	if err := s.events.Append(ctx, msg); err != nil {
		s.log.Warn("append order paid event failed", zap.Uint("order_id", order.ID), zap.Error(err))
	}
}
