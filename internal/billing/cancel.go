package billing

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"season_pass/internal/access"
	"season_pass/internal/model"
)

// CancelOrder 人工取消未支付订单，同样走条件更新。
func (s *Service) CancelOrder(ctx context.Context, actor access.Actor, orderID uint) (model.Order, error) {
	if !access.Can(actor, access.CancelOrder) {
		return model.Order{}, ErrForbidden
	}
	db := s.db.WithContext(ctx)

	upd := db.Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderPending).
		Update("status", model.OrderCancelled)
	if upd.Error != nil {
		return model.Order{}, upd.Error
	}

	var order model.Order
	if err := db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, err
	}
	if upd.RowsAffected == 0 {
		return order, ErrOrderNotPending
	}

	s.log.Info("order cancelled", zap.Uint("order_id", order.ID), zap.Uint("actor_id", actor.UserID))
	return order, nil
}
