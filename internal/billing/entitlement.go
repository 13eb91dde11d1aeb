package billing

import (
	"fmt"

	"gorm.io/gorm"

	"season_pass/internal/model"
)

// IssueBattlepass 发放一张独立季票，uses 取自订单快照。
// 必须在订单 PENDING→PAID 的同一事务里调用。
func IssueBattlepass(tx *gorm.DB, userID uint, uses int, orderID uint) (model.Battlepass, error) {
	if userID == 0 {
		return model.Battlepass{}, fmt.Errorf("%w: battlepass owner is required", ErrValidation)
	}
	if uses <= 0 {
		return model.Battlepass{}, fmt.Errorf("%w: battlepass uses must be > 0", ErrValidation)
	}
	bp := model.Battlepass{
		UserID:    userID,
		UsesTotal: uses,
		UsesLeft:  uses,
		Status:    model.BattlepassActive,
	}
	if orderID != 0 {
		id := orderID
		bp.OrderID = &id
	}
	if err := tx.Create(&bp).Error; err != nil {
		return model.Battlepass{}, fmt.Errorf("issue battlepass: %w", err)
	}
	return bp, nil
}
