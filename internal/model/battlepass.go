package model

import "time"

type BattlepassStatus string

const (
	BattlepassActive  BattlepassStatus = "ACTIVE"
	BattlepassExpired BattlepassStatus = "EXPIRED"
	BattlepassUsedUp  BattlepassStatus = "USED_UP"
)

// Battlepass 季票：一次购买对应一张，不与已有季票合并。
type Battlepass struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint `gorm:"not null;index" json:"user_id"`
	// OrderID 唯一索引：同一订单最多发一张季票。
	OrderID   *uint            `gorm:"uniqueIndex" json:"order_id,omitempty"`
	UsesTotal int              `gorm:"not null" json:"uses_total"`
	UsesLeft  int              `gorm:"not null" json:"uses_left"`
	Status    BattlepassStatus `gorm:"size:16;not null;default:ACTIVE;index" json:"status"`
}

func (Battlepass) TableName() string { return "battlepasses" }
