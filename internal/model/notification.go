package model

import "time"

// Notification 站内通知，由订单事件消费者写入。
type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID uint   `gorm:"not null;index" json:"user_id"`
	Kind   string `gorm:"size:32;not null" json:"kind"`
	Title  string `gorm:"size:255;not null" json:"title"`
	Body   string `gorm:"size:1024" json:"body"`
	// EventID 事件幂等键，重复投递直接撞唯一索引。
	EventID string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ReadAt  *time.Time `json:"read_at,omitempty"`
}

func (Notification) TableName() string { return "notifications" }
