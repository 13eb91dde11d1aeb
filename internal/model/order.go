package model

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus 订单状态：PENDING → PAID | CANCELLED，终态不可再变。
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
)

var orderNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderPaid: true, OrderCancelled: true},
	OrderPaid:      {},
	OrderCancelled: {},
}

// CanTransition 判断订单状态能否从 from 迁移到 to。
func CanTransition(from, to OrderStatus) bool {
	return orderNext[from][to]
}

// Order 季票购买订单。
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uint `gorm:"not null;index" json:"user_id"` // 付款人
	// PurchasedForID 非空表示代购（赠送），季票发给该用户。
	PurchasedForID *uint       `gorm:"index" json:"purchased_for_id,omitempty"`
	Status         OrderStatus `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	TotalAmount    int64       `gorm:"not null" json:"total_amount"` // 单位：分
	Currency       string      `gorm:"size:8;not null" json:"currency"`
	// PaymentID 支付网关的支付单号，创建支付成功后回写。
	PaymentID      *string    `gorm:"size:64;uniqueIndex" json:"payment_id,omitempty"`
	IdempotenceKey string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }

// Beneficiary 返回季票的实际归属用户。
func (o Order) Beneficiary() uint {
	if o.PurchasedForID != nil && *o.PurchasedForID != 0 {
		return *o.PurchasedForID
	}
	return o.UserID
}
