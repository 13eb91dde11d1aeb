package model

import "time"

// OrderItem 下单时的商品快照，之后商品改价、改次数都不影响历史订单。
type OrderItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderID               uint   `gorm:"not null;index" json:"order_id"`
	ProductID             uint   `gorm:"not null;index" json:"product_id"`
	SKU                   string `gorm:"size:64;not null" json:"sku"`
	TitleAtPurchase       string `gorm:"size:128;not null" json:"title_at_purchase"`
	PriceAtPurchase       int64  `gorm:"not null" json:"price_at_purchase"`
	BPUsesTotalAtPurchase int    `gorm:"not null" json:"bp_uses_total_at_purchase"`
	Quantity              int    `gorm:"not null;default:1" json:"quantity"`
}

func (OrderItem) TableName() string { return "order_items" }
