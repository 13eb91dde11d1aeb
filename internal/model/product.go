package model

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品目录：价格、发放的季票次数、上架/可见开关、是否需要进行中的赛季。
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	SKU         string `gorm:"size:64;uniqueIndex;not null" json:"sku"`
	Title       string `gorm:"size:128;not null" json:"title"`
	Description string `gorm:"size:1024" json:"description"`
	Price       int64  `gorm:"not null" json:"price"` // 单位：分
	// BPQuantity 购买后发放的季票次数。
	BPQuantity     int  `gorm:"not null;default:1" json:"bp_quantity"`
	IsActive       bool `gorm:"not null;default:true" json:"is_active"`
	IsVisible      bool `gorm:"not null;default:true" json:"is_visible"`
	RequiresSeason bool `gorm:"not null;default:false" json:"requires_season"`
}

func (Product) TableName() string { return "products" }
