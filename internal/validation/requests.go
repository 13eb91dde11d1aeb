package validation

import "time"

// CheckoutRequest 是 POST /api/checkout 的请求体（JSON 或表单）。
type CheckoutRequest struct {
	SKU          string `json:"sku" form:"sku" validate:"required,sku"`
	TargetUserID uint   `json:"target_user_id" form:"target_user_id" validate:"omitempty,gt=0"`
}

// PaymentStatusRequest 是 POST /api/payments/status 的请求体。
type PaymentStatusRequest struct {
	PaymentID string `json:"payment_id" validate:"required,max=64"`
}

// WebhookObject 网关通知里的支付对象，只取 id，其余字段不信任。
type WebhookObject struct {
	ID     string `json:"id" validate:"required,max=64"`
	Status string `json:"status"`
}

// WebhookNotification 网关回调。
type WebhookNotification struct {
	Type   string        `json:"type"`
	Event  string        `json:"event" validate:"required"`
	Object WebhookObject `json:"object"`
}

type ProductRequest struct {
	SKU            string `json:"sku" validate:"required,sku"`
	Title          string `json:"title" validate:"required,max=255"`
	Description    string `json:"description" validate:"max=1024"`
	Price          int64  `json:"price" validate:"required,gt=0"`
	BPQuantity     int    `json:"bp_quantity" validate:"required,gt=0"`
	IsActive       *bool  `json:"is_active"`
	IsVisible      *bool  `json:"is_visible"`
	RequiresSeason bool   `json:"requires_season"`
}

// ProductPatchRequest 只修改出现的字段。
type ProductPatchRequest struct {
	Title          *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description    *string `json:"description" validate:"omitempty,max=1024"`
	Price          *int64  `json:"price" validate:"omitempty,gt=0"`
	BPQuantity     *int    `json:"bp_quantity" validate:"omitempty,gt=0"`
	IsActive       *bool   `json:"is_active"`
	IsVisible      *bool   `json:"is_visible"`
	RequiresSeason *bool   `json:"requires_season"`
}

type SeasonRequest struct {
	Name     string    `json:"name" validate:"required,max=128"`
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
	IsActive *bool     `json:"is_active"`
}
