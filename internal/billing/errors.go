package billing

import (
	"errors"
	"fmt"

	"season_pass/internal/payment"
)

// 错误分类，router 按类别映射 HTTP 状态码。
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

var (
	ErrProductNotFound        = fmt.Errorf("product %w", ErrNotFound)
	ErrUserNotFound           = fmt.Errorf("user %w", ErrNotFound)
	ErrOrderNotFound          = fmt.Errorf("order %w", ErrNotFound)
	ErrPurchaseForOtherDenied = fmt.Errorf("%w: purchasing for another user requires an elevated role", ErrForbidden)
	ErrNoActiveSeason         = fmt.Errorf("%w: no active season", ErrConflict)
	ErrOrderNotPending        = fmt.Errorf("%w: order already processed", ErrConflict)
	ErrAmountMismatch         = fmt.Errorf("%w: paid amount differs from order total", ErrConflict)
)

// GatewayError 支付网关调用失败，保留原始响应体便于排查。
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment gateway %s failed with %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func newGatewayError(op string, err error) *GatewayError {
	ge := &GatewayError{Op: op, Err: err}
	var apiErr *payment.APIError
	if errors.As(err, &apiErr) {
		ge.StatusCode = apiErr.StatusCode
		ge.Body = apiErr.Body
	}
	return ge
}
