package redis

import "fmt"

// RateLimitKey 限流窗口键：scope 区分接口组，subject 为用户或 IP。
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("season_pass:rate_limit:%s:%s", scope, subject)
}

// PaymentLockKey 同一支付单的 webhook 处理锁。
func PaymentLockKey(paymentID string) string {
	return fmt.Sprintf("season_pass:payment:lock:%s", paymentID)
}
