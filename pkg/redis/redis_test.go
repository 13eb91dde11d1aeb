package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *rd.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSlidingWindowLimitsWithinWindow(t *testing.T) {
	_, rdb := newTestClient(t)
	w := NewSlidingWindow(rdb)
	base := time.Unix(1_700_000_000, 0)
	tick := 0
	w.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	ctx := context.Background()
	key := RateLimitKey("checkout", "user:1")

	for i := 0; i < 3; i++ {
		ok, err := w.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := w.Allow(ctx, key, 3, time.Minute)
	if err != nil || ok {
		t.Fatalf("4th request should be limited: ok=%v err=%v", ok, err)
	}

	// 其他用户不受影响
	ok, err = w.Allow(ctx, RateLimitKey("checkout", "user:2"), 3, time.Minute)
	if err != nil || !ok {
		t.Fatalf("other subject: ok=%v err=%v", ok, err)
	}

	// 窗口滑过后放行
	w.now = func() time.Time { return base.Add(2 * time.Minute) }
	ok, err = w.Allow(ctx, key, 3, time.Minute)
	if err != nil || !ok {
		t.Fatalf("after window: ok=%v err=%v", ok, err)
	}
}

func TestSlidingWindowReportsStoreErrors(t *testing.T) {
	mr, rdb := newTestClient(t)
	w := NewSlidingWindow(rdb)
	mr.Close()

	if _, err := w.Allow(context.Background(), "k", 1, time.Second); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestPaymentLock(t *testing.T) {
	mr, rdb := newTestClient(t)
	lock := NewPaymentLock(rdb, 10*time.Second)
	ctx := context.Background()

	token, ok, err := lock.Acquire(ctx, "pay-1")
	if err != nil || !ok || token == "" {
		t.Fatalf("first acquire: token=%q ok=%v err=%v", token, ok, err)
	}
	if _, ok, err := lock.Acquire(ctx, "pay-1"); err != nil || ok {
		t.Fatalf("second acquire must fail: ok=%v err=%v", ok, err)
	}
	if _, ok, err := lock.Acquire(ctx, "pay-2"); err != nil || !ok {
		t.Fatalf("other payment: ok=%v err=%v", ok, err)
	}

	// 错误 token 不能释放
	if err := lock.Release(ctx, "pay-1", "someone-else"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !mr.Exists(PaymentLockKey("pay-1")) {
		t.Fatal("lock released by wrong token")
	}
	if err := lock.Release(ctx, "pay-1", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(PaymentLockKey("pay-1")) {
		t.Fatal("lock still held")
	}

	// 过期后可再次获取
	if _, ok, _ := lock.Acquire(ctx, "pay-3"); !ok {
		t.Fatal("acquire pay-3")
	}
	mr.FastForward(11 * time.Second)
	if _, ok, err := lock.Acquire(ctx, "pay-3"); err != nil || !ok {
		t.Fatalf("acquire after ttl: ok=%v err=%v", ok, err)
	}
}
