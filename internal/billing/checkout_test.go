package billing

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"season_pass/internal/model"
)

func TestCheckoutCreatesPendingOrderWithSnapshot(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t, "player@example.com", model.RolePlayer)
	f.activeSeason(t)
	f.product(t, "SEASON4", 1000, 4, true)

	res, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{SKU: " season4 "})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.PaymentID == "" || res.ConfirmationURL == "" {
		t.Fatalf("missing payment data: %+v", res)
	}

	o := f.order(t, res.OrderID)
	if o.Status != model.OrderPending || o.PaidAt != nil {
		t.Fatalf("expected pending unpaid order, got %s", o.Status)
	}
	if o.PaymentID == nil || *o.PaymentID != res.PaymentID {
		t.Fatalf("payment id not stored on order")
	}
	if o.TotalAmount != 1000 || o.UserID != buyer.UserID || o.PurchasedForID != nil {
		t.Fatalf("unexpected order %+v", o)
	}
	if len(o.Items) != 1 {
		t.Fatalf("expected exactly one order item, got %d", len(o.Items))
	}
	item := o.Items[0]
	if item.SKU != "SEASON4" || item.BPUsesTotalAtPurchase != 4 || item.PriceAtPurchase != 1000 {
		t.Fatalf("unexpected snapshot %+v", item)
	}

	creates := f.provider.Creates()
	if len(creates) != 1 {
		t.Fatalf("expected one provider call, got %d", len(creates))
	}
	if creates[0].Amount.Value != "10.00" || creates[0].IdempotenceKey != o.IdempotenceKey {
		t.Fatalf("unexpected provider request %+v", creates[0])
	}
	if creates[0].Metadata["sku"] != "SEASON4" || creates[0].Metadata["order_id"] == "" {
		t.Fatalf("metadata missing: %+v", creates[0].Metadata)
	}
	if creates[0].ReturnURL == "" {
		t.Fatal("return url must be set")
	}
}

func TestCheckoutRejectsUnavailableProducts(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t, "p@example.com", model.RolePlayer)

	inactive := f.product(t, "OLD", 500, 2, false)
	hidden := f.product(t, "HIDDEN", 500, 2, false)
	f.product(t, "LIVE", 500, 2, false)
	if err := f.db.Model(&inactive).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.db.Model(&hidden).Update("is_visible", false).Error; err != nil {
		t.Fatalf("hide: %v", err)
	}

	for _, sku := range []string{"OLD", "HIDDEN", "MISSING"} {
		_, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{SKU: sku})
		if !errors.Is(err, ErrProductNotFound) || !errors.Is(err, ErrNotFound) {
			t.Fatalf("sku %s: expected not found, got %v", sku, err)
		}
	}

	var n int64
	f.db.Model(&model.Order{}).Count(&n)
	if n != 0 {
		t.Fatalf("no order must be created for unavailable products, got %d", n)
	}
	if len(f.provider.Creates()) != 0 {
		t.Fatal("provider must not be called")
	}
}

func TestCheckoutValidatesSKU(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t, "p@example.com", model.RolePlayer)

	_, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{SKU: "   "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckoutForAnotherUserNeedsElevatedRole(t *testing.T) {
	f := newFixture(t)
	player := f.user(t, "player@example.com", model.RolePlayer)
	master := f.user(t, "master@example.com", model.RoleMaster)
	friend := f.user(t, "friend@example.com", model.RolePlayer)

	// 商品不存在也必须先报权限错误
	for _, actor := range []struct {
		name string
		sku  string
	}{{"valid sku", "SEASON4"}, {"unknown sku", "NOPE"}} {
		_, err := f.svc.Checkout(context.Background(), player, CheckoutInput{SKU: actor.sku, TargetUserID: friend.UserID})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s: expected forbidden, got %v", actor.name, err)
		}
	}
	_, err := f.svc.Checkout(context.Background(), master, CheckoutInput{SKU: "SEASON4", TargetUserID: friend.UserID})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("master: expected forbidden, got %v", err)
	}

	// 给自己买不算代购
	f.product(t, "SEASON4", 1000, 4, false)
	if _, err := f.svc.Checkout(context.Background(), player, CheckoutInput{SKU: "SEASON4", TargetUserID: player.UserID}); err != nil {
		t.Fatalf("self purchase with explicit target: %v", err)
	}
}

func TestAdminGiftIssuesBattlepassToTarget(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "admin@example.com", model.RoleAdmin)
	friend := f.user(t, "friend@example.com", model.RolePlayer)
	f.product(t, "GIFT3", 900, 3, false)

	res, err := f.svc.Checkout(context.Background(), admin, CheckoutInput{SKU: "GIFT3", TargetUserID: friend.UserID})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	o := f.order(t, res.OrderID)
	if o.PurchasedForID == nil || *o.PurchasedForID != friend.UserID || o.UserID != admin.UserID {
		t.Fatalf("unexpected gift order %+v", o)
	}
	if f.provider.Creates()[0].Metadata["user_id"] == f.provider.Creates()[0].Metadata["buyer_id"] {
		t.Fatal("metadata user_id must point at the gift target")
	}

	f.provider.SetStatus(res.PaymentID, "succeeded")
	if _, err := f.svc.ReconcilePayment(context.Background(), res.PaymentID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got := f.battlepasses(t, friend.UserID); len(got) != 1 || got[0].UsesTotal != 3 {
		t.Fatalf("gift target battlepasses = %+v", got)
	}
	if got := f.battlepasses(t, admin.UserID); len(got) != 0 {
		t.Fatalf("buyer must not receive the gift, got %+v", got)
	}
}

func TestCheckoutGiftToUnknownUser(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "admin@example.com", model.RoleSuperAdmin)
	f.product(t, "GIFT3", 900, 3, false)

	_, err := f.svc.Checkout(context.Background(), admin, CheckoutInput{SKU: "GIFT3", TargetUserID: 9999})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestCheckoutRequiresRunningSeason(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t, "p@example.com", model.RolePlayer)
	f.product(t, "SEASON4", 1000, 4, true)

	_, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{SKU: "SEASON4"})
	if !errors.Is(err, ErrNoActiveSeason) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected no active season conflict, got %v", err)
	}

	// 已结束的赛季不算
	now := time.Now().UTC()
	ended := model.Season{Name: "S3", StartsAt: now.Add(-60 * 24 * time.Hour), EndsAt: now.Add(-24 * time.Hour), IsActive: true}
	if err := f.db.Create(&ended).Error; err != nil {
		t.Fatalf("seed season: %v", err)
	}
	if _, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{SKU: "SEASON4"}); !errors.Is(err, ErrNoActiveSeason) {
		t.Fatalf("ended season must not count, got %v", err)
	}

	f.activeSeason(t)
	if _, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{SKU: "SEASON4"}); err != nil {
		t.Fatalf("checkout with active season: %v", err)
	}
}

func TestCheckoutGatewayFailureKeepsPendingOrder(t *testing.T) {
	f := newFixture(t)
	buyer := f.user(t, "p@example.com", model.RolePlayer)
	f.product(t, "SEASON4", 1000, 4, false)
	f.provider.FailCreate(http.StatusInternalServerError, `{"type":"error","code":"internal_server_error"}`)

	_, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{SKU: "SEASON4"})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if gwErr.StatusCode != http.StatusInternalServerError || gwErr.Body == "" {
		t.Fatalf("gateway error must carry provider response, got %+v", gwErr)
	}

	var orders []model.Order
	if err := f.db.Find(&orders).Error; err != nil {
		t.Fatalf("load orders: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != model.OrderPending || orders[0].PaymentID != nil {
		t.Fatalf("expected one pending order without payment id, got %+v", orders)
	}
}
