package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"season_pass/internal/access"
	"season_pass/internal/database/dbtest"
	"season_pass/internal/model"
	"season_pass/internal/payment/paymenttest"
	"season_pass/internal/queue"
)

type eventSinkStub struct {
	mu   sync.Mutex
	msgs []queue.OrderPaidMessage
	err  error
}

func (s *eventSinkStub) Append(_ context.Context, msg queue.OrderPaidMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *eventSinkStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	provider *paymenttest.Server
	events   *eventSinkStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	provider := paymenttest.NewServer()
	t.Cleanup(provider.Close)
	events := &eventSinkStub{}

	svc := NewService(Dependencies{
		DB:        db,
		Provider:  provider.Client(),
		Events:    events,
		Currency:  "RUB",
		ReturnURL: "http://app.local/orders/%d/success",
	})
	return &fixture{svc: svc, db: db, provider: provider, events: events}
}

func (f *fixture) user(t *testing.T, email string, role model.Role) access.Actor {
	t.Helper()
	u := model.User{Name: email, Email: email, Role: role}
	if err := f.db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return access.Actor{UserID: u.ID, Role: role}
}

func (f *fixture) product(t *testing.T, sku string, price int64, uses int, requiresSeason bool) model.Product {
	t.Helper()
	p := model.Product{
		SKU:            sku,
		Title:          "Pass " + sku,
		Price:          price,
		BPQuantity:     uses,
		IsActive:       true,
		IsVisible:      true,
		RequiresSeason: requiresSeason,
	}
	if err := f.db.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func (f *fixture) activeSeason(t *testing.T) model.Season {
	t.Helper()
	now := time.Now().UTC()
	s := model.Season{Name: "Season 4", StartsAt: now.Add(-24 * time.Hour), EndsAt: now.Add(30 * 24 * time.Hour), IsActive: true}
	if err := f.db.Create(&s).Error; err != nil {
		t.Fatalf("seed season: %v", err)
	}
	return s
}

func (f *fixture) battlepasses(t *testing.T, userID uint) []model.Battlepass {
	t.Helper()
	var out []model.Battlepass
	if err := f.db.Where("user_id = ?", userID).Find(&out).Error; err != nil {
		t.Fatalf("load battlepasses: %v", err)
	}
	return out
}

func (f *fixture) order(t *testing.T, id uint) model.Order {
	t.Helper()
	var o model.Order
	if err := f.db.Preload("Items").First(&o, id).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return o
}
