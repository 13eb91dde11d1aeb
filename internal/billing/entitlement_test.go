package billing

import (
	"errors"
	"testing"

	"season_pass/internal/database"
	"season_pass/internal/model"
)

func TestIssueBattlepassRejectsSecondPassForOrder(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "p@example.com", model.RolePlayer)

	if _, err := IssueBattlepass(f.db, u.UserID, 0, 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := IssueBattlepass(f.db, 0, 3, 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	bp, err := IssueBattlepass(f.db, u.UserID, 3, 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if bp.UsesLeft != 3 || bp.Status != model.BattlepassActive {
		t.Fatalf("unexpected battlepass %+v", bp)
	}

	// order_id 唯一索引兜底
	if _, err := IssueBattlepass(f.db, u.UserID, 3, 7); !database.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// 无订单来源的季票不受限制
	for i := 0; i < 2; i++ {
		if _, err := IssueBattlepass(f.db, u.UserID, 1, 0); err != nil {
			t.Fatalf("manual grant %d: %v", i, err)
		}
	}
}
