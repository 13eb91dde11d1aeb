// Package access 集中管理角色能力判断，取代散落在各 handler 里的角色分支。
package access

import "season_pass/internal/model"

// Actor 当前请求的操作者。
type Actor struct {
	UserID uint
	Role   model.Role
}

type Action string

const (
	// PurchaseForOther 代他人购买（赠送季票）
	PurchaseForOther   Action = "purchase_for_other"
	ViewAnyOrder       Action = "view_any_order"
	CheckPaymentStatus Action = "check_payment_status"
	CancelOrder        Action = "cancel_order"
	ManageCatalog      Action = "manage_catalog"
)

var rank = map[model.Role]int{
	model.RolePlayer:     1,
	model.RoleMaster:     2,
	model.RoleModerator:  3,
	model.RoleAdmin:      4,
	model.RoleSuperAdmin: 5,
}

// minRole 每个动作需要的最低角色。
var minRole = map[Action]model.Role{
	PurchaseForOther:   model.RoleAdmin,
	ViewAnyOrder:       model.RoleModerator,
	CheckPaymentStatus: model.RolePlayer,
	CancelOrder:        model.RoleAdmin,
	ManageCatalog:      model.RoleAdmin,
}

// Can 判断 actor 能否执行 action；未知角色或动作一律拒绝。
func Can(actor Actor, action Action) bool {
	if actor.UserID == 0 {
		return false
	}
	have, ok := rank[actor.Role]
	if !ok {
		return false
	}
	need, ok := minRole[action]
	if !ok {
		return false
	}
	return have >= rank[need]
}

// IsKnownRole 校验角色字符串。
func IsKnownRole(role model.Role) bool {
	_, ok := rank[role]
	return ok
}
