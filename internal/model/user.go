package model

import "time"

type Role string

const (
	RolePlayer     Role = "PLAYER"
	RoleMaster     Role = "MASTER"
	RoleModerator  Role = "MODERATOR"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string `gorm:"size:128;not null" json:"name"`
	Email string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role  Role   `gorm:"size:16;not null;default:PLAYER" json:"role"`
}

func (User) TableName() string { return "users" }
