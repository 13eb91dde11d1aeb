package model

import "time"

// Season 赛季：部分商品只能在进行中的赛季购买。
type Season struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string    `gorm:"size:128;not null" json:"name"`
	StartsAt time.Time `gorm:"not null" json:"starts_at"`
	EndsAt   time.Time `gorm:"not null" json:"ends_at"`
	IsActive bool      `gorm:"not null;default:false;index" json:"is_active"`
}

func (Season) TableName() string { return "seasons" }

// RunningAt 赛季已启用且 t 落在时间窗内。
func (s Season) RunningAt(t time.Time) bool {
	return s.IsActive && !t.Before(s.StartsAt) && !t.After(s.EndsAt)
}
