package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"season_pass/internal/access"
	"season_pass/internal/database"
	"season_pass/internal/model"
)

type ProductInput struct {
	SKU            string
	Title          string
	Description    string
	Price          int64
	BPQuantity     int
	IsActive       bool
	IsVisible      bool
	RequiresSeason bool
}

// ProductPatch 只更新非 nil 字段。
type ProductPatch struct {
	Title          *string
	Description    *string
	Price          *int64
	BPQuantity     *int
	IsActive       *bool
	IsVisible      *bool
	RequiresSeason *bool
}

type SeasonInput struct {
	Name     string
	StartsAt time.Time
	EndsAt   time.Time
	IsActive bool
}

// CreateProduct 新建商品。
func (s *Service) CreateProduct(ctx context.Context, actor access.Actor, in ProductInput) (model.Product, error) {
	if !access.Can(actor, access.ManageCatalog) {
		return model.Product{}, ErrForbidden
	}
	sku := NormalizeSKU(in.SKU)
	if sku == "" || strings.TrimSpace(in.Title) == "" {
		return model.Product{}, fmt.Errorf("%w: sku and title are required", ErrValidation)
	}
	if in.Price <= 0 || in.BPQuantity <= 0 {
		return model.Product{}, fmt.Errorf("%w: price and bp_quantity must be > 0", ErrValidation)
	}

	p := model.Product{
		SKU:            sku,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Price:          in.Price,
		BPQuantity:     in.BPQuantity,
		IsActive:       in.IsActive,
		IsVisible:      in.IsVisible,
		RequiresSeason: in.RequiresSeason,
	}
	// gorm 对 bool 零值会用列默认值，这里显式指定列
	err := s.db.WithContext(ctx).
		Select("CreatedAt", "UpdatedAt", "SKU", "Title", "Description", "Price", "BPQuantity", "IsActive", "IsVisible", "RequiresSeason").
		Create(&p).Error
	if err != nil {
		if database.IsUniqueViolation(err) {
			return model.Product{}, fmt.Errorf("%w: sku %s already exists", ErrConflict, sku)
		}
		return model.Product{}, err
	}
	return p, nil
}

// UpdateProduct 修改商品条款；历史订单的快照不受影响。
func (s *Service) UpdateProduct(ctx context.Context, actor access.Actor, sku string, patch ProductPatch) (model.Product, error) {
	if !access.Can(actor, access.ManageCatalog) {
		return model.Product{}, ErrForbidden
	}
	db := s.db.WithContext(ctx)

	var p model.Product
	if err := db.Where("sku = ?", NormalizeSKU(sku)).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Product{}, ErrProductNotFound
		}
		return model.Product{}, err
	}

	updates := map[string]any{}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return model.Product{}, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		updates["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Price != nil {
		if *patch.Price <= 0 {
			return model.Product{}, fmt.Errorf("%w: price must be > 0", ErrValidation)
		}
		updates["price"] = *patch.Price
	}
	if patch.BPQuantity != nil {
		if *patch.BPQuantity <= 0 {
			return model.Product{}, fmt.Errorf("%w: bp_quantity must be > 0", ErrValidation)
		}
		updates["bp_quantity"] = *patch.BPQuantity
	}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if patch.IsVisible != nil {
		updates["is_visible"] = *patch.IsVisible
	}
	if patch.RequiresSeason != nil {
		updates["requires_season"] = *patch.RequiresSeason
	}
	if len(updates) == 0 {
		return p, nil
	}

	if err := db.Model(&p).Updates(updates).Error; err != nil {
		return model.Product{}, err
	}
	if err := db.First(&p, p.ID).Error; err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// CreateSeason 新建赛季。
func (s *Service) CreateSeason(ctx context.Context, actor access.Actor, in SeasonInput) (model.Season, error) {
	if !access.Can(actor, access.ManageCatalog) {
		return model.Season{}, ErrForbidden
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.Season{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !in.EndsAt.After(in.StartsAt) {
		return model.Season{}, fmt.Errorf("%w: ends_at must be after starts_at", ErrValidation)
	}

	season := model.Season{
		Name:     strings.TrimSpace(in.Name),
		StartsAt: in.StartsAt.UTC(),
		EndsAt:   in.EndsAt.UTC(),
		IsActive: in.IsActive,
	}
	err := s.db.WithContext(ctx).
		Select("CreatedAt", "UpdatedAt", "Name", "StartsAt", "EndsAt", "IsActive").
		Create(&season).Error
	if err != nil {
		return model.Season{}, err
	}
	return season, nil
}
