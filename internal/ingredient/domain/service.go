package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	BranchID     string           `json:"branch_id"`
	Name         string           `json:"name"`
	Unit         string           `json:"unit"`
	InitialQty   *decimal.Decimal `json:"initial_qty"`
	UnitsPerPack *int             `json:"units_per_pack"`
	PacksPerBox  *int             `json:"packs_per_box"`
	ReorderLevel *decimal.Decimal `json:"reorder_level"`
}

type UpdateRequest struct {
	ID           string           `json:"-"`
	Name         *string          `json:"name,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
	UnitsPerPack *int             `json:"units_per_pack,omitempty"`
	PacksPerBox  *int             `json:"packs_per_box,omitempty"`
	ReorderLevel *decimal.Decimal `json:"reorder_level,omitempty"`
}

type ListRequest struct {
	BranchID string `json:"branch_id"`
	Name     string `json:"name"`
}

// ListItem is an Ingredient enriched with the low-stock marker.
type ListItem struct {
	Ingredient
	LowStock bool `json:"low_stock"`
}

type ListResponse struct {
	Ingredients []ListItem `json:"ingredients"`
}

type Service interface {
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	GetByID(ctx context.Context, id string) (*Ingredient, error)
	Create(ctx context.Context, req CreateRequest) (*Ingredient, error)
	Update(ctx context.Context, req UpdateRequest) (*Ingredient, error)
}

var (
	ErrNotFound       = errors.New("ingredient_not_found")
	ErrInvalidID      = errors.New("invalid_ingredient_id")
	ErrInvalidBranch  = errors.New("invalid_branch_id")
	ErrInvalidName    = errors.New("invalid_ingredient_name")
	ErrInvalidUnit    = errors.New("invalid_ingredient_unit")
	ErrDuplicateName  = errors.New("duplicate_ingredient_name")
	ErrInvalidPacking = errors.New("invalid_packaging_factor")
)
