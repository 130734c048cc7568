package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type RecordRequest struct {
	IngredientID string           `json:"ingredient_id"`
	Kind         MovementKind     `json:"kind"`
	Qty          decimal.Decimal  `json:"qty"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	SupplierName string           `json:"supplier_name"`
	Reference    string           `json:"reference"`
	Metadata     map[string]any   `json:"metadata"`
	OccurredAt   *time.Time       `json:"occurred_at"`
}

type UpdateRequest struct {
	ID        string           `json:"-"`
	Qty       *decimal.Decimal `json:"qty,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Reference *string          `json:"reference,omitempty"`
}

type ListRequest struct {
	IngredientID string       `json:"ingredient_id"`
	Kind         MovementKind `json:"kind"`
	From         *time.Time   `json:"from"`
	To           *time.Time   `json:"to"`
	Limit        int          `json:"limit"`
}

type ListResponse struct {
	Movements []StockMovement `json:"movements"`
}

// Service is the stock ledger: every mutation of an ingredient's cached
// quantity through the movement pathway goes through it.
type Service interface {
	Record(ctx context.Context, req RecordRequest) (*StockMovement, error)
	Update(ctx context.Context, req UpdateRequest) (*StockMovement, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*StockMovement, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrNotFound        = errors.New("movement_not_found")
	ErrInvalidID       = errors.New("invalid_movement_id")
	ErrInvalidKind     = errors.New("invalid_movement_kind")
	ErrInvalidQuantity = errors.New("invalid_movement_qty")
)
