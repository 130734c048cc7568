// Package domain contains persistence models for the stock ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MovementKind classifies a stock movement.
type MovementKind string

const (
	KindIn         MovementKind = "in"
	KindOut        MovementKind = "out"
	KindWaste      MovementKind = "waste"
	KindAdjustment MovementKind = "adjustment"
)

// Valid reports whether the kind is one of the known movement kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case KindIn, KindOut, KindWaste, KindAdjustment:
		return true
	default:
		return false
	}
}

// StockMovement is an immutable record of a signed quantity change for one
// ingredient. Updates and deletes exist only as explicit administrative
// corrections; each movement is the unit of audit.
type StockMovement struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	IngredientID snowflake.ID      `gorm:"not null;index" json:"ingredient_id"`
	Kind         MovementKind      `gorm:"type:text;not null" json:"kind"`
	Qty          decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitPrice    *decimal.Decimal  `gorm:"type:decimal(20,4)" json:"unit_price,omitempty"`
	SupplierName string            `gorm:"type:text" json:"supplier_name,omitempty"`
	Reference    string            `gorm:"type:text" json:"reference,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	OccurredAt   time.Time         `gorm:"not null;index" json:"occurred_at"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (StockMovement) TableName() string { return "stock_movements" }

// Effect returns the signed quantity change this movement applies to the
// ingredient's cached quantity: `in` is positive, `out` and `waste` are
// negative, `adjustment` carries its own sign.
func (m StockMovement) Effect() decimal.Decimal {
	switch m.Kind {
	case KindOut, KindWaste:
		return m.Qty.Neg()
	default:
		return m.Qty
	}
}

// ValidateQty enforces the sign-kind contract: `in`, `out` and `waste` take
// a positive quantity whose sign is implied by the kind; `adjustment` is
// free-signed but must not be zero.
func ValidateQty(kind MovementKind, qty decimal.Decimal) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	switch kind {
	case KindAdjustment:
		if qty.IsZero() {
			return ErrInvalidQuantity
		}
	default:
		if !qty.IsPositive() {
			return ErrInvalidQuantity
		}
	}
	return nil
}
