// Package domain contains persistence models for the ingredient catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Ingredient is a raw material tracked by quantity.
//
// CurrentQty is a cache of the reconciled quantity, not the source of truth
// for why it has its value; the stock movement ledger and closing snapshots
// are. It is adjusted incrementally by movements and invoice confirmations,
// and overwritten absolutely when a daily closing completes.
type Ingredient struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	BranchID     snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_ingredient_branch_name" json:"branch_id"`
	Name         string          `gorm:"type:text;not null;uniqueIndex:ux_ingredient_branch_name" json:"name"`
	Unit         string          `gorm:"type:text;not null" json:"unit"`
	CurrentQty   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"current_qty"`
	UnitsPerPack int             `gorm:"not null;default:0" json:"units_per_pack"`
	PacksPerBox  int             `gorm:"not null;default:0" json:"packs_per_box"`
	ReorderLevel decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"reorder_level"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Ingredient) TableName() string { return "ingredients" }

// PackagingFactors returns units-per-pack and packs-per-box, defaulting each
// to 1 when the ingredient has no packaging breakdown.
func (i Ingredient) PackagingFactors() (unitsPerPack, packsPerBox int64) {
	unitsPerPack = int64(i.UnitsPerPack)
	if unitsPerPack <= 0 {
		unitsPerPack = 1
	}
	packsPerBox = int64(i.PacksPerBox)
	if packsPerBox <= 0 {
		packsPerBox = 1
	}
	return unitsPerPack, packsPerBox
}

// LowStock reports whether the cached quantity is at or under the reorder level.
func (i Ingredient) LowStock() bool {
	return i.ReorderLevel.IsPositive() && i.CurrentQty.LessThanOrEqual(i.ReorderLevel)
}
