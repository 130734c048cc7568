package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Status of a daily closing: a draft may be re-saved wholesale, a completed
// closing is terminal and has already overwritten the ingredient quantities.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

// ClosingRecord is one branch's physical count for one calendar date. The
// (branch_id, closing_date) pair is unique: re-saving a draft replaces its
// item set instead of creating a second record.
type ClosingRecord struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	BranchID    snowflake.ID `json:"branch_id" gorm:"uniqueIndex:ux_closing_branch_date"`
	ClosingDate string       `json:"closing_date" gorm:"type:varchar(10);uniqueIndex:ux_closing_branch_date"`

	Status   Status     `json:"status" gorm:"type:varchar(16)"`
	ClosedBy string     `json:"closed_by" gorm:"type:varchar(255)"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	Items []ClosingItem `json:"items" gorm:"foreignKey:ClosingID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ClosingRecord) TableName() string {
	return "daily_closings"
}

// ClosingItem holds one ingredient's packaging count. OpeningQty is the
// cached quantity snapshotted when the draft was saved, kept for the audit
// trail; ClosingQty is the counted total that becomes the new absolute
// quantity on completion.
type ClosingItem struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ClosingID    snowflake.ID `json:"closing_id" gorm:"index"`
	IngredientID snowflake.ID `json:"ingredient_id" gorm:"index"`

	OpeningQty decimal.Decimal `json:"opening_qty" gorm:"type:decimal(20,4)"`

	Boxes int64 `json:"boxes"`
	Packs int64 `json:"packs"`
	Units int64 `json:"units"`

	ClosingQty decimal.Decimal `json:"closing_qty" gorm:"type:decimal(20,4)"`
	WasteQty   decimal.Decimal `json:"waste_qty" gorm:"type:decimal(20,4)"`
	Note       string          `json:"note" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ClosingItem) TableName() string {
	return "daily_closing_items"
}

// CountedQty expands a packaging count into base units:
//
//	boxes×packsPerBox×unitsPerPack + packs×unitsPerPack + units
//
// Factors default to 1 upstream when the ingredient is counted flat.
func CountedQty(boxes, packs, units, unitsPerPack, packsPerBox int64) decimal.Decimal {
	total := boxes*packsPerBox*unitsPerPack + packs*unitsPerPack + units
	return decimal.NewFromInt(total)
}
