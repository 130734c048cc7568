package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Status is the workflow state of a received invoice.
//
//	received → inspecting → confirmed   (terminal, ledger-affecting)
//	received|inspecting → disputed      (terminal, no ledger effect)
//
// Deletion is permitted only from received or disputed; a confirmed invoice's
// ledger effects already happened and must never be silently un-applied.
type Status string

const (
	StatusReceived   Status = "received"
	StatusInspecting Status = "inspecting"
	StatusConfirmed  Status = "confirmed"
	StatusDisputed   Status = "disputed"
)

// MatchStatus classifies how a free-text invoice line was resolved
// against the ingredient catalog.
type MatchStatus string

const (
	// MatchAuto means the matcher resolved the line at intake time.
	MatchAuto MatchStatus = "auto_matched"
	// MatchManual means an operator overrode the match; it wins over
	// whatever automatic matching previously produced.
	MatchManual MatchStatus = "manual_matched"
	// MatchNone means no catalog ingredient was resolved; the item is
	// skipped from ledger effect at confirmation.
	MatchNone MatchStatus = "unmatched"
	// MatchNewIngredient means the operator chose to create a new catalog
	// entry instead of matching; the entry is created at confirmation time
	// so abandoned drafts never leave orphaned ingredients behind.
	MatchNewIngredient MatchStatus = "new_ingredient"
)

type Invoice struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	BranchID snowflake.ID `json:"branch_id" gorm:"index"`

	Status       Status          `json:"status" gorm:"type:varchar(16);index"`
	SupplierName string          `json:"supplier_name" gorm:"type:varchar(255)"`
	ReferenceNo  string          `json:"reference_no" gorm:"type:varchar(128)"`
	TotalAmount  decimal.Decimal `json:"total_amount" gorm:"type:decimal(20,4)"`

	// ConfirmedAmount is the sum actually applied to the ledger, which may
	// differ from TotalAmount after operator review.
	ConfirmedAmount decimal.Decimal `json:"confirmed_amount" gorm:"type:decimal(20,4)"`

	ReceivedAt  time.Time  `json:"received_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`

	Items []InvoiceItem `json:"items" gorm:"foreignKey:InvoiceID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// Deletable reports whether the invoice may be removed without un-applying
// committed ledger effects.
func (i *Invoice) Deletable() bool {
	return i.Status == StatusReceived || i.Status == StatusDisputed
}

type InvoiceItem struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID snowflake.ID `json:"invoice_id" gorm:"index"`

	Name       string          `json:"name" gorm:"type:varchar(255)"`
	Qty        decimal.Decimal `json:"qty" gorm:"type:decimal(20,4)"`
	UnitPrice  decimal.Decimal `json:"unit_price" gorm:"type:decimal(20,4)"`
	TotalPrice decimal.Decimal `json:"total_price" gorm:"type:decimal(20,4)"`

	MatchStatus         MatchStatus   `json:"match_status" gorm:"type:varchar(16)"`
	MatchedIngredientID *snowflake.ID `json:"matched_ingredient_id,omitempty"`

	// ConfirmedQty is the operator-reviewed value that becomes the ledger
	// movement quantity at confirmation; it starts equal to Qty.
	ConfirmedQty decimal.Decimal `json:"confirmed_qty" gorm:"type:decimal(20,4)"`

	// Unit labels a new catalog entry created for a new_ingredient item.
	Unit string `json:"unit,omitempty" gorm:"type:varchar(32)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (InvoiceItem) TableName() string {
	return "invoice_items"
}

// Resolved reports whether the item will produce a ledger movement when the
// invoice is confirmed.
func (it *InvoiceItem) Resolved() bool {
	switch it.MatchStatus {
	case MatchAuto, MatchManual:
		return it.MatchedIngredientID != nil
	case MatchNewIngredient:
		return true
	default:
		return false
	}
}
