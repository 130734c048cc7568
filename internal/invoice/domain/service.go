package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// IntakeItem is one invoice line entering the workflow, either from manual
// entry or from the extraction pathway.
type IntakeItem struct {
	Name       string          `json:"name"`
	Qty        decimal.Decimal `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`

	// NewIngredient marks the operator's explicit choice to create a new
	// catalog entry for this line instead of matching an existing one.
	NewIngredient bool   `json:"new_ingredient"`
	Unit          string `json:"unit"`
}

type IntakeRequest struct {
	BranchID     string          `json:"branch_id"`
	SupplierName string          `json:"supplier_name"`
	ReferenceNo  string          `json:"reference_no"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ReceivedAt   *time.Time      `json:"received_at,omitempty"`
	Items        []IntakeItem    `json:"items"`
}

// UpdateItemRequest carries operator edits to one line item before
// confirmation: manual re-match, new-ingredient choice, or a corrected
// confirmed quantity. Nil fields are left untouched.
type UpdateItemRequest struct {
	InvoiceID string `json:"-"`
	ItemID    string `json:"-"`

	MatchedIngredientID *string          `json:"matched_ingredient_id,omitempty"`
	NewIngredient       *bool            `json:"new_ingredient,omitempty"`
	Unit                *string          `json:"unit,omitempty"`
	ConfirmedQty        *decimal.Decimal `json:"confirmed_qty,omitempty"`
}

type ListRequest struct {
	BranchID string `form:"branch_id"`
	Status   Status `form:"status"`
	Limit    int    `form:"limit"`
}

type ListResponse struct {
	Invoices []Invoice `json:"invoices"`
}

// ItemOutcome is the confirmation result for a single line item.
type ItemOutcome string

const (
	OutcomeApplied ItemOutcome = "applied"
	OutcomeSkipped ItemOutcome = "skipped"
	OutcomeFailed  ItemOutcome = "failed"
)

type ItemResult struct {
	ItemID     string      `json:"item_id"`
	Name       string      `json:"name"`
	Outcome    ItemOutcome `json:"outcome"`
	MovementID string      `json:"movement_id,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ConfirmReport lists the per-item outcome of a confirmation. Items are
// applied sequentially and independently: a failed item does not roll back
// the ones already committed, so the report is the caller's only complete
// picture of what reached the ledger.
type ConfirmReport struct {
	InvoiceID       string          `json:"invoice_id"`
	Applied         int             `json:"applied"`
	Skipped         int             `json:"skipped"`
	Failed          int             `json:"failed"`
	ConfirmedAmount decimal.Decimal `json:"confirmed_amount"`
	Items           []ItemResult    `json:"items"`
}

type Service interface {
	Intake(ctx context.Context, req IntakeRequest) (*Invoice, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	StartInspection(ctx context.Context, id string) (*Invoice, error)
	UpdateItem(ctx context.Context, req UpdateItemRequest) (*InvoiceItem, error)
	Confirm(ctx context.Context, id string) (*ConfirmReport, error)
	Dispute(ctx context.Context, id string) (*Invoice, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound          = errors.New("invoice_not_found")
	ErrItemNotFound      = errors.New("invoice_item_not_found")
	ErrInvalidID         = errors.New("invalid_invoice_id")
	ErrInvalidBranch     = errors.New("invalid_branch_id")
	ErrInvalidSupplier   = errors.New("invalid_supplier_name")
	ErrNoItems           = errors.New("invoice_has_no_items")
	ErrInvalidQty        = errors.New("invalid_confirmed_qty")
	ErrInvalidTransition = errors.New("invalid_invoice_transition")
)
