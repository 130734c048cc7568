package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type DraftItem struct {
	IngredientID string           `json:"ingredient_id"`
	Boxes        int64            `json:"boxes"`
	Packs        int64            `json:"packs"`
	Units        int64            `json:"units"`
	WasteQty     *decimal.Decimal `json:"waste_qty,omitempty"`
	Note         string           `json:"note,omitempty"`
}

type SaveDraftRequest struct {
	BranchID    string      `json:"branch_id"`
	ClosingDate string      `json:"closing_date"`
	Items       []DraftItem `json:"items"`
}

type ListRequest struct {
	BranchID string `form:"branch_id"`
	Date     string `form:"date"`
	Status   Status `form:"status"`
	Limit    int    `form:"limit"`
}

type ListResponse struct {
	Closings []ClosingRecord `json:"closings"`
}

// Service runs the daily closing process: drafts accumulate operator counts,
// completion anchors every counted ingredient's quantity absolutely.
type Service interface {
	// SaveDraft is idempotent per (branch, date): an existing draft's item set
	// is replaced wholesale, never merged. Opening quantities are snapshotted
	// from the ingredient cache at save time.
	SaveDraft(ctx context.Context, req SaveDraftRequest) (*ClosingRecord, error)
	GetByID(ctx context.Context, id string) (*ClosingRecord, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	// Complete overwrites each counted ingredient's quantity with its closing
	// quantity and seals the record. There is no re-open.
	Complete(ctx context.Context, id, closedBy string) (*ClosingRecord, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound          = errors.New("closing_not_found")
	ErrInvalidID         = errors.New("invalid_closing_id")
	ErrInvalidDate       = errors.New("invalid_closing_date")
	ErrNoItems           = errors.New("closing_has_no_items")
	ErrInvalidCount      = errors.New("invalid_packaging_count")
	ErrInvalidTransition = errors.New("invalid_closing_transition")
)
