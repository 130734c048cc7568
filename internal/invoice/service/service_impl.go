package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	branchdomain "github.com/smallbiznis/larder/internal/branch/domain"
	ingredientdomain "github.com/smallbiznis/larder/internal/ingredient/domain"
	invoicedomain "github.com/smallbiznis/larder/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/larder/internal/ledger/domain"
	"github.com/smallbiznis/larder/internal/matcher"
	obsmetrics "github.com/smallbiznis/larder/internal/observability/metrics"
	"github.com/smallbiznis/larder/pkg/db/option"
	"github.com/smallbiznis/larder/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Ingredients ingredientdomain.Service
	Ledger      ledgerdomain.Service
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	ingredients ingredientdomain.Service
	ledger      ledgerdomain.Service
	metrics     *obsmetrics.Metrics

	repo       repository.Repository[invoicedomain.Invoice]
	itemrepo   repository.Repository[invoicedomain.InvoiceItem]
	branchrepo repository.Repository[branchdomain.Branch]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invoice.service"),
		genID:       p.GenID,
		ingredients: p.Ingredients,
		ledger:      p.Ledger,
		metrics:     p.Metrics,

		repo:       repository.ProvideStore[invoicedomain.Invoice](p.DB),
		itemrepo:   repository.ProvideStore[invoicedomain.InvoiceItem](p.DB),
		branchrepo: repository.ProvideStore[branchdomain.Branch](p.DB),
	}
}

// Intake creates the invoice in received state and resolves each line against
// the branch catalog. Items the matcher resolves start auto_matched; the rest
// are unmatched unless the operator explicitly asked for a new catalog entry.
func (s *Service) Intake(ctx context.Context, req invoicedomain.IntakeRequest) (*invoicedomain.Invoice, error) {
	branchID, err := snowflake.ParseString(strings.TrimSpace(req.BranchID))
	if err != nil {
		return nil, invoicedomain.ErrInvalidBranch
	}
	branch, err := s.branchrepo.FindOne(ctx, &branchdomain.Branch{ID: branchID})
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, branchdomain.ErrNotFound
	}
	if len(req.Items) == 0 {
		return nil, invoicedomain.ErrNoItems
	}

	catalog, err := s.catalog(ctx, req.BranchID)
	if err != nil {
		return nil, err
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}

	invoice := &invoicedomain.Invoice{
		ID:           s.genID.Generate(),
		BranchID:     branchID,
		Status:       invoicedomain.StatusReceived,
		SupplierName: strings.TrimSpace(req.SupplierName),
		ReferenceNo:  strings.TrimSpace(req.ReferenceNo),
		TotalAmount:  req.TotalAmount,
		ReceivedAt:   receivedAt,
	}

	for _, line := range req.Items {
		name := strings.TrimSpace(line.Name)
		if name == "" {
			return nil, ingredientdomain.ErrInvalidName
		}
		if !line.Qty.IsPositive() {
			return nil, invoicedomain.ErrInvalidQty
		}

		item := invoicedomain.InvoiceItem{
			ID:           s.genID.Generate(),
			InvoiceID:    invoice.ID,
			Name:         name,
			Qty:          line.Qty,
			UnitPrice:    line.UnitPrice,
			TotalPrice:   line.TotalPrice,
			ConfirmedQty: line.Qty,
			Unit:         strings.TrimSpace(line.Unit),
			MatchStatus:  invoicedomain.MatchNone,
		}

		switch {
		case line.NewIngredient:
			item.MatchStatus = invoicedomain.MatchNewIngredient
		default:
			if hit := matcher.Match(name, catalog); hit != nil {
				item.MatchStatus = invoicedomain.MatchAuto
				item.MatchedIngredientID = &hit.ID
			}
		}

		invoice.Items = append(invoice.Items, item)
	}

	if err := s.repo.Create(ctx, invoice); err != nil {
		return nil, err
	}

	s.log.Info("invoice received",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("branch_id", branchID.String()),
		zap.String("supplier", invoice.SupplierName),
		zap.Int("items", len(invoice.Items)),
	)
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	var invoice invoicedomain.Invoice
	err = s.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		First(&invoice, "id = ?", invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invoicedomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) (invoicedomain.ListResponse, error) {
	filter := &invoicedomain.Invoice{Status: req.Status}
	if branchID := strings.TrimSpace(req.BranchID); branchID != "" {
		id, err := snowflake.ParseString(branchID)
		if err != nil {
			return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidBranch
		}
		filter.BranchID = id
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"received_at": true, "created_at": true}, SortBy: "received_at"}),
	}
	if req.Limit > 0 {
		options = append(options, option.WithLimit(req.Limit))
	}

	rows, err := s.repo.Find(ctx, filter, options...)
	if err != nil {
		return invoicedomain.ListResponse{}, err
	}

	invoices := make([]invoicedomain.Invoice, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		invoices = append(invoices, *row)
	}
	return invoicedomain.ListResponse{Invoices: invoices}, nil
}

// StartInspection moves received → inspecting; no other side effects.
func (s *Service) StartInspection(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.StatusReceived {
		return nil, invoicedomain.ErrInvalidTransition
	}

	if err := s.transition(ctx, invoice.ID, invoicedomain.StatusReceived, invoicedomain.StatusInspecting); err != nil {
		return nil, err
	}
	invoice.Status = invoicedomain.StatusInspecting
	return invoice, nil
}

// UpdateItem applies operator edits to a line before confirmation: a manual
// re-match always wins over whatever automatic matching produced.
func (s *Service) UpdateItem(ctx context.Context, req invoicedomain.UpdateItemRequest) (*invoicedomain.InvoiceItem, error) {
	invoice, err := s.GetByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.StatusReceived && invoice.Status != invoicedomain.StatusInspecting {
		return nil, invoicedomain.ErrInvalidTransition
	}

	itemID, err := snowflake.ParseString(strings.TrimSpace(req.ItemID))
	if err != nil {
		return nil, invoicedomain.ErrItemNotFound
	}
	var item *invoicedomain.InvoiceItem
	for i := range invoice.Items {
		if invoice.Items[i].ID == itemID {
			item = &invoice.Items[i]
			break
		}
	}
	if item == nil {
		return nil, invoicedomain.ErrItemNotFound
	}

	updates := map[string]any{}
	if req.MatchedIngredientID != nil {
		ingredient, err := s.ingredients.GetByID(ctx, *req.MatchedIngredientID)
		if err != nil {
			return nil, err
		}
		item.MatchedIngredientID = &ingredient.ID
		item.MatchStatus = invoicedomain.MatchManual
		updates["matched_ingredient_id"] = ingredient.ID
		updates["match_status"] = invoicedomain.MatchManual
	}
	if req.NewIngredient != nil && *req.NewIngredient {
		item.MatchedIngredientID = nil
		item.MatchStatus = invoicedomain.MatchNewIngredient
		updates["matched_ingredient_id"] = nil
		updates["match_status"] = invoicedomain.MatchNewIngredient
	}
	if req.Unit != nil {
		item.Unit = strings.TrimSpace(*req.Unit)
		updates["unit"] = item.Unit
	}
	if req.ConfirmedQty != nil {
		if !req.ConfirmedQty.IsPositive() {
			return nil, invoicedomain.ErrInvalidQty
		}
		item.ConfirmedQty = *req.ConfirmedQty
		updates["confirmed_qty"] = *req.ConfirmedQty
	}
	if len(updates) == 0 {
		return item, nil
	}

	err = s.db.WithContext(ctx).Model(&invoicedomain.InvoiceItem{}).
		Where("id = ?", item.ID).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Confirm is the single moment invoice data becomes ledger data. The status
// flip is the one-way gate: it happens first as a compare-and-set so the
// items can never be applied twice, then each resolved item produces exactly
// one "in" movement at its operator-reviewed confirmed quantity. Items are
// applied sequentially and independently; a failure does not roll back items
// already committed but is reported per item instead.
func (s *Service) Confirm(ctx context.Context, id string) (*invoicedomain.ConfirmReport, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, invoice.ID, invoicedomain.StatusInspecting, invoicedomain.StatusConfirmed); err != nil {
		return nil, err
	}

	report := &invoicedomain.ConfirmReport{InvoiceID: invoice.ID.String()}
	confirmedAmount := decimal.Zero

	for i := range invoice.Items {
		item := &invoice.Items[i]
		result := invoicedomain.ItemResult{ItemID: item.ID.String(), Name: item.Name}

		ingredientID, err := s.resolveItem(ctx, invoice, item)
		if err != nil {
			result.Outcome = invoicedomain.OutcomeFailed
			result.Error = err.Error()
			report.Failed++
			report.Items = append(report.Items, result)
			continue
		}
		if ingredientID == nil {
			result.Outcome = invoicedomain.OutcomeSkipped
			report.Skipped++
			report.Items = append(report.Items, result)
			continue
		}

		unitPrice := item.UnitPrice
		movement, err := s.ledger.Record(ctx, ledgerdomain.RecordRequest{
			IngredientID: ingredientID.String(),
			Kind:         ledgerdomain.KindIn,
			Qty:          item.ConfirmedQty,
			UnitPrice:    &unitPrice,
			SupplierName: invoice.SupplierName,
			Reference:    invoice.ReferenceNo,
			Metadata: map[string]any{
				"invoice_id":      invoice.ID.String(),
				"invoice_item_id": item.ID.String(),
			},
		})
		if err != nil {
			s.log.Warn("invoice item ledger application failed",
				zap.String("invoice_id", invoice.ID.String()),
				zap.String("item_id", item.ID.String()),
				zap.Error(err),
			)
			result.Outcome = invoicedomain.OutcomeFailed
			result.Error = err.Error()
			report.Failed++
			report.Items = append(report.Items, result)
			continue
		}

		confirmedAmount = confirmedAmount.Add(item.ConfirmedQty.Mul(item.UnitPrice))
		result.Outcome = invoicedomain.OutcomeApplied
		result.MovementID = movement.ID.String()
		report.Applied++
		report.Items = append(report.Items, result)
	}

	now := time.Now().UTC()
	report.ConfirmedAmount = confirmedAmount
	err = s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"confirmed_amount": confirmedAmount,
			"confirmed_at":     now,
		}).Error
	if err != nil {
		return nil, err
	}

	outcome := "ok"
	if report.Failed > 0 {
		outcome = "partial"
	}
	s.metrics.RecordInvoiceConfirmation(ctx, outcome)
	s.log.Info("invoice confirmed",
		zap.String("invoice_id", invoice.ID.String()),
		zap.Int("applied", report.Applied),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.String("confirmed_amount", confirmedAmount.String()),
	)
	return report, nil
}

// Dispute parks the invoice with no ledger effect; there is no way back to
// received short of deletion and re-intake.
func (s *Service) Dispute(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.StatusReceived && invoice.Status != invoicedomain.StatusInspecting {
		return nil, invoicedomain.ErrInvalidTransition
	}

	if err := s.transition(ctx, invoice.ID, invoice.Status, invoicedomain.StatusDisputed); err != nil {
		return nil, err
	}
	invoice.Status = invoicedomain.StatusDisputed
	return invoice, nil
}

// Delete removes the invoice and its items, only from states whose ledger
// effects never happened.
func (s *Service) Delete(ctx context.Context, id string) error {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !invoice.Deletable() {
		return invoicedomain.ErrInvalidTransition
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&invoicedomain.InvoiceItem{}, "invoice_id = ?", invoice.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&invoicedomain.Invoice{}, "id = ? AND status IN ?", invoice.ID,
			[]invoicedomain.Status{invoicedomain.StatusReceived, invoicedomain.StatusDisputed}).Error
	})
}

// transition is the compare-and-set status flip: rows are only updated when
// still in the expected source state, so a concurrent duplicate call loses
// the race and surfaces ErrInvalidTransition instead of repeating effects.
func (s *Service) transition(ctx context.Context, id snowflake.ID, from, to invoicedomain.Status) error {
	res := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return invoicedomain.ErrInvalidTransition
	}
	return nil
}

// resolveItem returns the ingredient a line item settles on: its match when
// one exists, a freshly created catalog entry for new_ingredient lines, and
// nil for unmatched lines, which are skipped rather than blocking the
// confirmation.
func (s *Service) resolveItem(ctx context.Context, invoice *invoicedomain.Invoice, item *invoicedomain.InvoiceItem) (*snowflake.ID, error) {
	switch item.MatchStatus {
	case invoicedomain.MatchAuto, invoicedomain.MatchManual:
		return item.MatchedIngredientID, nil
	case invoicedomain.MatchNewIngredient:
	default:
		return nil, nil
	}

	unit := item.Unit
	if unit == "" {
		unit = "unit"
	}
	ingredient, err := s.ingredients.Create(ctx, ingredientdomain.CreateRequest{
		BranchID: invoice.BranchID.String(),
		Name:     item.Name,
		Unit:     unit,
	})
	if errors.Is(err, ingredientdomain.ErrDuplicateName) {
		// An earlier item on the same invoice (or a concurrent intake) already
		// created this name; reuse the existing entry.
		existing, lookupErr := s.lookupExact(ctx, invoice.BranchID, item.Name)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			ingredient, err = existing, nil
		}
	}
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Model(&invoicedomain.InvoiceItem{}).
		Where("id = ?", item.ID).
		UpdateColumn("matched_ingredient_id", ingredient.ID).Error
	if err != nil {
		return nil, err
	}
	item.MatchedIngredientID = &ingredient.ID
	return &ingredient.ID, nil
}

func (s *Service) lookupExact(ctx context.Context, branchID snowflake.ID, name string) (*ingredientdomain.Ingredient, error) {
	resp, err := s.ingredients.List(ctx, ingredientdomain.ListRequest{BranchID: branchID.String(), Name: name})
	if err != nil {
		return nil, err
	}
	for i := range resp.Ingredients {
		if strings.EqualFold(strings.TrimSpace(resp.Ingredients[i].Name), strings.TrimSpace(name)) {
			return &resp.Ingredients[i].Ingredient, nil
		}
	}
	return nil, nil
}

func (s *Service) catalog(ctx context.Context, branchID string) ([]matcher.Candidate, error) {
	resp, err := s.ingredients.List(ctx, ingredientdomain.ListRequest{BranchID: branchID})
	if err != nil {
		return nil, err
	}
	catalog := make([]matcher.Candidate, 0, len(resp.Ingredients))
	for _, row := range resp.Ingredients {
		catalog = append(catalog, matcher.Candidate{ID: row.ID, Name: row.Name})
	}
	return catalog, nil
}
