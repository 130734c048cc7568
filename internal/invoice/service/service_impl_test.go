package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	branchdomain "github.com/smallbiznis/larder/internal/branch/domain"
	ingredientdomain "github.com/smallbiznis/larder/internal/ingredient/domain"
	ingredientservice "github.com/smallbiznis/larder/internal/ingredient/service"
	invoicedomain "github.com/smallbiznis/larder/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/larder/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/larder/internal/ledger/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type invoiceFixture struct {
	service     invoicedomain.Service
	ingredients ingredientdomain.Service
	db          *gorm.DB
	node        *snowflake.Node
	branch      branchdomain.Branch
}

// flakyLedger delegates to a real ledger but refuses movements for one
// designated ingredient, standing in for a transient store failure.
type flakyLedger struct {
	ledgerdomain.Service
	failFor string
}

var errLedgerDown = errors.New("ledger unavailable")

func (l *flakyLedger) Record(ctx context.Context, req ledgerdomain.RecordRequest) (*ledgerdomain.StockMovement, error) {
	if req.IngredientID == l.failFor {
		return nil, errLedgerDown
	}
	return l.Service.Record(ctx, req)
}

func setupInvoice(t *testing.T) invoiceFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(
		&branchdomain.Branch{},
		&ingredientdomain.Ingredient{},
		&ledgerdomain.StockMovement{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	branch := branchdomain.Branch{ID: node.Generate(), Name: "Main"}
	if err := db.Create(&branch).Error; err != nil {
		t.Fatalf("seed branch: %v", err)
	}

	ingredients := ingredientservice.NewService(ingredientservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})

	service := NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Ingredients: ingredients,
		Ledger:      ledgerSvc,
	})
	return invoiceFixture{service: service, ingredients: ingredients, db: db, node: node, branch: branch}
}

func (f invoiceFixture) seedIngredient(t *testing.T, name string, qty decimal.Decimal) ingredientdomain.Ingredient {
	t.Helper()
	ingredient := ingredientdomain.Ingredient{
		ID:         f.node.Generate(),
		BranchID:   f.branch.ID,
		Name:       name,
		Unit:       "kg",
		CurrentQty: qty,
	}
	if err := f.db.Create(&ingredient).Error; err != nil {
		t.Fatalf("seed ingredient %s: %v", name, err)
	}
	return ingredient
}

func (f invoiceFixture) qty(t *testing.T, id snowflake.ID) decimal.Decimal {
	t.Helper()
	var row ingredientdomain.Ingredient
	if err := f.db.First(&row, "id = ?", id).Error; err != nil {
		t.Fatalf("load ingredient: %v", err)
	}
	return row.CurrentQty
}

func TestIntakeMatchesAgainstCatalog(t *testing.T) {
	f := setupInvoice(t)
	flour := f.seedIngredient(t, "Flour", decimal.Zero)
	ctx := context.Background()

	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID:     f.branch.ID.String(),
		SupplierName: "Acme Foods",
		Items: []invoicedomain.IntakeItem{
			{Name: "flour", Qty: decimal.NewFromInt(25), UnitPrice: decimal.NewFromInt(2)},
			{Name: "Dragonfruit", Qty: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(9)},
			{Name: "Basil", Qty: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(4), NewIngredient: true, Unit: "bunch"},
		},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if invoice.Status != invoicedomain.StatusReceived {
		t.Fatalf("status = %s, want received", invoice.Status)
	}
	if len(invoice.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(invoice.Items))
	}

	byName := map[string]invoicedomain.InvoiceItem{}
	for _, item := range invoice.Items {
		byName[item.Name] = item
	}

	matched := byName["flour"]
	if matched.MatchStatus != invoicedomain.MatchAuto {
		t.Fatalf("flour match_status = %s, want auto_matched", matched.MatchStatus)
	}
	if matched.MatchedIngredientID == nil || *matched.MatchedIngredientID != flour.ID {
		t.Fatalf("flour matched to %v, want %s", matched.MatchedIngredientID, flour.ID)
	}
	if !matched.ConfirmedQty.Equal(matched.Qty) {
		t.Fatalf("confirmed_qty must default to the extracted qty, got %s", matched.ConfirmedQty)
	}

	if byName["Dragonfruit"].MatchStatus != invoicedomain.MatchNone {
		t.Fatalf("dragonfruit match_status = %s, want unmatched", byName["Dragonfruit"].MatchStatus)
	}
	if byName["Basil"].MatchStatus != invoicedomain.MatchNewIngredient {
		t.Fatalf("basil match_status = %s, want new_ingredient", byName["Basil"].MatchStatus)
	}

	// The new-ingredient choice is deferred: nothing enters the catalog at
	// intake time.
	var count int64
	if err := f.db.Model(&ingredientdomain.Ingredient{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("intake created catalog entries early: %d rows", count)
	}
}

func TestIntakeValidation(t *testing.T) {
	f := setupInvoice(t)
	ctx := context.Background()

	if _, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
	}); !errors.Is(err, invoicedomain.ErrNoItems) {
		t.Fatalf("got %v, want ErrNoItems", err)
	}

	if _, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
		Items:    []invoicedomain.IntakeItem{{Name: "Flour", Qty: decimal.NewFromInt(-1)}},
	}); !errors.Is(err, invoicedomain.ErrInvalidQty) {
		t.Fatalf("got %v, want ErrInvalidQty", err)
	}

	if _, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.node.Generate().String(),
		Items:    []invoicedomain.IntakeItem{{Name: "Flour", Qty: decimal.NewFromInt(1)}},
	}); !errors.Is(err, branchdomain.ErrNotFound) {
		t.Fatalf("got %v, want branch not found", err)
	}
}

func TestConfirmAppliesItemsOnce(t *testing.T) {
	f := setupInvoice(t)
	flour := f.seedIngredient(t, "Flour", decimal.NewFromInt(10))
	ctx := context.Background()

	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID:     f.branch.ID.String(),
		SupplierName: "Acme Foods",
		ReferenceNo:  "INV-001",
		Items: []invoicedomain.IntakeItem{
			{Name: "Flour", Qty: decimal.NewFromInt(25), UnitPrice: decimal.NewFromInt(2)},
			{Name: "Dragonfruit", Qty: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(9)},
		},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := f.service.StartInspection(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("inspect: %v", err)
	}

	report, err := f.service.Confirm(ctx, invoice.ID.String())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if report.Applied != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("report = %d applied / %d skipped / %d failed", report.Applied, report.Skipped, report.Failed)
	}
	if !report.ConfirmedAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("confirmed_amount = %s, want 50", report.ConfirmedAmount)
	}

	if got := f.qty(t, flour.ID); !got.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("current_qty = %s, want 35", got)
	}

	var movements []ledgerdomain.StockMovement
	if err := f.db.Find(&movements, "ingredient_id = ?", flour.ID).Error; err != nil {
		t.Fatalf("load movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("got %d movements, want exactly 1", len(movements))
	}
	if movements[0].Kind != ledgerdomain.KindIn || movements[0].SupplierName != "Acme Foods" {
		t.Fatalf("unexpected movement %+v", movements[0])
	}

	confirmed, err := f.service.GetByID(ctx, invoice.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if confirmed.Status != invoicedomain.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", confirmed.Status)
	}
	if confirmed.ConfirmedAt == nil || !confirmed.ConfirmedAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("confirmation stamp missing: %+v", confirmed)
	}
}

func TestConfirmTwiceDoesNotDoubleApply(t *testing.T) {
	f := setupInvoice(t)
	flour := f.seedIngredient(t, "Flour", decimal.Zero)
	ctx := context.Background()

	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
		Items:    []invoicedomain.IntakeItem{{Name: "Flour", Qty: decimal.NewFromInt(25), UnitPrice: decimal.NewFromInt(2)}},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := f.service.StartInspection(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if _, err := f.service.Confirm(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	if _, err := f.service.Confirm(ctx, invoice.ID.String()); !errors.Is(err, invoicedomain.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if got := f.qty(t, flour.ID); !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("replayed confirm moved current_qty to %s", got)
	}
}

func TestConfirmRequiresInspecting(t *testing.T) {
	f := setupInvoice(t)
	f.seedIngredient(t, "Flour", decimal.Zero)
	ctx := context.Background()

	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
		Items:    []invoicedomain.IntakeItem{{Name: "Flour", Qty: decimal.NewFromInt(1)}},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	if _, err := f.service.Confirm(ctx, invoice.ID.String()); !errors.Is(err, invoicedomain.ErrInvalidTransition) {
		t.Fatalf("confirm from received: got %v, want ErrInvalidTransition", err)
	}
}

func TestConfirmCreatesNewIngredient(t *testing.T) {
	f := setupInvoice(t)
	ctx := context.Background()

	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
		Items: []invoicedomain.IntakeItem{
			{Name: "Basil", Qty: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(3), NewIngredient: true, Unit: "bunch"},
			// A second line for the same new name must reuse the entry the
			// first line created, not fail on the unique index.
			{Name: "Basil", Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(3), NewIngredient: true, Unit: "bunch"},
		},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := f.service.StartInspection(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("inspect: %v", err)
	}

	report, err := f.service.Confirm(ctx, invoice.ID.String())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if report.Applied != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v, want both lines applied", report)
	}

	resp, err := f.ingredients.List(ctx, ingredientdomain.ListRequest{BranchID: f.branch.ID.String()})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Ingredients) != 1 {
		t.Fatalf("got %d catalog entries, want 1 shared Basil", len(resp.Ingredients))
	}
	basil := resp.Ingredients[0]
	if basil.Name != "Basil" || basil.Unit != "bunch" {
		t.Fatalf("unexpected catalog entry %+v", basil.Ingredient)
	}
	if !basil.CurrentQty.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("current_qty = %s, want 6", basil.CurrentQty)
	}
}

func TestConfirmUsesOperatorConfirmedQty(t *testing.T) {
	f := setupInvoice(t)
	flour := f.seedIngredient(t, "Flour", decimal.Zero)
	ctx := context.Background()

	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
		Items:    []invoicedomain.IntakeItem{{Name: "Flour", Qty: decimal.NewFromInt(25), UnitPrice: decimal.NewFromInt(2)}},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := f.service.StartInspection(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("inspect: %v", err)
	}

	// The delivery was short: the operator accepts 20 of the invoiced 25.
	corrected := decimal.NewFromInt(20)
	if _, err := f.service.UpdateItem(ctx, invoicedomain.UpdateItemRequest{
		InvoiceID:    invoice.ID.String(),
		ItemID:       invoice.Items[0].ID.String(),
		ConfirmedQty: &corrected,
	}); err != nil {
		t.Fatalf("update item: %v", err)
	}

	report, err := f.service.Confirm(ctx, invoice.ID.String())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !report.ConfirmedAmount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("confirmed_amount = %s, want 40", report.ConfirmedAmount)
	}
	if got := f.qty(t, flour.ID); !got.Equal(corrected) {
		t.Fatalf("current_qty = %s, want the accepted 20", got)
	}
}

func TestConfirmReportsPartialFailure(t *testing.T) {
	f := setupInvoice(t)
	flour := f.seedIngredient(t, "Flour", decimal.Zero)
	sugar := f.seedIngredient(t, "Sugar", decimal.Zero)

	// Same store, but the ledger refuses movements for sugar.
	real := ledgerservice.NewService(ledgerservice.ServiceParam{DB: f.db, Log: zap.NewNop(), GenID: f.node})
	f.service = NewService(ServiceParam{
		DB:          f.db,
		Log:         zap.NewNop(),
		GenID:       f.node,
		Ingredients: f.ingredients,
		Ledger:      &flakyLedger{Service: real, failFor: sugar.ID.String()},
	})

	ctx := context.Background()
	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
		Items: []invoicedomain.IntakeItem{
			{Name: "Flour", Qty: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(2)},
			{Name: "Sugar", Qty: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(3)},
		},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := f.service.StartInspection(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("inspect: %v", err)
	}

	report, err := f.service.Confirm(ctx, invoice.ID.String())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if report.Applied != 1 || report.Failed != 1 {
		t.Fatalf("report = %d applied / %d failed, want 1 / 1", report.Applied, report.Failed)
	}
	// Only the applied line counts toward the confirmed amount.
	if !report.ConfirmedAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("confirmed_amount = %s, want 20", report.ConfirmedAmount)
	}

	// The committed line stays committed; the failed one never lands.
	if got := f.qty(t, flour.ID); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("flour current_qty = %s, want 10", got)
	}
	if got := f.qty(t, sugar.ID); !got.IsZero() {
		t.Fatalf("sugar current_qty = %s, want 0", got)
	}

	confirmed, err := f.service.GetByID(ctx, invoice.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if confirmed.Status != invoicedomain.StatusConfirmed {
		t.Fatalf("partial failure must still leave the invoice confirmed, got %s", confirmed.Status)
	}
}

func TestDisputeAndDelete(t *testing.T) {
	f := setupInvoice(t)
	flour := f.seedIngredient(t, "Flour", decimal.NewFromInt(10))
	ctx := context.Background()

	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
		Items:    []invoicedomain.IntakeItem{{Name: "Flour", Qty: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(2)}},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	disputed, err := f.service.Dispute(ctx, invoice.ID.String())
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if disputed.Status != invoicedomain.StatusDisputed {
		t.Fatalf("status = %s, want disputed", disputed.Status)
	}
	if got := f.qty(t, flour.ID); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("dispute touched current_qty: %s", got)
	}

	// Disputed invoices never reached the ledger, so they can be removed.
	if err := f.service.Delete(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("delete disputed: %v", err)
	}
	if _, err := f.service.GetByID(ctx, invoice.ID.String()); !errors.Is(err, invoicedomain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound after delete", err)
	}
}

func TestDeleteConfirmedForbidden(t *testing.T) {
	f := setupInvoice(t)
	flour := f.seedIngredient(t, "Flour", decimal.Zero)
	ctx := context.Background()

	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
		Items:    []invoicedomain.IntakeItem{{Name: "Flour", Qty: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(2)}},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	if _, err := f.service.StartInspection(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if _, err := f.service.Confirm(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if err := f.service.Delete(ctx, invoice.ID.String()); !errors.Is(err, invoicedomain.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if got := f.qty(t, flour.ID); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("failed delete touched current_qty: %s", got)
	}
}

func TestManualRematchWins(t *testing.T) {
	f := setupInvoice(t)
	f.seedIngredient(t, "Flour", decimal.Zero)
	sugar := f.seedIngredient(t, "Sugar", decimal.Zero)
	ctx := context.Background()

	invoice, err := f.service.Intake(ctx, invoicedomain.IntakeRequest{
		BranchID: f.branch.ID.String(),
		Items:    []invoicedomain.IntakeItem{{Name: "Flour", Qty: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(2)}},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	sugarID := sugar.ID.String()
	item, err := f.service.UpdateItem(ctx, invoicedomain.UpdateItemRequest{
		InvoiceID:           invoice.ID.String(),
		ItemID:              invoice.Items[0].ID.String(),
		MatchedIngredientID: &sugarID,
	})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if item.MatchStatus != invoicedomain.MatchManual {
		t.Fatalf("match_status = %s, want manual_matched", item.MatchStatus)
	}
	if item.MatchedIngredientID == nil || *item.MatchedIngredientID != sugar.ID {
		t.Fatalf("matched to %v, want %s", item.MatchedIngredientID, sugar.ID)
	}

	if _, err := f.service.StartInspection(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if _, err := f.service.Confirm(ctx, invoice.ID.String()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := f.qty(t, sugar.ID); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("manual match must drive the ledger, sugar qty = %s", got)
	}
}
