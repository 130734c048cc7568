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
	ledgerdomain "github.com/smallbiznis/larder/internal/ledger/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedgerService(t *testing.T) (ledgerdomain.Service, *gorm.DB, *snowflake.Node) {
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

	if err := db.AutoMigrate(&branchdomain.Branch{}, &ingredientdomain.Ingredient{}, &ledgerdomain.StockMovement{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	service := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	return service, db, node
}

func seedIngredient(t *testing.T, db *gorm.DB, node *snowflake.Node, qty decimal.Decimal) ingredientdomain.Ingredient {
	t.Helper()

	branch := branchdomain.Branch{ID: node.Generate(), Name: fmt.Sprintf("branch-%s", t.Name())}
	if err := db.Create(&branch).Error; err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	ingredient := ingredientdomain.Ingredient{
		ID:         node.Generate(),
		BranchID:   branch.ID,
		Name:       "Flour",
		Unit:       "kg",
		CurrentQty: qty,
	}
	if err := db.Create(&ingredient).Error; err != nil {
		t.Fatalf("seed ingredient: %v", err)
	}
	return ingredient
}

func currentQty(t *testing.T, db *gorm.DB, id snowflake.ID) decimal.Decimal {
	t.Helper()
	var row ingredientdomain.Ingredient
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		t.Fatalf("load ingredient: %v", err)
	}
	return row.CurrentQty
}

func TestRecordSignByKind(t *testing.T) {
	service, db, node := setupLedgerService(t)
	ingredient := seedIngredient(t, db, node, decimal.Zero)
	ctx := context.Background()

	steps := []struct {
		kind ledgerdomain.MovementKind
		qty  string
		want string
	}{
		{ledgerdomain.KindIn, "50", "50"},
		{ledgerdomain.KindOut, "20", "30"},
		{ledgerdomain.KindWaste, "5", "25"},
		{ledgerdomain.KindAdjustment, "-3", "22"},
		{ledgerdomain.KindAdjustment, "8", "30"},
	}

	for _, step := range steps {
		_, err := service.Record(ctx, ledgerdomain.RecordRequest{
			IngredientID: ingredient.ID.String(),
			Kind:         step.kind,
			Qty:          decimal.RequireFromString(step.qty),
		})
		if err != nil {
			t.Fatalf("record %s %s: %v", step.kind, step.qty, err)
		}
		if got := currentQty(t, db, ingredient.ID); !got.Equal(decimal.RequireFromString(step.want)) {
			t.Fatalf("after %s %s: current_qty = %s, want %s", step.kind, step.qty, got, step.want)
		}
	}
}

func TestRecordRejectsInvalidQuantities(t *testing.T) {
	service, db, node := setupLedgerService(t)
	ingredient := seedIngredient(t, db, node, decimal.Zero)
	ctx := context.Background()

	cases := []struct {
		kind ledgerdomain.MovementKind
		qty  string
	}{
		{ledgerdomain.KindIn, "0"},
		{ledgerdomain.KindIn, "-5"},
		{ledgerdomain.KindOut, "0"},
		{ledgerdomain.KindWaste, "-1"},
		{ledgerdomain.KindAdjustment, "0"},
	}
	for _, tc := range cases {
		_, err := service.Record(ctx, ledgerdomain.RecordRequest{
			IngredientID: ingredient.ID.String(),
			Kind:         tc.kind,
			Qty:          decimal.RequireFromString(tc.qty),
		})
		if !errors.Is(err, ledgerdomain.ErrInvalidQuantity) {
			t.Fatalf("record %s %s: got %v, want ErrInvalidQuantity", tc.kind, tc.qty, err)
		}
	}

	if got := currentQty(t, db, ingredient.ID); !got.IsZero() {
		t.Fatalf("rejected movements must not touch current_qty, got %s", got)
	}
}

func TestRecordRejectsInvalidKind(t *testing.T) {
	service, db, node := setupLedgerService(t)
	ingredient := seedIngredient(t, db, node, decimal.Zero)

	_, err := service.Record(context.Background(), ledgerdomain.RecordRequest{
		IngredientID: ingredient.ID.String(),
		Kind:         "transfer",
		Qty:          decimal.NewFromInt(1),
	})
	if !errors.Is(err, ledgerdomain.ErrInvalidKind) {
		t.Fatalf("got %v, want ErrInvalidKind", err)
	}
}

func TestRecordUnknownIngredientRollsBack(t *testing.T) {
	service, db, node := setupLedgerService(t)
	seedIngredient(t, db, node, decimal.Zero)

	_, err := service.Record(context.Background(), ledgerdomain.RecordRequest{
		IngredientID: node.Generate().String(),
		Kind:         ledgerdomain.KindIn,
		Qty:          decimal.NewFromInt(5),
	})
	if !errors.Is(err, ingredientdomain.ErrNotFound) {
		t.Fatalf("got %v, want ingredient not found", err)
	}

	var count int64
	if err := db.Model(&ledgerdomain.StockMovement{}).Count(&count).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if count != 0 {
		t.Fatalf("movement row must not survive a failed adjustment, got %d rows", count)
	}
}

// Correcting a movement's quantity must land on the same cached value as
// deleting it and recording the new quantity from scratch.
func TestUpdateEquivalentToDeleteAndRecord(t *testing.T) {
	ctx := context.Background()

	service, db, node := setupLedgerService(t)
	ingredient := seedIngredient(t, db, node, decimal.NewFromInt(100))
	movement, err := service.Record(ctx, ledgerdomain.RecordRequest{
		IngredientID: ingredient.ID.String(),
		Kind:         ledgerdomain.KindOut,
		Qty:          decimal.NewFromInt(30),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	newQty := decimal.NewFromInt(12)
	if _, err := service.Update(ctx, ledgerdomain.UpdateRequest{ID: movement.ID.String(), Qty: &newQty}); err != nil {
		t.Fatalf("update: %v", err)
	}
	viaUpdate := currentQty(t, db, ingredient.ID)
	if !viaUpdate.Equal(decimal.NewFromInt(88)) {
		t.Fatalf("update path: current_qty = %s, want 88", viaUpdate)
	}

	// Replay the same correction as delete + re-record.
	if err := service.Delete(ctx, movement.ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := service.Record(ctx, ledgerdomain.RecordRequest{
		IngredientID: ingredient.ID.String(),
		Kind:         ledgerdomain.KindOut,
		Qty:          newQty,
	}); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	if got := currentQty(t, db, ingredient.ID); !got.Equal(viaUpdate) {
		t.Fatalf("delete+record path: current_qty = %s, want %s", got, viaUpdate)
	}
}

func TestUpdateRevalidatesAgainstKind(t *testing.T) {
	service, db, node := setupLedgerService(t)
	ingredient := seedIngredient(t, db, node, decimal.NewFromInt(10))
	ctx := context.Background()

	movement, err := service.Record(ctx, ledgerdomain.RecordRequest{
		IngredientID: ingredient.ID.String(),
		Kind:         ledgerdomain.KindIn,
		Qty:          decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	bad := decimal.NewFromInt(-5)
	if _, err := service.Update(ctx, ledgerdomain.UpdateRequest{ID: movement.ID.String(), Qty: &bad}); !errors.Is(err, ledgerdomain.ErrInvalidQuantity) {
		t.Fatalf("got %v, want ErrInvalidQuantity", err)
	}
	if got := currentQty(t, db, ingredient.ID); !got.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("rejected update must not touch current_qty, got %s", got)
	}
}

func TestDeleteReversesEffect(t *testing.T) {
	service, db, node := setupLedgerService(t)
	ingredient := seedIngredient(t, db, node, decimal.NewFromInt(40))
	ctx := context.Background()

	movement, err := service.Record(ctx, ledgerdomain.RecordRequest{
		IngredientID: ingredient.ID.String(),
		Kind:         ledgerdomain.KindWaste,
		Qty:          decimal.NewFromInt(15),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := currentQty(t, db, ingredient.ID); !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("after waste: current_qty = %s, want 25", got)
	}

	if err := service.Delete(ctx, movement.ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := currentQty(t, db, ingredient.ID); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("delete must reverse the effect, got %s", got)
	}

	if _, err := service.GetByID(ctx, movement.ID.String()); !errors.Is(err, ledgerdomain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound after delete", err)
	}
}

func TestListFiltersByKind(t *testing.T) {
	service, db, node := setupLedgerService(t)
	ingredient := seedIngredient(t, db, node, decimal.Zero)
	ctx := context.Background()

	for _, kind := range []ledgerdomain.MovementKind{ledgerdomain.KindIn, ledgerdomain.KindIn, ledgerdomain.KindOut} {
		if _, err := service.Record(ctx, ledgerdomain.RecordRequest{
			IngredientID: ingredient.ID.String(),
			Kind:         kind,
			Qty:          decimal.NewFromInt(1),
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	resp, err := service.List(ctx, ledgerdomain.ListRequest{
		IngredientID: ingredient.ID.String(),
		Kind:         ledgerdomain.KindIn,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Movements) != 2 {
		t.Fatalf("got %d movements, want 2", len(resp.Movements))
	}
	for _, m := range resp.Movements {
		if m.Kind != ledgerdomain.KindIn {
			t.Fatalf("filter leaked kind %s", m.Kind)
		}
	}
}
