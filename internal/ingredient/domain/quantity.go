package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AdjustQty applies a signed delta to an ingredient's cached quantity as a
// single atomic read-modify-write against that ingredient row.
//
// Every incremental quantity write in the system (movement application,
// movement correction, invoice confirmation) must go through this primitive;
// only closing completion writes the quantity absolutely, via OverwriteQty.
func AdjustQty(tx *gorm.DB, id snowflake.ID, delta decimal.Decimal) error {
	res := tx.Model(&Ingredient{}).
		Where("id = ?", id).
		UpdateColumn("current_qty", gorm.Expr("current_qty + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// OverwriteQty sets an ingredient's cached quantity absolutely, superseding
// all deltas accumulated since the last anchor point.
func OverwriteQty(tx *gorm.DB, id snowflake.ID, qty decimal.Decimal) error {
	res := tx.Model(&Ingredient{}).
		Where("id = ?", id).
		UpdateColumn("current_qty", qty)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
