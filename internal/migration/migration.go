package migration

import (
	"errors"

	branchdomain "github.com/smallbiznis/larder/internal/branch/domain"
	closingdomain "github.com/smallbiznis/larder/internal/closing/domain"
	ingredientdomain "github.com/smallbiznis/larder/internal/ingredient/domain"
	invoicedomain "github.com/smallbiznis/larder/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/larder/internal/ledger/domain"
	quotadomain "github.com/smallbiznis/larder/internal/quota/domain"
	"gorm.io/gorm"
)

// RunMigrations brings the schema up to date across every supported dialect.
func RunMigrations(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	return db.AutoMigrate(
		&branchdomain.Branch{},
		&ingredientdomain.Ingredient{},
		&ledgerdomain.StockMovement{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&closingdomain.ClosingRecord{},
		&closingdomain.ClosingItem{},
		&quotadomain.ApiUsage{},
	)
}
