// Package seed bootstraps the database so a fresh install is usable without
// manual setup.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	branchdomain "github.com/smallbiznis/larder/internal/branch/domain"
	ingredientdomain "github.com/smallbiznis/larder/internal/ingredient/domain"
	"gorm.io/gorm"
)

const defaultBranchName = "Main"

// EnsureMainBranch seeds the default branch for startup bootstrap and
// returns it. Safe to call on every boot.
func EnsureMainBranch(db *gorm.DB) (*branchdomain.Branch, error) {
	if db == nil {
		return nil, errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var branch branchdomain.Branch
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("name = ?", defaultBranchName).First(&branch).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		branch = branchdomain.Branch{
			ID:   node.Generate(),
			Name: defaultBranchName,
		}
		return tx.Create(&branch).Error
	})
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

// EnsureDevCatalog seeds a handful of ingredients under the given branch so
// local development starts with something to count. Existing names are left
// untouched.
func EnsureDevCatalog(db *gorm.DB, branchID snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	catalog := []ingredientdomain.Ingredient{
		{Name: "Flour", Unit: "kg", UnitsPerPack: 10, PacksPerBox: 4},
		{Name: "Sugar", Unit: "kg", UnitsPerPack: 10, PacksPerBox: 4},
		{Name: "Eggs", Unit: "pcs", UnitsPerPack: 30, PacksPerBox: 12},
		{Name: "Milk", Unit: "l", UnitsPerPack: 12, PacksPerBox: 1},
		{Name: "Cooking Oil", Unit: "l", UnitsPerPack: 6, PacksPerBox: 2},
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range catalog {
			var existing ingredientdomain.Ingredient
			err := tx.Where("branch_id = ? AND name = ?", branchID, item.Name).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			item.ID = node.Generate()
			item.BranchID = branchID
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
