// Package migration keeps the schema current on startup so local and
// self-hosted installs work out of the box.
package migration

import (
	"github.com/smallbiznis/larder/internal/config"
	"github.com/smallbiznis/larder/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if err := RunMigrations(conn); err != nil {
			return err
		}

		branch, err := seed.EnsureMainBranch(conn)
		if err != nil {
			return err
		}
		if cfg.SeedDevCatalog {
			return seed.EnsureDevCatalog(conn, branch.ID)
		}
		return nil
	}),
)
