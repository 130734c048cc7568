package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/larder/internal/clock"
	"github.com/smallbiznis/larder/internal/config"
	"github.com/smallbiznis/larder/internal/migration"
	"github.com/smallbiznis/larder/internal/observability"
	"github.com/smallbiznis/larder/internal/server"
	"github.com/smallbiznis/larder/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)

	app.Run()
}

// RegisterSnowflake provides the ID generator node shared by every service.
func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
