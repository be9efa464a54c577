package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/clock"
	"github.com/postdeskhq/postdesk/internal/config"
	"github.com/postdeskhq/postdesk/internal/migration"
	"github.com/postdeskhq/postdesk/internal/observability"
	"github.com/postdeskhq/postdesk/internal/server"
	"github.com/postdeskhq/postdesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// HTTP API plus every domain module it serves
		server.Module,

		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
