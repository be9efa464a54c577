// Command dispatcher runs the outbox drain on its own, for deployments that
// separate API traffic from job delivery.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/access"
	"github.com/postdeskhq/postdesk/internal/audit"
	"github.com/postdeskhq/postdesk/internal/clock"
	"github.com/postdeskhq/postdesk/internal/config"
	"github.com/postdeskhq/postdesk/internal/inbox"
	"github.com/postdeskhq/postdesk/internal/migration"
	"github.com/postdeskhq/postdesk/internal/observability"
	"github.com/postdeskhq/postdesk/internal/outbox"
	"github.com/postdeskhq/postdesk/internal/post"
	"github.com/postdeskhq/postdesk/internal/tenant"
	"github.com/postdeskhq/postdesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// The drain needs the completion path: outbox jobs advance posts,
		// which audit and notify.
		tenant.Module,
		access.Module,
		audit.Module,
		inbox.Module,
		post.Module,
		outbox.Module,

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
