package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/resumekit/entitled/internal/clock"
	"github.com/resumekit/entitled/internal/config"
	"github.com/resumekit/entitled/internal/entitlement"
	"github.com/resumekit/entitled/internal/flags"
	"github.com/resumekit/entitled/internal/ledger"
	"github.com/resumekit/entitled/internal/logger"
	"github.com/resumekit/entitled/internal/migration"
	"github.com/resumekit/entitled/internal/observability/metrics"
	"github.com/resumekit/entitled/internal/plan"
	"github.com/resumekit/entitled/internal/server"
	"github.com/resumekit/entitled/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// Domain
		plan.Module,
		flags.Module,
		ledger.Module,
		entitlement.Module,

		// Surface
		metrics.Module,
		server.Module,
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
