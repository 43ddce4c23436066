package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/maqraa/wallet/internal/config"
	"github.com/maqraa/wallet/internal/gateway/fawaterak"
	"github.com/maqraa/wallet/internal/intent"
	"github.com/maqraa/wallet/internal/ledger"
	"github.com/maqraa/wallet/internal/logger"
	"github.com/maqraa/wallet/internal/migration"
	obsmetrics "github.com/maqraa/wallet/internal/observability/metrics"
	"github.com/maqraa/wallet/internal/ratelimit"
	"github.com/maqraa/wallet/internal/server"
	"github.com/maqraa/wallet/internal/webhook"
	"github.com/maqraa/wallet/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		fawaterak.Module,
		intent.Module,
		ledger.Module,
		webhook.Module,
		ratelimit.Module,
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
