package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/voyatra/hybridpay/internal/clock"
	"github.com/voyatra/hybridpay/internal/config"
	"github.com/voyatra/hybridpay/internal/entitlement"
	"github.com/voyatra/hybridpay/internal/eventbus"
	"github.com/voyatra/hybridpay/internal/manager"
	"github.com/voyatra/hybridpay/internal/observability/metrics"
	"github.com/voyatra/hybridpay/internal/orchestrator"
	"github.com/voyatra/hybridpay/internal/provider"
	"github.com/voyatra/hybridpay/internal/server"
	"github.com/voyatra/hybridpay/internal/validation"
	"github.com/voyatra/hybridpay/pkg/db"
	"github.com/voyatra/hybridpay/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,

		// Functional domains
		eventbus.Module,
		entitlement.Module,
		validation.Module,
		provider.Module,
		orchestrator.Module,
		manager.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
