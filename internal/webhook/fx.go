package webhook

import (
	"github.com/maqraa/wallet/internal/config"
	"github.com/maqraa/wallet/internal/webhook/adapters"
	"github.com/maqraa/wallet/internal/webhook/adapters/fawaterak"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(
		newRegistry,
		NewService,
	),
)

func newRegistry(cfg config.Config) *adapters.Registry {
	return adapters.NewRegistry(
		fawaterak.NewAdapter(cfg.Fawaterak.APIKey),
	)
}
