package intent

import (
	"github.com/maqraa/wallet/internal/intent/repository"
	"github.com/maqraa/wallet/internal/intent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("intent.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
