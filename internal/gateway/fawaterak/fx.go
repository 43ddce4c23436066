package fawaterak

import (
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.fawaterak",
	fx.Provide(
		NewClient,
		func(c *Client) intentdomain.Gateway { return c },
	),
)
