package extraction

import "go.uber.org/fx"

var Module = fx.Module("extraction.client",
	fx.Provide(NewClient),
)
