package closing

import (
	"github.com/smallbiznis/larder/internal/closing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("closing.service",
	fx.Provide(service.NewService),
)
