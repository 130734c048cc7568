package branch

import (
	"github.com/smallbiznis/larder/internal/branch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("branch.service",
	fx.Provide(service.NewService),
)
