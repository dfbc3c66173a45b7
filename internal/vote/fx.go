package vote

import (
	"github.com/smallbiznis/worldpulse/internal/vote/service"
	"go.uber.org/fx"
)

var Module = fx.Module("vote.service",
	fx.Provide(service.New),
)
