package userstats

import (
	"github.com/smallbiznis/worldpulse/internal/userstats/service"
	"go.uber.org/fx"
)

var Module = fx.Module("userstats.service",
	fx.Provide(service.New),
)
