package achievement

import (
	"github.com/smallbiznis/worldpulse/internal/achievement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("achievement.engine",
	fx.Provide(service.New),
)
