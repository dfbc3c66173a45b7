package ban

import (
	"github.com/smallbiznis/worldpulse/internal/ban/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ban.service",
	fx.Provide(service.New),
)
