package config

import "go.uber.org/fx"

// Module provides the environment-derived Config and the hot-reloaded
// moderation rules.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewModerationRulesHolder),
)
