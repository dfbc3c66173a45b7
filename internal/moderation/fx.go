package moderation

import "go.uber.org/fx"

var Module = fx.Module("moderation",
	fx.Provide(NewHeuristic),
	fx.Provide(NewJudgeFromConfig),
	fx.Provide(NewChain),
)
