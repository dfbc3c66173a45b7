package tally

import "go.uber.org/fx"

var Module = fx.Module("tally",
	fx.Provide(NewRegistry),
	fx.Provide(NewReconciler),
)
