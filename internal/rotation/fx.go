package rotation

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("rotation",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Provide(NewHandover),
)

// Loop runs the rotation scheduler for the life of the app.
var Loop = fx.Invoke(func(lc fx.Lifecycle, sched *Scheduler) {
	start(lc, sched.RunForever)
})

// Follow runs the handover watcher for the life of the app.
var Follow = fx.Invoke(func(lc fx.Lifecycle, h *Handover) {
	start(lc, h.RunForever)
})

func start(lc fx.Lifecycle, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
