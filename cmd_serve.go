package main

import (
	"context"
	"fmt"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"herald_bot/content"
	"herald_bot/coord"
	"herald_bot/dal"
	"herald_bot/logic"
	"herald_bot/platform"
	"herald_bot/server"
	"herald_bot/shared"
	"herald_bot/texts"
	"net/http"
	"os"
	"time"
)

// Room for the HTTP server and the store on top of the workers' shutdown wait
const stopTimeoutSlackSec = 5

type ServeCmd struct{}

type initErrorHandler struct {
}

func (*initErrorHandler) HandleError(err error) {
	fmt.Fprintf(os.Stderr, "Failed to initialize dependency injection\n%v", err)
}

func (s *ServeCmd) Run(ctx *Context) error {

	provideConfig := func() *shared.Config {
		return ctx.cfg
	}
	provideLogger := func() shared.ILogger {
		return ctx.logger
	}

	app := fx.New(
		fx.NopLogger,
		fx.StopTimeout(ctx.cfg.ShutdownWait()+stopTimeoutSlackSec*time.Second),
		fx.Provide(
			provideConfig,
			provideLogger,
			shared.NewUserAgent,
			texts.NewTexts,
			dal.NewStore,
			func(store dal.IStore) dal.ISettingsRepo { return store },
			coord.NewLock,
			platform.NewMastodon,
			content.NewChatGenerator,
			content.NewTopicSource,
			logic.NewMetrics,
			logic.NewGate,
			logic.NewQualityScorer,
			logic.NewConversation,
			logic.NewReplier,
			logic.NewIngester,
			logic.NewTimelinePoster,
			logic.NewDraftService,
			asWorker(logic.NewIngestionWorker),
			asWorker(logic.NewTimelineWorker),
			asWorker(logic.NewDraftPublisherWorker),
			asWorker(logic.NewDraftExpirerWorker),
			asWorker(logic.NewProfiler),
			fx.Annotate(logic.NewSupervisor, fx.ParamTags(``, ``, ``, `group:"workers"`)),
			server.NewHTTPServer,
			fx.Annotate(server.NewMux, fx.ParamTags(`group:"handler_group"`)),
			asHandlerGroupDef(server.NewHealthHandlerGroup),
			asHandlerGroupDef(server.NewMetricsHandlerGroup),
			asHandlerGroupDef(server.NewDraftHandlerGroup),
			asHandlerGroupDef(server.NewSettingsHandlerGroup),
		),
		fx.Invoke(
			func(store dal.IStore) { store.InitUpdateDb() },
			registerHooks,
			func(*http.Server) {},
		),
		fx.ErrorHook(&initErrorHandler{}),
	)
	app.Run()
	return nil
}

func asHandlerGroupDef(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(server.IHandlerGroup)),
		fx.ResultTags(`group:"handler_group"`),
	)
}

func asWorker(f any) any {
	return fx.Annotate(
		f,
		fx.ResultTags(`group:"workers"`),
	)
}

// Registered before the HTTP server, so on shutdown the server goes first, then the workers, then the store.
func registerHooks(
	lc fx.Lifecycle,
	logger shared.ILogger,
	metrics logic.IMetrics,
	supervisor logic.ISupervisor,
	store dal.IStore,
) {
	lc.Append(
		fx.Hook{
			OnStart: func(ctx context.Context) error {
				logger.Printf("Application starting up")
				metrics.ServiceStarted()
				return supervisor.Start(ctx)
			},
			OnStop: func(ctx context.Context) error {
				logger.Printf("Application shutting down")
				return multierr.Combine(supervisor.Stop(ctx), store.Close())
			},
		},
	)
}
