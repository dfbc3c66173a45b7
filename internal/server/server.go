package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/worldpulse/internal/config"
	"github.com/smallbiznis/worldpulse/internal/observability"
	obslogger "github.com/smallbiznis/worldpulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/worldpulse/internal/observability/metrics"
	obstracing "github.com/smallbiznis/worldpulse/internal/observability/tracing"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	queuedomain "github.com/smallbiznis/worldpulse/internal/queue/domain"
	"github.com/smallbiznis/worldpulse/internal/ratelimit"
	"github.com/smallbiznis/worldpulse/internal/tally"
	userstatsdomain "github.com/smallbiznis/worldpulse/internal/userstats/domain"
	votedomain "github.com/smallbiznis/worldpulse/internal/vote/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewVoterHasher),
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, origins []string) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(origins))
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, cfg config.Config) *gin.Engine {
	return NewEngine(obsCfg, cfg.CORSAllowedOrigins)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http.server.start", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	hasher   *VoterHasher
	limiter  *ratelimit.VoterLimiter
	metrics  *obsmetrics.Metrics
	registry *tally.Registry
	upgrader websocket.Upgrader

	voteSvc      votedomain.Service
	questionSvc  questiondomain.Service
	queueSvc     queuedomain.Service
	userStatsSvc userstatsdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Hasher       *VoterHasher
	Limiter      *ratelimit.VoterLimiter `optional:"true"`
	Metrics      *obsmetrics.Metrics     `optional:"true"`
	Registry     *tally.Registry
	VoteSvc      votedomain.Service
	QuestionSvc  questiondomain.Service
	QueueSvc     queuedomain.Service
	UserStatsSvc userstatsdomain.Service
}

func NewServer(p ServerParams) *Server {
	hasher := p.Hasher
	if hasher == nil {
		hasher = NewVoterHasher(p.Cfg)
	}
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http"),
		hasher:       hasher,
		limiter:      p.Limiter,
		metrics:      p.Metrics,
		registry:     p.Registry,
		upgrader:     newUpgrader(p.Cfg.CORSAllowedOrigins),
		voteSvc:      p.VoteSvc,
		questionSvc:  p.QuestionSvc,
		queueSvc:     p.QueueSvc,
		userStatsSvc: p.UserStatsSvc,
	}
}

func RegisterRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(VoterIdentity(s.hasher))

	api.POST("/votes", s.VoterRateLimit(), s.SubmitVote)
	api.GET("/votes/:questionId", s.GetVotes)
	api.GET("/votes/:questionId/check", s.CheckVote)

	api.GET("/questions/current", s.GetCurrentQuestion)
	api.GET("/questions/history", s.ListQuestionHistory)
	api.GET("/questions/:id", s.GetQuestion)

	api.GET("/queue", s.ListQueue)
	api.POST("/queue", s.VoterRateLimit(), s.SubmitQuestion)
	api.POST("/queue/:id/upvote", s.VoterRateLimit(), s.UpvoteQuestion)

	api.GET("/user/stats", s.GetUserStats)

	api.GET("/ws", s.StreamVotes)
}
