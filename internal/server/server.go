package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/resumekit/entitled/internal/config"
	entitlementdomain "github.com/resumekit/entitled/internal/entitlement/domain"
	ledgerdomain "github.com/resumekit/entitled/internal/ledger/domain"
	obsmetrics "github.com/resumekit/entitled/internal/observability/metrics"
	"github.com/resumekit/entitled/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	router  *gin.Engine
	log     *zap.Logger
	catalog *plan.Catalog

	engineSvc entitlementdomain.Service
	ledgerSvc ledgerdomain.Service
	metrics   *obsmetrics.Metrics
}

type ServerParam struct {
	fx.In

	Router  *gin.Engine
	Log     *zap.Logger
	Catalog *plan.Catalog
	Engine  entitlementdomain.Service
	Ledger  ledgerdomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.Metrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func NewServer(p ServerParam) *Server {
	s := &Server{
		router:    p.Router,
		log:       p.Log.Named("http.server"),
		catalog:   p.Catalog,
		engineSvc: p.Engine,
		ledgerSvc: p.Ledger,
		metrics:   p.Metrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	if s.metrics != nil {
		s.router.GET("/metrics", s.metrics.Handler())
	}

	v1 := s.router.Group("/v1")
	v1.POST("/authorize", s.Authorize)
	v1.GET("/accounts/:account_id/usage", s.UsageSummary)
	v1.GET("/accounts/:account_id/usage/history", s.UsageHistory)
	v1.PUT("/accounts/:account_id/capacity/:resource", s.ReportCapacity)
}

func run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)
