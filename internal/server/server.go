package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/config"
	notificationdomain "github.com/smallbiznis/subtrack/internal/notification/domain"
	"github.com/smallbiznis/subtrack/internal/observability"
	obsmiddleware "github.com/smallbiznis/subtrack/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/subtrack/internal/observability/metrics"
	obstracing "github.com/smallbiznis/subtrack/internal/observability/tracing"
	"github.com/smallbiznis/subtrack/internal/reminder"
	subscriptiondomain "github.com/smallbiznis/subtrack/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if httpMetrics != nil {
		r.GET("/metrics", gin.WrapH(httpMetrics.Handler()))
	}

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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

// reminderSweeper is the part of the reminder service the manual trigger needs.
type reminderSweeper interface {
	SweepDay(ctx context.Context, today time.Time) (reminder.SweepResult, error)
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	clock  clock.Clock

	subscriptionSvc subscriptiondomain.Service
	notificationSvc notificationdomain.Service
	reminderSvc     reminderSweeper
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	NotificationSvc notificationdomain.Service
	ReminderSvc     *reminder.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		notificationSvc: p.NotificationSvc,
	}
	if p.ReminderSvc != nil {
		s.reminderSvc = p.ReminderSvc
	}

	s.RegisterAPIRoutes()
	return s
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(OwnerContext())

	subscriptions := api.Group("/subscriptions")
	{
		subscriptions.POST("", s.CreateSubscription)
		subscriptions.GET("", s.ListSubscriptions)
		subscriptions.GET("/:id", s.GetSubscriptionByID)
		subscriptions.PATCH("/:id", s.UpdateSubscription)
		subscriptions.POST("/:id/archive", s.ArchiveSubscription)
		subscriptions.POST("/:id/renew", s.RenewSubscription)
		subscriptions.GET("/:id/price-history", s.ListPriceHistory)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("", s.ListNotifications)
		notifications.PATCH("/:id/read", s.MarkNotificationRead)
		notifications.POST("/read-all", s.MarkAllNotificationsRead)
		notifications.GET("/unread-count", s.UnreadNotificationCount)
		if !s.cfg.IsProduction() && s.reminderSvc != nil {
			notifications.POST("/generate-reminders", s.GenerateReminders)
		}
	}
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}
