package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/cashier-stripe/docs"
	"github.com/fatflowers/cashier-stripe/internal/app/api/handlers"
	mw "github.com/fatflowers/cashier-stripe/internal/app/api/middleware"
	"github.com/fatflowers/cashier-stripe/internal/app/service/checkout"
	"github.com/fatflowers/cashier-stripe/internal/app/service/order"
	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/app/service/statistics"
	"github.com/fatflowers/cashier-stripe/internal/app/service/webhook"
	cfgpkg "github.com/fatflowers/cashier-stripe/pkg/config"
	metrics "github.com/fatflowers/cashier-stripe/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes.
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Log      *zap.SugaredLogger
	Cfg      *cfgpkg.Config
	DB       *gorm.DB
	Checkout *checkout.Service
	Sessions *session.Manager
	Webhooks *webhook.Reconciler
	Orders   *order.Service
	Stats    *statistics.Service
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	log, cfg := d.Log, d.Cfg
	if cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	var pinger handlers.Pinger
	if sqlDB, err := d.DB.DB(); err == nil {
		pinger = sqlDB
	} else {
		log.Warnw("health: no sql.DB behind gorm", "error", err)
	}
	handlers.RegisterHealthRoutes(r, pinger)

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())

	co := apiV1.Group("/checkout")
	co.Use(
		mw.RateLimitMiddleware(mw.NewRateLimiter(cfg.RateLimit.CheckoutRPS, cfg.RateLimit.CheckoutBurst)),
		mw.CheckoutSessionMiddleware(d.Sessions, cfg, log),
	)
	handlers.RegisterCheckoutRoutes(co, d.Checkout, cfg, log)

	mountWebhook(apiV1, d.Webhooks, log)

	admin := apiV1.Group("/admin")
	admin.Use(mw.AdminAuthMiddleware(cfg.AdminToken))
	handlers.RegisterAdminRoutes(admin, d.Orders, d.Stats)
}

// mountWebhook registers the gateway callback. Every delivery is answered
// with 200, so the group has no rate limit.
func mountWebhook(api *gin.RouterGroup, rec handlers.WebhookReconciler, log *zap.SugaredLogger) {
	handlers.RegisterWebhookRoutes(api.Group("/webhook"), rec, log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			// In-flight checkouts may be waiting on a charge claim.
			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
