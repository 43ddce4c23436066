package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maqraa/wallet/internal/config"
	gatewayfawaterak "github.com/maqraa/wallet/internal/gateway/fawaterak"
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
	ledgerdomain "github.com/maqraa/wallet/internal/ledger/domain"
	obsmiddleware "github.com/maqraa/wallet/internal/observability/logger"
	obsmetrics "github.com/maqraa/wallet/internal/observability/metrics"
	"github.com/maqraa/wallet/internal/ratelimit"
	webhookdomain "github.com/maqraa/wallet/internal/webhook/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           cfg.Environment != "production",
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(metrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		metrics.Registry(),
		promhttp.HandlerOpts{},
	)))

	return r
}

func registerGin(cfg config.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(cfg, metrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine         *gin.Engine
	cfg            config.Config
	intentSvc      intentdomain.Service
	ledgerSvc      ledgerdomain.Service
	webhookSvc     webhookdomain.Service
	gateway        *gatewayfawaterak.Client
	metrics        *obsmetrics.Metrics
	webhookLimiter *ratelimit.WebhookLimiter
	methodsCache   *paymentMethodsCache
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	IntentSvc      intentdomain.Service
	LedgerSvc      ledgerdomain.Service
	WebhookSvc     webhookdomain.Service
	Gateway        *gatewayfawaterak.Client
	Metrics        *obsmetrics.Metrics
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		intentSvc:      p.IntentSvc,
		ledgerSvc:      p.LedgerSvc,
		webhookSvc:     p.WebhookSvc,
		gateway:        p.Gateway,
		metrics:        p.Metrics,
		webhookLimiter: p.WebhookLimiter,
		methodsCache:   newPaymentMethodsCache(5 * time.Minute),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	payment := api.Group("/payment")
	payment.POST("/create", s.RequireUser(), s.HandleCreatePayment)
	payment.GET("/status/:intentId", s.RequireUser(), s.HandlePaymentStatus)
	payment.GET("/check/:invoiceKey", s.RequireUser(), s.HandlePaymentCheck)
	payment.GET("/methods", s.HandlePaymentMethods)
	payment.POST("/hash", s.HandlePluginHash)

	webhook := payment.Group("/webhook", s.WebhookRateLimit())
	webhook.POST("", s.HandleWebhook(""))
	webhook.POST("/paid", s.HandleWebhook("paid"))
	webhook.POST("/failed", s.HandleWebhook("failed"))
	webhook.POST("/cancelled", s.HandleWebhook("cancelled"))
	webhook.POST("/refund", s.HandleWebhook("refund"))

	balance := api.Group("/balance", s.RequireUser())
	balance.GET("", s.HandleBalance)
	balance.GET("/transactions", s.HandleTransactions)
	balance.POST("/purchase", s.HandlePurchase)
}
