package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/credit_go_server/config"
	"github.com/qs3c/credit_go_server/internal/api/handler"
	"github.com/qs3c/credit_go_server/internal/api/middleware"
)

type Router struct {
	authHandler      *handler.AuthHandler
	userHandler      *handler.UserHandler
	billingHandler   *handler.BillingHandler
	webhookHandler   *handler.WebhookHandler
	websocketHandler *handler.WebSocketHandler
	healthHandler    *handler.HealthHandler
	metricsHandler   http.Handler
	cfg              *config.Config
	logger           *slog.Logger
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	billingHandler *handler.BillingHandler,
	webhookHandler *handler.WebhookHandler,
	websocketHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	metricsHandler http.Handler,
	cfg *config.Config,
	logger *slog.Logger,
) *Router {
	return &Router{
		authHandler:      authHandler,
		userHandler:      userHandler,
		billingHandler:   billingHandler,
		webhookHandler:   webhookHandler,
		websocketHandler: websocketHandler,
		healthHandler:    healthHandler,
		metricsHandler:   metricsHandler,
		cfg:              cfg,
		logger:           logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.StructuredLogger(r.logger))
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", r.healthHandler.Health)
	if r.metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(r.metricsHandler))
	}

	// 渠道回调，不走 JWT
	engine.POST("/api/stripe/webhooks", r.webhookHandler.Stripe)
	engine.POST("/api/creem/webhooks", r.webhookHandler.Creem)

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.GET("/google", r.authHandler.GoogleAuth)
			auth.GET("/google/callback", r.authHandler.GoogleCallback)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.GET("/auth/me", r.authHandler.Me)

			user := authenticated.Group("/user")
			{
				user.GET("/credits", r.userHandler.GetCredits)
				user.GET("/dashboard", r.userHandler.GetDashboard)
				user.GET("/history", r.userHandler.ListHistory)
			}

			billing := authenticated.Group("/billing")
			{
				billing.POST("/checkout", r.billingHandler.Checkout)
				billing.POST("/portal", r.billingHandler.Portal)
			}
		}
	}

	return engine
}
