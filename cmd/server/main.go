package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/credit_go_server/config"
	"github.com/qs3c/credit_go_server/internal/api"
	"github.com/qs3c/credit_go_server/internal/api/handler"
	"github.com/qs3c/credit_go_server/internal/database"
	"github.com/qs3c/credit_go_server/internal/pkg/cron"
	"github.com/qs3c/credit_go_server/internal/pkg/logger"
	"github.com/qs3c/credit_go_server/internal/pkg/metrics"
	"github.com/qs3c/credit_go_server/internal/pkg/oauth"
	"github.com/qs3c/credit_go_server/internal/pkg/payment"
	"github.com/qs3c/credit_go_server/internal/pkg/pubsub"
	"github.com/qs3c/credit_go_server/internal/pkg/ws"
	"github.com/qs3c/credit_go_server/internal/repository"
	"github.com/qs3c/credit_go_server/internal/service"
)

var configPath = flag.String("config", "config.yaml", "Path to config file")

func main() {
	flag.Parse()

	// .env 可选，不存在时只走环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded:", err)
	}

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log)
	slog.SetDefault(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) error {
	// 初始化数据库
	db, err := database.NewDB(ctx, &cfg.Database, appLogger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// 初始化 Redis
	rdb, err := database.NewRedis(ctx, &cfg.Redis, appLogger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	m := metrics.New()

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	genRepo := repository.NewGenerationRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)

	// 支付渠道
	stripeProvider := payment.NewStripeProvider(cfg.Stripe.SecretKey, appLogger)
	creemProvider := payment.NewCreemProvider(cfg.Creem.APIKey, cfg.Creem.BaseURL)

	// 初始化 Service
	catalog := service.NewPlanCatalog(cfg.Billing)
	reconciler := service.NewReconciler(db, pubsub.NewPublisher(rdb), m, appLogger)
	stripeWebhooks := service.NewStripeWebhookService(reconciler, catalog, cfg.Stripe.WebhookSecret, appLogger)
	creemWebhooks := service.NewCreemWebhookService(reconciler, catalog, cfg.Creem.WebhookSecret, appLogger)

	google := oauth.NewGoogleOAuth(cfg.OAuth.Google.ClientID, cfg.OAuth.Google.ClientSecret, cfg.OAuth.Google.RedirectURI)
	authService := service.NewAuthService(userRepo, google, cfg, appLogger)
	userService := service.NewUserService(userRepo, subRepo, genRepo)
	billingService := service.NewBillingService(userRepo, subRepo, catalog,
		[]payment.Provider{stripeProvider, creemProvider}, cfg, appLogger)

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub(appLogger)

	// 初始化 Handler
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, appLogger)
	router := api.NewRouter(
		handler.NewAuthHandler(authService, oauth.NewStateStore(rdb), appLogger),
		handler.NewUserHandler(userService),
		handler.NewBillingHandler(billingService, appLogger),
		handler.NewWebhookHandler(stripeWebhooks, creemWebhooks, cfg.Webhook.MaxBodyBytes, appLogger),
		websocketHandler,
		handler.NewHealthHandler(map[string]handler.Pinger{
			"database": handler.PingFunc(sqlDB.PingContext),
			"redis":    handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		}),
		m.Handler(),
		cfg,
		appLogger,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(appLogger.Handler(), slog.LevelError),
	}

	cronService := cron.NewService(eventRepo, cfg.Webhook.EventRetentionHours, appLogger)
	cronService.Start()
	defer cronService.Stop()

	g, gctx := errgroup.WithContext(ctx)

	// 启动服务器
	g.Go(func() error {
		appLogger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 积分变动推送到在线连接
	g.Go(func() error {
		err := pubsub.NewSubscriber(rdb).Subscribe(gctx, websocketHandler.ForwardCredits)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("credits subscriber: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
