package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/credit_go_server/config"
	"github.com/qs3c/credit_go_server/internal/api/handler"
	"github.com/qs3c/credit_go_server/internal/pkg/jwt"
	"github.com/qs3c/credit_go_server/internal/pkg/logger"
	"github.com/qs3c/credit_go_server/internal/pkg/metrics"
	"github.com/qs3c/credit_go_server/internal/pkg/oauth"
	"github.com/qs3c/credit_go_server/internal/pkg/payment"
	"github.com/qs3c/credit_go_server/internal/pkg/pubsub"
	"github.com/qs3c/credit_go_server/internal/pkg/response"
	"github.com/qs3c/credit_go_server/internal/pkg/ws"
	"github.com/qs3c/credit_go_server/internal/repository"
	"github.com/qs3c/credit_go_server/internal/service"
	"github.com/qs3c/credit_go_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupEngine(t *testing.T) (*gin.Engine, *config.Config, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		App:     config.AppConfig{BaseURL: "https://app.example.com"},
		JWT:     config.JWTConfig{Secret: "router-secret", ExpireHours: 1},
		CORS:    config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, AllowedMethods: []string{"GET", "POST"}},
		Stripe:  config.StripeConfig{WebhookSecret: "whsec_router"},
		Creem:   config.CreemConfig{WebhookSecret: "creem_router"},
		Billing: config.BillingConfig{Provider: "stripe", Plans: config.DefaultPlans()},
		Webhook: config.WebhookConfig{MaxBodyBytes: 64 << 10},
	}
	log := logger.Discard()
	m := metrics.New()

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	catalog := service.NewPlanCatalog(cfg.Billing)
	recon := service.NewReconciler(db, pubsub.NewPublisher(rdb), m, log)

	google := oauth.NewGoogleOAuth("client", "secret", "http://localhost/callback")
	router := NewRouter(
		handler.NewAuthHandler(service.NewAuthService(userRepo, google, cfg, log), oauth.NewStateStore(rdb), log),
		handler.NewUserHandler(service.NewUserService(userRepo, subRepo, repository.NewGenerationRepository(db))),
		handler.NewBillingHandler(service.NewBillingService(userRepo, subRepo, catalog, []payment.Provider{}, cfg, log), log),
		handler.NewWebhookHandler(
			service.NewStripeWebhookService(recon, catalog, cfg.Stripe.WebhookSecret, log),
			service.NewCreemWebhookService(recon, catalog, cfg.Creem.WebhookSecret, log),
			cfg.Webhook.MaxBodyBytes, log),
		handler.NewWebSocketHandler(ws.NewHub(log), cfg.JWT.Secret, cfg.CORS.AllowedOrigins, log),
		handler.NewHealthHandler(nil),
		m.Handler(),
		cfg,
		log,
	)

	cleanup := func() {
		rdb.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	}
	return router.Setup(), cfg, cleanup
}

func serve(engine http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRouter_WebhookPaths(t *testing.T) {
	engine, _, cleanup := setupEngine(t)
	defer cleanup()

	for _, path := range []string{"/api/stripe/webhooks", "/api/creem/webhooks"} {
		w := serve(engine, "POST", path, `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.JSONEq(t, `{"error":"Invalid signature"}`, w.Body.String())
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	engine, _, cleanup := setupEngine(t)
	defer cleanup()

	w := serve(engine, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(engine, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_AuthenticatedRoutes(t *testing.T) {
	engine, cfg, cleanup := setupEngine(t)
	defer cleanup()

	w := serve(engine, "GET", "/api/v1/user/credits", "", nil)
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeAuthFailed, resp.Code)

	token, err := jwt.GenerateToken("ghost", "", cfg.JWT.Secret, 1)
	require.NoError(t, err)

	w = serve(engine, "GET", "/api/v1/user/credits", "", map[string]string{"Authorization": "Bearer " + token})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestRouter_CORS(t *testing.T) {
	engine, _, cleanup := setupEngine(t)
	defer cleanup()

	w := serve(engine, "GET", "/api/v1/auth/google", "", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	// 预检请求没有对应路由也要放行
	w = serve(engine, "OPTIONS", "/api/v1/billing/checkout", "", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}
