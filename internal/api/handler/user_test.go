package handler

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/credit_go_server/internal/pkg/response"
	"github.com/qs3c/credit_go_server/internal/repository"
	"github.com/qs3c/credit_go_server/internal/service"
	"github.com/qs3c/credit_go_server/internal/testutil"
)

func setupUserHandler(t *testing.T) (*UserHandler, *testContext, func()) {
	t.Helper()

	ctx, cleanup := setupTestContext(t)
	userService := service.NewUserService(
		repository.NewUserRepository(ctx.DB),
		repository.NewSubscriptionRepository(ctx.DB),
		repository.NewGenerationRepository(ctx.DB),
	)
	return NewUserHandler(userService), ctx, cleanup
}

func userRouter(h *UserHandler, userID string) *gin.Engine {
	router := gin.New()
	group := router.Group("/user", mockAuth(userID, ""))
	group.GET("/credits", h.GetCredits)
	group.GET("/dashboard", h.GetDashboard)
	group.GET("/history", h.ListHistory)
	return router
}

func TestUserHandler_GetCredits(t *testing.T) {
	h, ctx, cleanup := setupUserHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB, testutil.WithCredits(321))

	resp := parseResponse(t, performRequest(userRouter(h, user.ID), "GET", "/user/credits", nil))
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(321), resp.Data.(map[string]interface{})["credits"])

	resp = parseResponse(t, performRequest(userRouter(h, "ghost"), "GET", "/user/credits", nil))
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestUserHandler_GetDashboard(t *testing.T) {
	h, ctx, cleanup := setupUserHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB)
	router := userRouter(h, user.ID)

	resp := parseResponse(t, performRequest(router, "GET", "/user/dashboard", nil))
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["has_paid_plan"])
	assert.Nil(t, data["subscription"])

	testutil.TestSubscription(t, ctx.DB, user.ID, testutil.WithPlan("yearly", "pro", 18000))

	resp = parseResponse(t, performRequest(router, "GET", "/user/dashboard", nil))
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["has_paid_plan"])
	sub := data["subscription"].(map[string]interface{})
	assert.Equal(t, "yearly", sub["billing_period"])
	assert.Equal(t, float64(18000), sub["credits_per_period"])
}

func TestUserHandler_ListHistory(t *testing.T) {
	h, ctx, cleanup := setupUserHandler(t)
	defer cleanup()

	user := testutil.TestUser(t, ctx.DB)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		testutil.TestGeneration(t, ctx.DB, user.ID, base.Add(time.Duration(i)*time.Minute))
	}
	router := userRouter(h, user.ID)

	resp := parseResponse(t, performRequest(router, "GET", "/user/history?page=1&limit=2", nil))
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["total"])
	assert.Len(t, data["items"], 2)

	resp = parseResponse(t, performRequest(router, "GET", "/user/history?limit=500", nil))
	assert.Equal(t, response.CodeParamError, resp.Code)
}
