package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/credit_go_server/internal/api/middleware"
	"github.com/qs3c/credit_go_server/internal/model/dto"
	"github.com/qs3c/credit_go_server/internal/pkg/response"
	"github.com/qs3c/credit_go_server/internal/service"
)

type BillingHandler struct {
	billingService *service.BillingService
	logger         *slog.Logger
}

func NewBillingHandler(billingService *service.BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		logger:         logger,
	}
}

// Checkout 创建支付会话
// POST /api/v1/billing/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.billingService.CreateCheckout(c.Request.Context(), userID, middleware.GetUserEmail(c), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, resp)
}

// Portal 打开渠道客户中心
// POST /api/v1/billing/portal
func (h *BillingHandler) Portal(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.PortalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}

	resp, err := h.billingService.CreatePortal(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, resp)
}

func (h *BillingHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownPlan),
		errors.Is(err, service.ErrPlanNotPurchasable),
		errors.Is(err, service.ErrUnknownProvider):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrAlreadySubscribed):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrNoSubscription),
		errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrProviderFailed):
		h.logger.Error("payment provider call failed", "error", err)
		response.ProviderError(c, "")
	default:
		h.logger.Error("billing request failed", "error", err)
		response.ServerError(c, "")
	}
}
