package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/credit_go_server/internal/pkg/payment"
	"github.com/qs3c/credit_go_server/internal/pkg/response"
	"github.com/qs3c/credit_go_server/internal/service"
)

const (
	stripeSignatureHeader = "stripe-signature"
	creemSignatureHeader  = "creem-signature"
)

// WebhookProcessor 校验签名并处理一条渠道事件
type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signature string) (service.Outcome, error)
}

type WebhookHandler struct {
	stripe       WebhookProcessor
	creem        WebhookProcessor
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewWebhookHandler(stripe, creem WebhookProcessor, maxBodyBytes int64, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		stripe:       stripe,
		creem:        creem,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Stripe 回调
// POST /api/stripe/webhooks
func (h *WebhookHandler) Stripe(c *gin.Context) {
	h.handle(c, "stripe", h.stripe, stripeSignatureHeader)
}

// Creem 回调
// POST /api/creem/webhooks
func (h *WebhookHandler) Creem(c *gin.Context) {
	h.handle(c, "creem", h.creem, creemSignatureHeader)
}

func (h *WebhookHandler) handle(c *gin.Context, provider string, processor WebhookProcessor, header string) {
	signature := c.GetHeader(header)
	if signature == "" {
		h.logger.Warn("webhook signature missing", "provider", provider)
		response.WebhookBadRequest(c, response.WebhookInvalidSignature)
		return
	}

	// 签名按原始字节计算，不做任何解析
	body := c.Request.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBodyBytes)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		h.logger.Warn("webhook body unreadable", "provider", provider, "error", err)
		response.WebhookBadRequest(c, response.WebhookInvalidPayload)
		return
	}

	outcome, err := processor.Handle(c.Request.Context(), payload, signature)
	switch {
	case err == nil:
		response.WebhookReceived(c, string(outcome))
	case errors.Is(err, payment.ErrInvalidSignature):
		h.logger.Warn("webhook signature rejected", "provider", provider, "error", err)
		response.WebhookBadRequest(c, response.WebhookInvalidSignature)
	case errors.Is(err, payment.ErrInvalidPayload):
		h.logger.Warn("webhook payload rejected", "provider", provider, "error", err)
		response.WebhookBadRequest(c, response.WebhookInvalidPayload)
	default:
		h.logger.Error("webhook processing failed", "provider", provider, "error", err)
		response.WebhookServerError(c)
	}
}
