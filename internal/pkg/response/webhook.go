package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// webhook 回调不走统一响应结构，渠道只关心状态码
const (
	WebhookInvalidSignature = "Invalid signature"
	WebhookInvalidPayload   = "Invalid payload"
	WebhookProcessingFailed = "Webhook processing failed"
)

// WebhookAck 渠道回调的成功应答
type WebhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status,omitempty"`
}

// WebhookFailure 渠道回调的失败应答
type WebhookFailure struct {
	Error string `json:"error"`
}

// WebhookReceived 200 {received:true}
func WebhookReceived(c *gin.Context, status string) {
	c.JSON(http.StatusOK, WebhookAck{Received: true, Status: status})
}

// WebhookBadRequest 400，签名或载荷错误，渠道不会重试
func WebhookBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, WebhookFailure{Error: message})
}

// WebhookServerError 500，渠道会重新投递
func WebhookServerError(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, WebhookFailure{Error: WebhookProcessingFailed})
}
