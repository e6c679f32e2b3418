package dto

// CheckoutRequest 创建支付会话请求
type CheckoutRequest struct {
	BillingPeriod string `json:"billingPeriod" binding:"required,oneof=monthly yearly oneTime"`
	PlanTier      string `json:"planTier" binding:"required"`
	Provider      string `json:"provider,omitempty" binding:"omitempty,oneof=stripe creem"`
}

// CheckoutResponse 支付会话
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	Provider  string `json:"provider"`
}

// PortalRequest 客户中心请求
type PortalRequest struct {
	Provider string `json:"provider,omitempty" binding:"omitempty,oneof=stripe creem"`
}

// PortalResponse 客户中心地址
type PortalResponse struct {
	URL string `json:"url"`
}
