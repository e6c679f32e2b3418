package dto

// CreditsResponse 积分余额
type CreditsResponse struct {
	Credits int64 `json:"credits"`
}

// SubscriptionInfo 当前订阅
type SubscriptionInfo struct {
	Provider          string `json:"provider"`
	PlanName          string `json:"plan_name"`
	BillingPeriod     string `json:"billing_period"`
	PlanTier          string `json:"plan_tier"`
	Status            string `json:"status"`
	CreditsPerPeriod  int64  `json:"credits_per_period"`
	CurrentPeriodEnd  string `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

// DashboardResponse 控制台数据
type DashboardResponse struct {
	User         *UserInfo         `json:"user"`
	Subscription *SubscriptionInfo `json:"subscription"`
	HasPaidPlan  bool              `json:"has_paid_plan"`
}

// HistoryItem 生成记录
type HistoryItem struct {
	ID          int64  `json:"id"`
	URL         string `json:"url"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Model       string `json:"model"`
	CreditsUsed int64  `json:"credits_used"`
	CreatedAt   string `json:"created_at"`
}

// HistoryQuery 分页参数
type HistoryQuery struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}
