package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	creemAPIBase     = "https://api.creem.io"
	creemTestAPIBase = "https://test-api.creem.io"
)

// CreemProvider Creem REST API 客户端
type CreemProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewCreemProvider baseURL 为空时，creem_test 开头的 key 使用测试环境
func NewCreemProvider(apiKey, baseURL string) *CreemProvider {
	if baseURL == "" {
		baseURL = creemAPIBase
		if strings.HasPrefix(apiKey, "creem_test") {
			baseURL = creemTestAPIBase
		}
	}
	return &CreemProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *CreemProvider) Name() string {
	return "creem"
}

func (p *CreemProvider) BaseURL() string {
	return p.baseURL
}

type creemCheckoutRequest struct {
	ProductID  string            `json:"product_id"`
	RequestID  string            `json:"request_id,omitempty"`
	SuccessURL string            `json:"success_url"`
	Customer   *creemCustomer    `json:"customer,omitempty"`
	Metadata   map[string]string `json:"metadata"`
}

type creemCustomer struct {
	Email string `json:"email"`
}

type creemCheckoutResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

func (p *CreemProvider) CreateCheckout(ctx context.Context, in CheckoutParams) (*CheckoutSession, error) {
	if in.PriceID == "" {
		return nil, ErrMissingPrice
	}

	req := creemCheckoutRequest{
		ProductID:  in.PriceID,
		RequestID:  fmt.Sprintf("%s-%d", in.UserID, time.Now().UnixNano()),
		SuccessURL: in.SuccessURL,
		Metadata:   in.Metadata(),
	}
	if in.Email != "" {
		req.Customer = &creemCustomer{Email: in.Email}
	}

	var resp creemCheckoutResponse
	if err := p.post(ctx, "/v1/checkouts", req, &resp); err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: resp.ID, URL: resp.CheckoutURL}, nil
}

// CreatePortal Creem 的客户中心不支持自定义回跳地址
func (p *CreemProvider) CreatePortal(ctx context.Context, customerID, _ string) (string, error) {
	var resp struct {
		CustomerPortalLink string `json:"customer_portal_link"`
	}
	if err := p.post(ctx, "/v1/customers/billing", map[string]string{"customer_id": customerID}, &resp); err != nil {
		return "", err
	}
	return resp.CustomerPortalLink, nil
}

func (p *CreemProvider) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal creem request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("creem request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("creem api error %d: %s", resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode creem response: %w", err)
	}
	return nil
}

// SignCreemPayload 计算 creem-signature：原始 body 的 HMAC-SHA256 十六进制
func SignCreemPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCreemSignature 常量时间比较
func VerifyCreemSignature(payload []byte, signature, secret string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" || secret == "" {
		return false
	}
	expected := SignCreemPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
