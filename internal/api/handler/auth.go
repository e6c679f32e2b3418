package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/credit_go_server/internal/api/middleware"
	"github.com/qs3c/credit_go_server/internal/pkg/oauth"
	"github.com/qs3c/credit_go_server/internal/pkg/response"
	"github.com/qs3c/credit_go_server/internal/service"
)

// StateStore OAuth state 的生成与一次性校验
type StateStore interface {
	GenerateState(ctx context.Context, callbackURL string) (string, error)
	ValidateState(ctx context.Context, state string) (string, error)
}

type AuthHandler struct {
	authService *service.AuthService
	states      StateStore
	logger      *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, states StateStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		states:      states,
		logger:      logger,
	}
}

// GoogleAuth 跳转 Google 授权页
// GET /api/v1/auth/google?callback_url=xxx
func (h *AuthHandler) GoogleAuth(c *gin.Context) {
	state, err := h.states.GenerateState(c.Request.Context(), c.Query("callback_url"))
	if err != nil {
		h.logger.Error("failed to generate oauth state", "error", err)
		response.ServerError(c, "")
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, h.authService.GetGoogleAuthURL(state))
}

// GoogleCallback Google 登录回调
// GET /api/v1/auth/google/callback?code=xxx&state=xxx
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.ParamError(c, "缺少授权码")
		return
	}

	callbackURL, err := h.states.ValidateState(c.Request.Context(), c.Query("state"))
	if err != nil {
		if errors.Is(err, oauth.ErrEmptyState) || errors.Is(err, oauth.ErrInvalidState) {
			response.AuthError(c, "登录状态无效或已过期")
			return
		}
		response.ServerError(c, "")
		return
	}

	resp, err := h.authService.GoogleCallback(c.Request.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDisposableEmail):
			response.PermissionError(c, err.Error())
		case errors.Is(err, service.ErrEmptyEmail):
			response.ParamError(c, err.Error())
		default:
			h.logger.Error("google sign-in failed", "error", err)
			response.AuthError(c, "Google 登录失败")
		}
		return
	}

	if target := withToken(callbackURL, resp.Token); target != "" {
		c.Redirect(http.StatusTemporaryRedirect, target)
		return
	}
	response.SuccessWithMessage(c, "登录成功", resp)
}

// Me 当前登录用户
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.authService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, info)
}

// withToken 把 token 拼到回跳地址上，地址为空或不合法时返回空串
func withToken(callbackURL, token string) string {
	if callbackURL == "" {
		return ""
	}
	u, err := url.Parse(callbackURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
