package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/qs3c/credit_go_server/config"
	"github.com/qs3c/credit_go_server/internal/model"
	"github.com/qs3c/credit_go_server/internal/model/dto"
	"github.com/qs3c/credit_go_server/internal/pkg/jwt"
	"github.com/qs3c/credit_go_server/internal/pkg/oauth"
	"github.com/qs3c/credit_go_server/internal/repository"
)

var (
	ErrDisposableEmail = errors.New("不支持临时邮箱登录")
	ErrEmptyEmail      = errors.New("邮箱不能为空")
)

// 临时邮箱域名
var disposableDomains = map[string]struct{}{
	"tempmail.com":      {},
	"10minutemail.com":  {},
	"guerrillamail.com": {},
	"throwawaymail.com": {},
	"mailinator.com":    {},
	"yopmail.com":       {},
	"sharklasers.com":   {},
	"getairmail.com":    {},
}

// GoogleProvider Google OAuth 客户端
type GoogleProvider interface {
	GetAuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	GetUser(ctx context.Context, token *oauth2.Token) (*oauth.GoogleUser, error)
}

type AuthService struct {
	userRepo *repository.UserRepository
	google   GoogleProvider
	cfg      *config.Config
	logger   *slog.Logger
}

func NewAuthService(userRepo *repository.UserRepository, google GoogleProvider, cfg *config.Config, logger *slog.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		google:   google,
		cfg:      cfg,
		logger:   logger,
	}
}

// GetGoogleAuthURL 获取 Google 授权 URL
func (s *AuthService) GetGoogleAuthURL(state string) string {
	return s.google.GetAuthURL(state)
}

// GoogleCallback 处理 Google OAuth 回调
func (s *AuthService) GoogleCallback(ctx context.Context, code string) (*dto.LoginResponse, error) {
	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	profile, err := s.google.GetUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get google user: %w", err)
	}

	return s.SignIn(ctx, profile)
}

// SignIn 拦截临时邮箱，写入或刷新用户资料，签发 token
func (s *AuthService) SignIn(ctx context.Context, profile *oauth.GoogleUser) (*dto.LoginResponse, error) {
	if IsDisposableEmail(profile.Email) {
		s.logger.Warn("blocked disposable email sign-in", "email", profile.Email)
		return nil, ErrDisposableEmail
	}

	user, created, err := s.UpsertUser(ctx, profile.Email, profile.Name, profile.Picture)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("user created", "user_id", user.ID, "credits", user.Credits)
	}

	token, err := jwt.GenerateToken(user.ID, user.Email, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		Token: token,
		User:  buildUserInfo(user),
	}, nil
}

// UpsertUser 新用户赠送注册积分；老用户只刷新昵称和头像，不动积分
func (s *AuthService) UpsertUser(ctx context.Context, email, name, avatar string) (*model.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, false, ErrEmptyEmail
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		if err := s.userRepo.UpdateProfile(ctx, user.ID, name, avatar); err != nil {
			return nil, false, fmt.Errorf("failed to update user: %w", err)
		}
		user.Name, user.Avatar = name, avatar
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	user = &model.User{
		Email:   email,
		Name:    name,
		Avatar:  avatar,
		Credits: s.cfg.Billing.SignupCredits,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 并发登录，另一请求已创建
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, getErr := s.userRepo.GetByEmail(ctx, email)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	return user, true, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// GetProfile 当前用户资料
func (s *AuthService) GetProfile(ctx context.Context, id string) (*dto.UserInfo, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildUserInfo(user), nil
}

// IsDisposableEmail 按域名判断
func IsDisposableEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	_, ok := disposableDomains[strings.ToLower(email[at+1:])]
	return ok
}

func buildUserInfo(user *model.User) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Avatar:  user.Avatar,
		Credits: user.Credits,
	}
	if !user.CreatedAt.IsZero() {
		info.CreatedAt = user.CreatedAt.Format(time.RFC3339)
	}
	return info
}
