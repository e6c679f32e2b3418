package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Creem    CreemConfig    `mapstructure:"creem"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug / info / warn / error
	Format string `mapstructure:"format"` // text（tint 彩色输出）/ json
}

type AppConfig struct {
	// BaseURL 前端站点地址，用于拼接 checkout / portal 的回跳地址
	BaseURL string `mapstructure:"base_url"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres / mysql / sqlite
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OAuthConfig struct {
	Google GoogleOAuthConfig `mapstructure:"google"`
}

type GoogleOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type CreemConfig struct {
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	// BaseURL 为空时根据 APIKey 前缀选择测试或正式环境
	BaseURL string `mapstructure:"base_url"`
}

type BillingConfig struct {
	// Provider 默认支付渠道：stripe / creem
	Provider              string `mapstructure:"provider"`
	SignupCredits         int64  `mapstructure:"signup_credits"`
	CheckoutSignupCredits int64  `mapstructure:"checkout_signup_credits"`
	// Plans provider -> billing period -> tier
	Plans map[string]map[string]map[string]PlanConfig `mapstructure:"plans"`
}

type PlanConfig struct {
	Name    string `mapstructure:"name"`
	PriceID string `mapstructure:"price_id"`
	Credits int64  `mapstructure:"credits"`
}

type WebhookConfig struct {
	MaxBodyBytes        int64 `mapstructure:"max_body_bytes"`
	EventRetentionHours int   `mapstructure:"event_retention_hours"`
}

// 兼容原前端项目的环境变量名
var envBindings = map[string]string{
	"stripe.secret_key":          "STRIPE_SECRET_KEY",
	"stripe.webhook_secret":      "STRIPE_WEBHOOK_SECRET",
	"creem.api_key":              "CREEM_API_KEY",
	"creem.webhook_secret":       "CREEM_WEBHOOK_SECRET",
	"app.base_url":               "NEXTAUTH_URL",
	"oauth.google.client_id":     "GOOGLE_CLIENT_ID",
	"oauth.google.client_secret": "GOOGLE_CLIENT_SECRET",
	"database.dsn":               "DATABASE_URL",
	"jwt.secret":                 "JWT_SECRET",
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Billing.Plans) == 0 {
		cfg.Billing.Plans = DefaultPlans()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("jwt.expire_hours", 168)
	v.SetDefault("billing.provider", "stripe")
	v.SetDefault("billing.signup_credits", 12)
	v.SetDefault("billing.checkout_signup_credits", 3)
	v.SetDefault("webhook.max_body_bytes", 64<<10)
	v.SetDefault("webhook.event_retention_hours", 720)
}

// Validate 启动时校验必需配置，缺失直接失败
func (c *Config) Validate() error {
	var missing []string
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Creem.WebhookSecret == "" {
		missing = append(missing, "CREEM_WEBHOOK_SECRET")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "jwt.secret")
	}
	if c.App.BaseURL == "" {
		missing = append(missing, "NEXTAUTH_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	switch c.Billing.Provider {
	case "stripe", "creem":
	default:
		return errors.New("billing.provider must be stripe or creem")
	}
	return nil
}

// Plan 查找套餐配置，key 统一按小写匹配（viper 会把 map key 转成小写）
func (b BillingConfig) Plan(provider, period, tier string) (PlanConfig, bool) {
	periods, ok := b.Plans[strings.ToLower(provider)]
	if !ok {
		return PlanConfig{}, false
	}
	tiers, ok := periods[strings.ToLower(period)]
	if !ok {
		return PlanConfig{}, false
	}
	plan, ok := tiers[strings.ToLower(tier)]
	return plan, ok
}

// DefaultPlans 默认套餐表，price_id 需在配置中填写
func DefaultPlans() map[string]map[string]map[string]PlanConfig {
	return map[string]map[string]map[string]PlanConfig{
		"stripe": {
			"monthly": {
				"starter": {Name: "Starter", Credits: 600},
				"pro":     {Name: "Pro", Credits: 1500},
				"elite":   {Name: "Elite", Credits: 3300},
			},
			"yearly": {
				"starter": {Name: "Starter", Credits: 7200},
				"pro":     {Name: "Pro", Credits: 18000},
				"elite":   {Name: "Elite", Credits: 39600},
			},
			"onetime": {
				"trial":   {Name: "Trial", Credits: 60},
				"starter": {Name: "Starter", Credits: 100},
				"pro":     {Name: "Pro", Credits: 11000},
				"elite":   {Name: "Elite", Credits: 19000},
			},
		},
		"creem": {
			"monthly": {
				"starter": {Name: "Starter", Credits: 100},
				"pro":     {Name: "Pro", Credits: 200},
				"premium": {Name: "Premium", Credits: 500},
			},
			"yearly": {
				"starter": {Name: "Starter", Credits: 1200},
				"pro":     {Name: "Pro", Credits: 2400},
				"premium": {Name: "Premium", Credits: 6000},
			},
			"onetime": {
				"starter": {Name: "Starter", Credits: 100},
				"pro":     {Name: "Pro", Credits: 200},
				"premium": {Name: "Premium", Credits: 500},
			},
		},
	}
}
