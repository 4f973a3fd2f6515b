package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Cloudinary CloudinaryConfig
	Payment    PaymentConfig
	Valuation  ValuationConfig
	Points     PointsConfig
	Redis      RedisConfig
	Firebase   FirebaseConfig
	Recommend  RecommendConfig
	RateLimit  RateLimitConfig
	Admin      AdminConfig
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8099"`
	Env          string        `envconfig:"APP_ENV" default:"development"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
}

type DatabaseConfig struct {
	DSN             string        `envconfig:"DB_DSN" default:"bookswap:bookswap@tcp(localhost:3306)/bookswap?charset=utf8mb4&parseTime=True&loc=UTC"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"100"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

type JWTConfig struct {
	AccessSecret  string        `envconfig:"JWT_ACCESS_SECRET" default:"change-me-in-production"`
	RefreshSecret string        `envconfig:"JWT_REFRESH_SECRET" default:"change-me-refresh"`
	AccessExpiry  time.Duration `envconfig:"JWT_ACCESS_EXPIRY" default:"15m"`
	RefreshExpiry time.Duration `envconfig:"JWT_REFRESH_EXPIRY" default:"168h"`
	Issuer        string        `envconfig:"JWT_ISSUER" default:"bookswap"`
}

type CloudinaryConfig struct {
	CloudName string `envconfig:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `envconfig:"CLOUDINARY_API_KEY"`
	APISecret string `envconfig:"CLOUDINARY_API_SECRET"`
	Folder    string `envconfig:"CLOUDINARY_FOLDER" default:"bookswap/books"`
}

type PaymentConfig struct {
	StripeSecretKey string `envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	// AllowUnsigned must be set explicitly to run the webhook without a secret.
	AllowUnsigned bool   `envconfig:"PAYMENTS_ALLOW_UNSIGNED" default:"false"`
	Currency      string `envconfig:"PAYMENTS_CURRENCY" default:"usd"`
	SuccessURL    string `envconfig:"PAYMENTS_SUCCESS_URL" default:"http://localhost:3000/points?status=success"`
	CancelURL     string `envconfig:"PAYMENTS_CANCEL_URL" default:"http://localhost:3000/points?status=cancelled"`
}

type ValuationConfig struct {
	APIKey  string        `envconfig:"VALUATION_API_KEY"`
	BaseURL string        `envconfig:"VALUATION_BASE_URL"`
	Model   string        `envconfig:"VALUATION_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"VALUATION_TIMEOUT" default:"8s"`
}

type PointsConfig struct {
	ListingBonus  int64         `envconfig:"POINTS_LISTING_BONUS" default:"25"`
	RequestExpiry time.Duration `envconfig:"POINTS_REQUEST_EXPIRY" default:"168h"`
	ExpirySpec    string        `envconfig:"POINTS_EXPIRY_CRON" default:"@hourly"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type FirebaseConfig struct {
	ServiceAccountPath string `envconfig:"FIREBASE_SERVICE_ACCOUNT_PATH"`
}

type RecommendConfig struct {
	CandidateLimit int           `envconfig:"RECOMMEND_CANDIDATE_LIMIT" default:"200"`
	TrendingWindow time.Duration `envconfig:"RECOMMEND_TRENDING_WINDOW" default:"168h"`
	CacheTTL       time.Duration `envconfig:"RECOMMEND_CACHE_TTL" default:"5m"`
}

type AdminConfig struct {
	Email    string `envconfig:"ADMIN_EMAIL"`
	Password string `envconfig:"ADMIN_PASSWORD"`
	Username string `envconfig:"ADMIN_USERNAME" default:"admin"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	Burst             int     `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

// PointsPackage is a purchasable bundle of points.
type PointsPackage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Points      int64  `json:"points"`
	AmountCents int64  `json:"amount_cents"`
}

// Packages are fixed; prices are in the configured payment currency.
var Packages = []PointsPackage{
	{ID: "points_500", Name: "500 Points", Points: 500, AmountCents: 499},
	{ID: "points_1000", Name: "1,000 Points", Points: 1000, AmountCents: 899},
	{ID: "points_2500", Name: "2,500 Points", Points: 2500, AmountCents: 1999},
}

func FindPackage(id string) (PointsPackage, bool) {
	for _, p := range Packages {
		if p.ID == id {
			return p, true
		}
	}
	return PointsPackage{}, false
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	groups := []interface{}{
		&cfg.Server, &cfg.Database, &cfg.JWT, &cfg.Cloudinary, &cfg.Payment,
		&cfg.Valuation, &cfg.Points, &cfg.Redis, &cfg.Firebase, &cfg.Recommend, &cfg.RateLimit, &cfg.Admin,
	}
	for _, g := range groups {
		if err := envconfig.Process("", g); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var ErrUnsignedWebhooks = errors.New("STRIPE_WEBHOOK_SECRET is empty; set it or set PAYMENTS_ALLOW_UNSIGNED=true outside production")

func (c *Config) Validate() error {
	if c.Payment.WebhookSecret == "" {
		if c.IsProduction() || !c.Payment.AllowUnsigned {
			return ErrUnsignedWebhooks
		}
	}
	if c.Points.ListingBonus < 0 {
		return errors.New("config: POINTS_LISTING_BONUS must not be negative")
	}
	return nil
}
