package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool

	// QuickBooks OAuth application credentials.
	QBOClientID     string
	QBOClientSecret string
	QBORedirectURI  string
	QBOAuthURL      string
	QBOTokenURL     string
	QBORevokeURL    string
	QBOAPIBaseURL   string
	// Fallback refresh-token lifetime when the provider omits
	// x_refresh_token_expires_in. Intuit documents ~100 days.
	QBORefreshTokenTTL time.Duration

	// Connect-state TTL in Redis.
	OAuthStateTTL time.Duration

	// Post-callback redirect targets on the frontend.
	AppBaseURL string

	// LLM transcript analysis.
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	// Hosted checkout.
	BillingSecretKey string
	BillingAPIURL    string
	BillingPriceID   string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		ServiceName:          getEnv("SERVICE_NAME", "quickscope"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),

		QBOClientID:        strings.TrimSpace(os.Getenv("QBO_CLIENT_ID")),
		QBOClientSecret:    strings.TrimSpace(os.Getenv("QBO_CLIENT_SECRET")),
		QBORedirectURI:     strings.TrimSpace(os.Getenv("QBO_REDIRECT_URI")),
		QBOAuthURL:         getEnv("QBO_AUTH_URL", "https://appcenter.intuit.com/connect/oauth2"),
		QBOTokenURL:        getEnv("QBO_TOKEN_URL", "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"),
		QBORevokeURL:       getEnv("QBO_REVOKE_URL", "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"),
		QBOAPIBaseURL:      getEnv("QBO_API_BASE_URL", "https://quickbooks.api.intuit.com"),
		QBORefreshTokenTTL: getDuration("QBO_REFRESH_TOKEN_TTL", 100*24*time.Hour),

		OAuthStateTTL: getDuration("OAUTH_STATE_TTL", 10*time.Minute),

		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:3000"),

		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),

		BillingSecretKey: os.Getenv("BILLING_SECRET_KEY"),
		BillingAPIURL:    getEnv("BILLING_API_URL", "https://api.stripe.com/v1"),
		BillingPriceID:   os.Getenv("BILLING_PRICE_ID"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.QBOClientID == "" || cfg.QBOClientSecret == "" {
		return Config{}, fmt.Errorf("QBO_CLIENT_ID and QBO_CLIENT_SECRET are required")
	}
	if cfg.QBORedirectURI == "" {
		return Config{}, fmt.Errorf("QBO_REDIRECT_URI is required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
