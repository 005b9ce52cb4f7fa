package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	DynamoTables DynamoTables

	// S3 bucket holding email subject/body templates. Empty disables the
	// remote template store and the embedded defaults are used.
	TemplateBucket string

	// SNS topic for post-dispatch outcome events. Empty disables publishing.
	OutcomeTopicARN string

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPFromName string
	SMTPUsername string
	SMTPPassword string

	// OAuth client ID the identity assertions must be issued for.
	GoogleClientID string

	// CAPTCHA verification; empty secret disables the check entirely.
	CaptchaSecret    string
	CaptchaVerifyURL string
	CaptchaMinScore  float64

	AllowedOrigins []string // CORS / origin allowlist

	// Fixed-window rate limit for the auth-event endpoint.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Suppression window for login emails when the assertion carries no
	// auth_time claim.
	LoginEmailCooldown time.Duration
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	EmailState string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		DynamoTables: DynamoTables{
			EmailState: getEnv("DYNAMO_TABLE_EMAIL_STATE", "email_state"),
		},

		TemplateBucket:  getEnv("TEMPLATE_BUCKET", ""),
		OutcomeTopicARN: getEnv("OUTCOME_TOPIC_ARN", ""),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Sofull"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),

		CaptchaSecret:    getEnv("CAPTCHA_SECRET", ""),
		CaptchaVerifyURL: getEnv("CAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
		CaptchaMinScore:  getEnvFloat("CAPTCHA_MIN_SCORE", 0.5),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),

		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 5),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", 10*time.Minute),

		LoginEmailCooldown: getEnvDuration("LOGIN_EMAIL_COOLDOWN", 12*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
