package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"harmonyclass-api/internal/apperror"

	"github.com/joho/godotenv"
)

const (
	MailingProviderStibee = "stibee"
	MailingProviderBrevo  = "brevo"
)

type Config struct {
	// Server configuration
	Port     string
	Mode     string
	LogLevel string

	// Database configuration
	DatabaseURL   string
	DBAutoMigrate bool

	// Redis configuration
	RedisURL string

	// Stripe configuration
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string

	// Plan shown on the checkout page when no Stripe price is preconfigured
	PlanName        string
	PlanDescription string
	PlanCurrency    string
	PlanUnitAmount  int64
	PlanInterval    string

	// Public site used for checkout redirects
	SiteURL string

	// Mailing list configuration
	MailingProvider      string
	StibeeAPIKey         string
	StibeeListID         string
	StibeeGroupFreeID    int64
	StibeeGroupPremiumID int64
	BrevoAPIKey          string
	BrevoListID          int64
	BrevoListFreeID      int64
	BrevoListPremiumID   int64

	// Hosted auth
	SupabaseJWTSecret string

	// News feed
	NaverClientID     string
	NaverClientSecret string

	// Limits
	ExternalCallTimeout time.Duration
	CheckoutRateLimit   time.Duration
	EventLedgerTTL      time.Duration
	NewsCacheTTL        time.Duration
}

var AppConfig *Config

func InitConfig() (*Config, error) {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = Load()
	return AppConfig, nil
}

// Load reads the configuration from the process environment
func Load() *Config {
	return &Config{
		Port:                 getEnv("PORT", "8080"),
		Mode:                 getEnv("GIN_MODE", "debug"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		DBAutoMigrate:        getEnvBool("DB_AUTO_MIGRATE", true),
		RedisURL:             getEnv("REDIS_URL", ""),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceID:        getEnv("STRIPE_PRICE_ID", ""),
		PlanName:             getEnv("PLAN_NAME", "harmonyclass Premium"),
		PlanDescription:      getEnv("PLAN_DESCRIPTION", "음악 교사를 위한 프리미엄 구독"),
		PlanCurrency:         getEnv("PLAN_CURRENCY", "krw"),
		PlanUnitAmount:       getEnvInt64("PLAN_UNIT_AMOUNT", 9900),
		PlanInterval:         getEnv("PLAN_INTERVAL", "month"),
		SiteURL:              strings.TrimRight(getEnv("SITE_URL", ""), "/"),
		MailingProvider:      strings.ToLower(getEnv("MAILING_PROVIDER", MailingProviderStibee)),
		StibeeAPIKey:         getEnv("STIBEE_API_KEY", ""),
		StibeeListID:         getEnv("STIBEE_LIST_ID", ""),
		StibeeGroupFreeID:    getEnvInt64("STIBEE_GROUP_FREE_ID", 0),
		StibeeGroupPremiumID: getEnvInt64("STIBEE_GROUP_PREMIUM_ID", 0),
		BrevoAPIKey:          getEnv("BREVO_API_KEY", ""),
		BrevoListID:          getEnvInt64("BREVO_LIST_ID", 0),
		BrevoListFreeID:      getEnvInt64("BREVO_LIST_FREE_ID", 0),
		BrevoListPremiumID:   getEnvInt64("BREVO_LIST_PREMIUM_ID", 0),
		SupabaseJWTSecret:    getEnv("SUPABASE_JWT_SECRET", ""),
		NaverClientID:        getEnv("NAVER_CLIENT_ID", ""),
		NaverClientSecret:    getEnv("NAVER_CLIENT_SECRET", ""),
		ExternalCallTimeout:  getEnvDuration("EXTERNAL_CALL_TIMEOUT", 10*time.Second),
		CheckoutRateLimit:    time.Duration(getEnvInt("CHECKOUT_RATE_LIMIT_SECONDS", 10)) * time.Second,
		EventLedgerTTL:       time.Duration(getEnvInt("EVENT_LEDGER_TTL_HOURS", 24)) * time.Hour,
		NewsCacheTTL:         time.Duration(getEnvInt("NEWS_CACHE_MINUTES", 10)) * time.Minute,
	}
}

// NewsletterGroups returns the free and premium group ids of the selected provider
func (c *Config) NewsletterGroups() (free, premium int64) {
	if c.MailingProvider == MailingProviderBrevo {
		return c.BrevoListFreeID, c.BrevoListPremiumID
	}
	return c.StibeeGroupFreeID, c.StibeeGroupPremiumID
}

// Missing lists the required parameters that are not set. The service still
// starts so that unrelated routes keep working; each missing value fails at
// its point of use with a ConfigurationError.
func (c *Config) Missing() []string {
	required := map[string]bool{
		"STRIPE_SECRET_KEY":     c.StripeSecretKey != "",
		"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret != "",
		"SITE_URL":              c.SiteURL != "",
	}

	free, premium := c.NewsletterGroups()
	switch c.MailingProvider {
	case MailingProviderBrevo:
		required["BREVO_API_KEY"] = c.BrevoAPIKey != ""
		required["BREVO_LIST_FREE_ID"] = free != 0
		required["BREVO_LIST_PREMIUM_ID"] = premium != 0
	default:
		required["STIBEE_API_KEY"] = c.StibeeAPIKey != ""
		required["STIBEE_LIST_ID"] = c.StibeeListID != ""
		required["STIBEE_GROUP_FREE_ID"] = free != 0
		required["STIBEE_GROUP_PREMIUM_ID"] = premium != 0
	}

	var missing []string
	for _, name := range sortedKeys(required) {
		if !required[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// Require returns value, or a ConfigurationError naming the parameter when it is blank
func Require(name, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", &apperror.ConfigurationError{Name: name}
	}
	return value, nil
}

// RequireID is Require for numeric identifiers, where zero means unset
func RequireID(name string, value int64) (int64, error) {
	if value == 0 {
		return 0, &apperror.ConfigurationError{Name: name}
	}
	return value, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
