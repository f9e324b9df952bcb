package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CLOUTH_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CLOUTH_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (CLOUTH_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Gateway      GatewayConfig
	Shipping     ShippingConfig
	Invoice      InvoiceConfig
	SMS          SMSConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// GatewayConfig holds the payment gateway credentials and the store's
// receiving UPI account.
type GatewayConfig struct {
	BaseURL       string `default:"https://api.razorpay.com" usage:"Payment gateway API base URL" flag:"gateway-base-url"`
	KeyID         string `usage:"Gateway API key id" flag:"gateway-key-id"`
	KeySecret     string `usage:"Gateway API key secret, also signs checkout confirmations" flag:"gateway-key-secret"`
	WebhookSecret string `usage:"Gateway webhook signing secret (falls back to key secret)" flag:"gateway-webhook-secret"`
	ReceivingUPI  string `usage:"Store UPI id that receives payments" flag:"receiving-upi"`
}

// ShippingConfig controls the flat shipping fee rule.
type ShippingConfig struct {
	FreeOver float64 `default:"999" usage:"Subtotal above which shipping is free" flag:"free-shipping-over"`
	FlatFee  float64 `default:"49"  usage:"Flat shipping fee below the threshold" flag:"flat-shipping-fee"`
}

// InvoiceConfig controls where invoice artifacts go and how they are served.
type InvoiceConfig struct {
	Dir           string `default:"./invoices" usage:"Directory invoice files are written to" flag:"invoice-dir"`
	PublicBaseURL string `default:"/invoices"  usage:"Public base URL invoices are served under" flag:"invoice-base-url"`
	StoreName     string `default:"CLOUTH"     usage:"Store name printed on invoices" flag:"store-name"`
}

// SMSConfig holds the SMS provider settings. An empty API key switches
// the dispatcher to log-only mode.
type SMSConfig struct {
	APIKey        string `usage:"SMS provider API key (empty = log-only mode)" flag:"sms-api-key"`
	Endpoint      string `default:"https://www.fast2sms.com/dev/bulkV2" usage:"SMS provider endpoint" flag:"sms-endpoint"`
	OperatorPhone string `usage:"Operator phone for new-order notifications" flag:"operator-phone"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CLOUTH",
		Files:     []string{"config.yaml", "/etc/clouth/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CLOUTH_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Gateway.KeySecret == "" {
		return nil, errors.New("gateway key secret is required: set CLOUTH_GATEWAY_KEY_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and
// PORT to the application's CLOUTH_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
