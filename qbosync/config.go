package qbosync

import (
	"os"
	"strings"
	"time"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

const (
	defaultTokenURL          = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	defaultSandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	defaultProductionBaseURL = "https://quickbooks.api.intuit.com"
)

// Config carries the QBO app credentials and environment selection. It is
// loaded once at process start; the base URL is a process-wide choice, never
// derived per request.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Environment  string
	TokenURL     string
	BaseURL      string
	MinorVersion string
	Timeout      time.Duration

	// DefaultItemRef is the QBO item used for invoice lines (milestone
	// billing has no product catalog). Defaults to the stock "Services"
	// item id.
	DefaultItemRef string
	// DefaultExpenseAccountRef is the QBO expense account bill lines post to.
	DefaultExpenseAccountRef string
}

// LoadConfig reads the QBO settings from the environment.
func LoadConfig() Config {
	cfg := Config{
		ClientID:     strings.TrimSpace(os.Getenv("QBO_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("QBO_CLIENT_SECRET")),
		RedirectURI:  strings.TrimSpace(os.Getenv("QBO_REDIRECT_URI")),
		Environment:  strings.ToLower(strings.TrimSpace(os.Getenv("QBO_ENVIRONMENT"))),
		TokenURL:     strings.TrimSpace(os.Getenv("QBO_TOKEN_URL")),
		MinorVersion: strings.TrimSpace(os.Getenv("QBO_MINOR_VERSION")),
		Timeout:      10 * time.Second,

		DefaultItemRef:           strings.TrimSpace(os.Getenv("QBO_DEFAULT_ITEM_REF")),
		DefaultExpenseAccountRef: strings.TrimSpace(os.Getenv("QBO_DEFAULT_EXPENSE_ACCOUNT_REF")),
	}
	if cfg.Environment != EnvironmentProduction {
		cfg.Environment = EnvironmentSandbox
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.BaseURL == "" {
		if cfg.Environment == EnvironmentProduction {
			cfg.BaseURL = defaultProductionBaseURL
		} else {
			cfg.BaseURL = defaultSandboxBaseURL
		}
	}
	if v := strings.TrimSpace(os.Getenv("QBO_API_BASE_URL")); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if cfg.MinorVersion == "" {
		cfg.MinorVersion = "65"
	}
	if cfg.DefaultItemRef == "" {
		cfg.DefaultItemRef = "1"
	}
	if v := strings.TrimSpace(os.Getenv("QBO_HTTP_TIMEOUT_SECONDS")); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}
