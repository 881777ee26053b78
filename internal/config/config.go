package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	HTTPAddr       string
	LogLevel       string
	LookbackDays   int
	PipelineBuffer int

	// Search backend
	SearchBackend    string
	ElasticURL       string
	ElasticUsername  string
	ElasticPassword  string
	SQLitePath       string

	// AI provider
	OpenAIKey   string
	OpenAIModel string

	// Notification destinations (optional)
	SlackWebhookURL    string
	ExternalWebhookURL string

	// Accounts
	Accounts []AccountConfig
}

// AccountConfig holds configuration for a single mail account
type AccountConfig struct {
	Name         string
	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPTLS      bool

	// LookbackDays overrides the global backfill window for this account.
	LookbackDays int
}

// Addr returns the host:port dial address for the account's IMAP server.
func (a *AccountConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.IMAPHost, a.IMAPPort)
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":3000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LookbackDays:       getEnvInt("SYNC_LOOKBACK_DAYS", 30),
		PipelineBuffer:     getEnvInt("PIPELINE_BUFFER", 256),
		SearchBackend:      getEnv("SEARCH_BACKEND", ""),
		ElasticURL:         getEnv("ELASTICSEARCH_URL", ""),
		ElasticUsername:    getEnv("ELASTICSEARCH_USERNAME", ""),
		ElasticPassword:    getEnv("ELASTICSEARCH_PASSWORD", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "/data/onebox.db"),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		SlackWebhookURL:    getEnv("SLACK_WEBHOOK_URL", ""),
		ExternalWebhookURL: getEnv("EXTERNAL_WEBHOOK_URL", ""),
	}

	accounts, err := loadAccounts(cfg.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	cfg.Accounts = accounts

	return cfg, nil
}

// loadAccounts loads mail account configurations from environment variables
// (ACCOUNT_1_*, ACCOUNT_2_*, etc.)
func loadAccounts(defaultLookback int) ([]AccountConfig, error) {
	var accounts []AccountConfig

	accountNum := 1
	for {
		account, err := loadAccountByNumber(accountNum, defaultLookback)
		if err != nil {
			break // No more accounts
		}
		accounts = append(accounts, *account)
		accountNum++
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in environment variables")
	}

	return accounts, nil
}

// loadAccountByNumber loads an account by number (ACCOUNT_1_*, ACCOUNT_2_*, etc.)
func loadAccountByNumber(num, defaultLookback int) (*AccountConfig, error) {
	prefix := fmt.Sprintf("ACCOUNT_%d_", num)

	host := getEnv(prefix+"IMAP_HOST", "")
	if host == "" {
		return nil, fmt.Errorf("account %d: IMAP_HOST is required", num)
	}

	name := getEnv(prefix+"NAME", "")
	if name == "" {
		name = fmt.Sprintf("account-%d", num)
	}

	return &AccountConfig{
		Name:         name,
		IMAPHost:     host,
		IMAPPort:     getEnvInt(prefix+"IMAP_PORT", 993),
		IMAPUsername: getEnv(prefix+"IMAP_USERNAME", ""),
		IMAPPassword: getEnv(prefix+"IMAP_PASSWORD", ""),
		IMAPTLS:      getEnvBool(prefix+"IMAP_TLS", true),
		LookbackDays: getEnvInt(prefix+"LOOKBACK_DAYS", defaultLookback),
	}, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	if c.LookbackDays < 1 {
		return fmt.Errorf("SYNC_LOOKBACK_DAYS must be at least 1")
	}

	if c.PipelineBuffer < 1 {
		return fmt.Errorf("PIPELINE_BUFFER must be at least 1")
	}

	switch c.SearchBackend {
	case "", "sqlite", "elasticsearch":
	default:
		return fmt.Errorf("unknown SEARCH_BACKEND: %s", c.SearchBackend)
	}

	if c.SearchBackend == "elasticsearch" && c.ElasticURL == "" {
		return fmt.Errorf("SEARCH_BACKEND=elasticsearch requires ELASTICSEARCH_URL")
	}

	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.IMAPHost == "" {
			return fmt.Errorf("account %s: IMAP_HOST is required", acc.Name)
		}
		if acc.IMAPUsername == "" {
			return fmt.Errorf("account %s: IMAP_USERNAME is required", acc.Name)
		}
		if acc.IMAPPassword == "" {
			return fmt.Errorf("account %s: IMAP_PASSWORD is required", acc.Name)
		}
		if acc.IMAPPort < 1 || acc.IMAPPort > 65535 {
			return fmt.Errorf("account %s: invalid IMAP_PORT", acc.Name)
		}
		if acc.LookbackDays < 1 {
			return fmt.Errorf("account %s: invalid LOOKBACK_DAYS", acc.Name)
		}
	}

	return nil
}

// AccountNames returns a list of all account names
func (c *Config) AccountNames() []string {
	names := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		names[i] = c.Accounts[i].Name
	}
	return names
}
