package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is sent when an account does not configure one
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// DefaultRulesURL serves the dynamic header-signing rules
	DefaultRulesURL = "https://raw.githubusercontent.com/DATAHOARDERS/dynamic-rules/main/onlyfans.json"

	envPrefix = "FANSYNC_"
)

// Config holds all configuration options for fansync
type Config struct {
	Accounts  []Account       `yaml:"accounts" json:"accounts" validate:"dive"`
	API       APIConfig       `yaml:"api" json:"api"`
	Rules     RulesConfig     `yaml:"rules" json:"rules"`
	Download  DownloadConfig  `yaml:"download" json:"download"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// Account is one authenticated session. Cookie, UserAgent and XBCNonce may
// be left empty in the file and supplied by the credential store.
type Account struct {
	Name          string `yaml:"name" json:"name" validate:"required"`
	Cookie        string `yaml:"cookie,omitempty" json:"cookie,omitempty"`
	UserAgent     string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	XBCNonce      string `yaml:"x_bc_nonce,omitempty" json:"x_bc_nonce,omitempty" validate:"omitempty,len=40,alphanum"`
	DownloadRoot  string `yaml:"download_root" json:"download_root" default:"./downloads"`
	SkipTemporary bool   `yaml:"skip_temporary" json:"skip_temporary"`
	Proxy         string `yaml:"proxy,omitempty" json:"proxy,omitempty" validate:"omitempty,url"`
}

// APIConfig describes the remote API
type APIConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url" default:"https://onlyfans.com" validate:"required,url"`
	PageSize       int           `yaml:"page_size" json:"page_size" default:"10" validate:"min=1,max=100"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" default:"30s" validate:"gt=0"`
}

// RulesConfig selects where header-signing rules come from. File wins over
// URL when both are set.
type RulesConfig struct {
	URL  string `yaml:"url" json:"url" default:"https://raw.githubusercontent.com/DATAHOARDERS/dynamic-rules/main/onlyfans.json" validate:"omitempty,url"`
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// DownloadConfig holds the scheduler settings
type DownloadConfig struct {
	FetchWorkers    int           `yaml:"fetch_workers" json:"fetch_workers" default:"3" validate:"min=1,max=32"`
	DownloadWorkers int           `yaml:"download_workers" json:"download_workers" default:"3" validate:"min=1,max=32"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" default:"10m" validate:"gt=0"`
	UserCacheSize   int           `yaml:"user_cache_size" json:"user_cache_size" default:"512" validate:"min=1"`
	DecodeErrorDir  string        `yaml:"decode_error_dir,omitempty" json:"decode_error_dir,omitempty"`
	ReportDir       string        `yaml:"report_dir,omitempty" json:"report_dir,omitempty"`
	Interval        time.Duration `yaml:"interval" json:"interval" default:"5s" validate:"gt=0"`
}

// RetryConfig bounds transport retries
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts" default:"4" validate:"min=1,max=20"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay" default:"1s" validate:"gt=0"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay" default:"30s" validate:"gtefield=BaseDelay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier" default:"2" validate:"gte=1"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor" default:"0.1" validate:"min=0,max=1"`
}

// RateLimitConfig holds the per-account request budget
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" default:"5" validate:"gt=0"`
	Burst             int     `yaml:"burst" json:"burst" default:"5" validate:"min=1"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level" default:"info" validate:"oneof=trace debug info warn warning error disabled"`
	File    string `yaml:"file,omitempty" json:"file,omitempty"`
	JSON    bool   `yaml:"json" json:"json"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// MetricsConfig controls the optional Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr" default:":9090" validate:"required_if=Enabled true"`
}

// DefaultConfig returns a Config instance with every default applied
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Only reachable when a default tag is malformed.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// ApplyDefaults fills zero-valued fields, including every account entry
func (c *Config) ApplyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	for i := range c.Accounts {
		if err := defaults.Set(&c.Accounts[i]); err != nil {
			return fmt.Errorf("failed to apply defaults to account %q: %w", c.Accounts[i].Name, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from FANSYNC_* environment variables.
// FANSYNC_COOKIE and friends describe a single account named by
// FANSYNC_ACCOUNT (default "default"), replacing an entry of that name or
// appending one.
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv(envPrefix + "API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "RULES_URL"); v != "" {
		c.Rules.URL = v
	}
	if v := os.Getenv(envPrefix + "RULES_FILE"); v != "" {
		c.Rules.File = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = v
	}
	if v := os.Getenv(envPrefix + "DECODE_ERROR_DIR"); v != "" {
		c.Download.DecodeErrorDir = v
	}

	intVars := map[string]*int{
		"PAGE_SIZE":        &c.API.PageSize,
		"FETCH_WORKERS":    &c.Download.FetchWorkers,
		"DOWNLOAD_WORKERS": &c.Download.DownloadWorkers,
		"MAX_RETRIES":      &c.Retry.MaxAttempts,
	}
	for name, dst := range intVars {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s%s must be a positive integer, got %q", envPrefix, name, v))
			continue
		}
		*dst = n
	}

	cookie := os.Getenv(envPrefix + "COOKIE")
	if cookie != "" {
		name := os.Getenv(envPrefix + "ACCOUNT")
		if name == "" {
			name = "default"
		}
		acct := c.Account(name)
		if acct == nil {
			c.Accounts = append(c.Accounts, Account{Name: name})
			acct = &c.Accounts[len(c.Accounts)-1]
		}
		acct.Cookie = cookie
		if v := os.Getenv(envPrefix + "USER_AGENT"); v != "" {
			acct.UserAgent = v
		}
		if v := os.Getenv(envPrefix + "X_BC"); v != "" {
			acct.XBCNonce = v
		}
		if v := os.Getenv(envPrefix + "DOWNLOAD_ROOT"); v != "" {
			acct.DownloadRoot = v
		}
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for a config file in the standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".fansync.yaml",
		".fansync.yml",
		filepath.Join(home, ".config", "fansync", "config.yaml"),
		filepath.Join(home, ".config", "fansync", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Account returns the account with the given name, or nil
func (c *Config) Account(name string) *Account {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i]
		}
	}
	return nil
}

// Validate checks struct constraints and cross-account rules
func (c *Config) Validate() error {
	var errs []error

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, formatFieldError(fe))
			}
		} else {
			errs = append(errs, err)
		}
	}

	seen := make(map[string]bool, len(c.Accounts))
	for _, acct := range c.Accounts {
		if seen[acct.Name] {
			errs = append(errs, fmt.Errorf("duplicate account name %q", acct.Name))
		}
		seen[acct.Name] = true
	}

	return errors.Join(errs...)
}

// ValidateCredentials reports accounts that cannot authenticate. It is run
// after credentials from the store have been merged in.
func (c *Config) ValidateCredentials() error {
	if len(c.Accounts) == 0 {
		return errors.New("no accounts configured")
	}
	var errs []error
	for _, acct := range c.Accounts {
		if acct.Cookie == "" {
			errs = append(errs, fmt.Errorf("account %q has no session cookie", acct.Name))
		}
		if acct.UserAgent == "" {
			errs = append(errs, fmt.Errorf("account %q has no user agent", acct.Name))
		}
	}
	return errors.Join(errs...)
}

func formatFieldError(fe validator.FieldError) error {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s is required", field)
	case "min", "gte":
		return fmt.Errorf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Errorf("%s must be positive", field)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s]", field, fe.Param())
	case "len":
		return fmt.Errorf("%s must be %s characters", field, fe.Param())
	default:
		return fmt.Errorf("%s failed %q validation", field, fe.Tag())
	}
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-json"].(bool); ok && v {
		c.Logging.JSON = true
	}
	if v, ok := flags["page-size"].(int); ok && v > 0 {
		c.API.PageSize = v
	}
	if v, ok := flags["fetch-workers"].(int); ok && v > 0 {
		c.Download.FetchWorkers = v
	}
	if v, ok := flags["download-workers"].(int); ok && v > 0 {
		c.Download.DownloadWorkers = v
	}
	if v, ok := flags["interval"].(time.Duration); ok && v > 0 {
		c.Download.Interval = v
	}
	if v, ok := flags["rules-file"].(string); ok && v != "" {
		c.Rules.File = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		for i := range c.Accounts {
			c.Accounts[i].DownloadRoot = v
		}
	}
	if v, ok := flags["skip-temporary"].(bool); ok && v {
		for i := range c.Accounts {
			c.Accounts[i].SkipTemporary = true
		}
	}
}

// Load loads configuration from all sources with proper precedence:
// flags > environment (.env included) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".fansync.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.MergeCommandLineFlags(flags)

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
