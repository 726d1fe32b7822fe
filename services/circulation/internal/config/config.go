package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"librarydesk/pkg/fine"
)

// ConfigPath is the default config location. CIRCULATION_CONFIG overrides it.
var ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port               string   `yaml:"port"`
	LogLevel           string   `yaml:"logLevel"`
	DatabaseURL        string   `yaml:"databaseURL"`
	LoanDays           int      `yaml:"loanDays"`
	FinePerDay         int64    `yaml:"finePerDay"`
	SeedPath           string   `yaml:"seedPath"`
	RedisAddr          string   `yaml:"redisAddr"`
	RedisPassword      string   `yaml:"redisPassword"`
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	TrustedProxyCIDRs  []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path. An empty path means CIRCULATION_CONFIG, then ConfigPath.
// A .env file in the working directory is loaded first when present.
// A missing default file is tolerated so the service can run from env alone;
// a missing explicit file is an error.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		Port:       "8080",
		LogLevel:   "info",
		LoanDays:   fine.DefaultLoanDays,
		FinePerDay: fine.DefaultPerDay,
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	explicit := path != ""
	if path == "" {
		path = os.Getenv("CIRCULATION_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("CIRCULATION_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("CIRCULATION_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CIRCULATION_LOAN_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: CIRCULATION_LOAN_DAYS: %w", err)
		}
		cfg.LoanDays = n
	}
	if v := os.Getenv("CIRCULATION_FINE_PER_DAY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("config: CIRCULATION_FINE_PER_DAY: %w", err)
		}
		cfg.FinePerDay = n
	}
	if v := os.Getenv("CIRCULATION_SEED_PATH"); v != "" {
		cfg.SeedPath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CIRCULATION_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: CIRCULATION_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = n
	}
	if v := os.Getenv("CIRCULATION_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or CIRCULATION_PORT)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.LoanDays < 0 {
		return errors.New("config: loanDays must be >= 0")
	}
	if cfg.FinePerDay < 0 {
		return errors.New("config: finePerDay must be >= 0")
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
