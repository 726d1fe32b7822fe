package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"librarydesk/services/desk/internal/gate"
)

// ConfigPath is the default config location. DESK_CONFIG overrides it.
var ConfigPath = "desk.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	APIBaseURL     string        `yaml:"apiBaseURL"`
	LogLevel       string        `yaml:"logLevel"`
	AdminUsername  string        `yaml:"adminUsername"`
	AdminPassword  string        `yaml:"adminPassword"`
	Currency       string        `yaml:"currency"`
	PageSize       int           `yaml:"pageSize"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// Load reads config from path, then applies DESK_* environment overrides.
// Same file rules as the circulation service: a missing default file is fine,
// a missing explicit one is not.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		APIBaseURL:     "http://localhost:8080",
		LogLevel:       "warn",
		AdminUsername:  gate.DefaultUsername,
		AdminPassword:  gate.DefaultPassword,
		Currency:       "Rs.",
		PageSize:       20,
		RequestTimeout: 10 * time.Second,
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	explicit := path != ""
	if path == "" {
		path = os.Getenv("DESK_CONFIG")
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

	if v := os.Getenv("DESK_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("DESK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DESK_ADMIN_USERNAME"); v != "" {
		cfg.AdminUsername = v
	}
	if v := os.Getenv("DESK_ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}
	if v, ok := os.LookupEnv("DESK_CURRENCY"); ok {
		cfg.Currency = v
	}
	if v := os.Getenv("DESK_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: DESK_PAGE_SIZE: %w", err)
		}
		cfg.PageSize = n
	}
	if v := os.Getenv("DESK_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("config: DESK_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.APIBaseURL == "" {
		return errors.New("config: apiBaseURL is required (set in desk.yaml or DESK_API_BASE_URL)")
	}
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: apiBaseURL must be an http(s) URL, got %q", cfg.APIBaseURL)
	}
	if cfg.PageSize <= 0 {
		return errors.New("config: pageSize must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("config: requestTimeout must be > 0")
	}
	return nil
}
