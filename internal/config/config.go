package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envHTTPPort         = "MOXNAS_HTTP_PORT"
	envExportsFile      = "MOXNAS_EXPORTS_FILE"
	envServicesFile     = "MOXNAS_SERVICES_FILE"
	envRunTimeout       = "MOXNAS_RUN_TIMEOUT"
	envSystemctlTimeout = "MOXNAS_SYSTEMCTL_TIMEOUT"
	envSlackWebhookURL  = "MOXNAS_SLACK_WEBHOOK_URL"
	envWebhookURL       = "MOXNAS_WEBHOOK_URL"
	envWebhookTemplate  = "MOXNAS_WEBHOOK_TEMPLATE"
	envRegenerateOnStart = "MOXNAS_REGENERATE_ON_START"
)

const (
	defaultHTTPPort         = 8686
	defaultRunTimeout       = 60 * time.Second
	defaultSystemctlTimeout = 30 * time.Second
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	HTTPPort          int
	ExportsFile       string
	ServicesFile      string
	RunTimeout        time.Duration
	SystemctlTimeout  time.Duration
	SlackWebhookURL   string
	WebhookURL        string
	WebhookTemplate   string
	RegenerateOnStart bool
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPPort:         defaultHTTPPort,
		RunTimeout:       defaultRunTimeout,
		SystemctlTimeout: defaultSystemctlTimeout,
	}

	if value, ok := lookupTrimmed(envHTTPPort); ok {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid %s: %q", envHTTPPort, value)
		}
		cfg.HTTPPort = port
	}

	if value, ok := lookupTrimmed(envExportsFile); ok {
		cfg.ExportsFile = value
	}

	if value, ok := lookupTrimmed(envServicesFile); ok {
		cfg.ServicesFile = value
	}

	if value, ok := lookupTrimmed(envRunTimeout); ok {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envRunTimeout, err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envRunTimeout)
		}
		cfg.RunTimeout = timeout
	}

	if value, ok := lookupTrimmed(envSystemctlTimeout); ok {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envSystemctlTimeout, err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envSystemctlTimeout)
		}
		cfg.SystemctlTimeout = timeout
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}

	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}

	if value, ok := lookupTrimmed(envWebhookTemplate); ok {
		cfg.WebhookTemplate = value
	}

	if value, ok := lookupTrimmed(envRegenerateOnStart); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envRegenerateOnStart, err)
		}
		cfg.RegenerateOnStart = enabled
	}

	if cfg.ExportsFile == "" {
		return Config{}, errors.New("MOXNAS_EXPORTS_FILE is required")
	}

	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}
	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
