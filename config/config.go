// Package config loads the CLI configuration.
// Priority: flag > env (.env included) > default.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	BaseURL        string        `env:"API_BASE_URL" env-default:"http://localhost:8080/api" env-description:"API root URL"`
	Email          string        `env:"HEALTHLOG_EMAIL" env-description:"login email"`
	Password       string        `env:"HEALTHLOG_PASSWORD" env-description:"login password"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" env-default:"10s" env-description:"timeout of a single API request"`
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT" env-default:"10s" env-description:"timeout of a token refresh"`
	LogLevel       string        `env:"LOG_LEVEL" env-default:"warn" env-description:"debug, info, warn or error"`
	LogFormat      string        `env:"LOG_FORMAT" env-default:"console" env-description:"console or json"`
	PageSize       int           `env:"PAGE_SIZE" env-default:"5" env-description:"records per search page"`
}

// Load reads .env (when present), the environment and then flags from
// args. It returns the config and the arguments left after the flags.
func Load(name string, args []string, output io.Writer) (*Config, []string, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to read environment: %w", err)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "API root URL (or API_BASE_URL env)")
	fs.StringVar(&cfg.Email, "email", cfg.Email, "login email (or HEALTHLOG_EMAIL env)")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "login password (or HEALTHLOG_PASSWORD env)")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "request timeout (or REQUEST_TIMEOUT env)")
	fs.DurationVar(&cfg.RefreshTimeout, "refresh-timeout", cfg.RefreshTimeout, "refresh timeout (or REFRESH_TIMEOUT env)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (or LOG_LEVEL env)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json (or LOG_FORMAT env)")
	fs.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "search page size (or PAGE_SIZE env)")
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: %s [flags] <command> [args]\n\nFlags:\n", name)
		fs.PrintDefaults()
		if desc, err := cleanenv.GetDescription(cfg, nil); err == nil {
			fmt.Fprintf(output, "\n%s\n", desc)
		}
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if err := ValidateBaseURL(c.BaseURL); err != nil {
		return fmt.Errorf("invalid API_BASE_URL: %w", err)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.RefreshTimeout <= 0 {
		return errors.New("refresh timeout must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("page size must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got: %s", c.LogFormat)
	}
	return nil
}

// ValidateBaseURL checks that rawURL is an absolute http(s) URL.
func ValidateBaseURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("base URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// InsecureRemote reports whether the base URL sends tokens in plaintext
// to a host other than the local machine.
func (c *Config) InsecureRemote() bool {
	u, err := url.Parse(c.BaseURL)
	if err != nil || !strings.EqualFold(u.Scheme, "http") {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return false
	}
	ip := net.ParseIP(host)
	return ip == nil || !ip.IsLoopback()
}

// HasCredentials reports whether login credentials were configured.
func (c *Config) HasCredentials() bool {
	return c.Email != "" && c.Password != ""
}
