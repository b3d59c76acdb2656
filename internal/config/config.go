package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tickler/internal/domain"
)

const (
	PlatformDesktop = "desktop"
	PlatformWebhook = "webhook"
	PlatformLog     = "log"

	DefaultInterval = 60 * time.Second
	minInterval     = time.Second
)

// Config models tickler.yml.
type Config struct {
	Storage struct {
		Key string `yaml:"key" json:"key"`
	} `yaml:"storage" json:"storage"`
	Scanner struct {
		Interval string `yaml:"interval" json:"interval"`
	} `yaml:"scanner" json:"scanner"`
	Notifications Notifications `yaml:"notifications" json:"notifications"`
	Server        struct {
		Addr     string `yaml:"addr" json:"addr"`
		BasePath string `yaml:"base_path" json:"base_path"`
	} `yaml:"server" json:"server"`
}

type Notifications struct {
	Platform   string `yaml:"platform" json:"platform"`
	Permission string `yaml:"permission" json:"permission"`
	Title      string `yaml:"title" json:"title"`
	Icon       string `yaml:"icon" json:"icon,omitempty"`
	WebhookURL string `yaml:"webhook_url" json:"webhook_url,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Key) == "" {
		return fmt.Errorf("config.storage.key is required")
	}
	d, err := time.ParseDuration(c.Scanner.Interval)
	if err != nil {
		return fmt.Errorf("config.scanner.interval: %w", err)
	}
	if d < minInterval {
		return fmt.Errorf("config.scanner.interval must be at least %s", minInterval)
	}
	switch c.Notifications.Platform {
	case PlatformDesktop, PlatformLog:
	case PlatformWebhook:
		if c.Notifications.WebhookURL == "" {
			return fmt.Errorf("config.notifications.webhook_url is required for the webhook platform")
		}
		u, err := url.Parse(c.Notifications.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("config.notifications.webhook_url must be an http(s) url")
		}
	default:
		return fmt.Errorf("config.notifications.platform must be one of desktop, webhook, log")
	}
	if _, err := domain.ParsePermission(c.Notifications.Permission); err != nil {
		return fmt.Errorf("config.notifications.permission: %w", err)
	}
	if c.Notifications.Title == "" {
		return fmt.Errorf("config.notifications.title is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// ScanInterval returns the parsed scanner interval, falling back to the default.
func (c *Config) ScanInterval() time.Duration {
	d, err := time.ParseDuration(c.Scanner.Interval)
	if err != nil || d < minInterval {
		return DefaultInterval
	}
	return d
}

// Permission returns the configured live permission for the desktop platform.
func (c *Config) Permission() domain.Permission {
	p, err := domain.ParsePermission(c.Notifications.Permission)
	if err != nil {
		return domain.PermissionDefault
	}
	return p
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tickler.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `storage:
  key: tickler.tasks

scanner:
  interval: 60s

notifications:
  # desktop, webhook or log
  platform: desktop
  # default asks once per session; granted/denied skip the prompt
  permission: default
  title: Task due
  icon: ""
  webhook_url: ""

server:
  addr: 127.0.0.1:8080
  base_path: /v1
`
