package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`
	Store  StoreConfig  `json:"store" yaml:"store"`
	Client ClientConfig `json:"client" yaml:"client"`
	Tabs   TabsConfig   `json:"tabs" yaml:"tabs"`
}

type ServerConfig struct {
	ListenAddr         string   `json:"listen_addr" yaml:"listen_addr"`
	Host               string   `json:"host" yaml:"host"`
	Port               int      `json:"port" yaml:"port"`
	Path               string   `json:"path" yaml:"path"`
	AuthToken          string   `json:"auth_token" yaml:"auth_token"`
	MaxClients         int      `json:"max_clients" yaml:"max_clients"`
	HeartbeatInterval  Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	InjectTimeout      Duration `json:"inject_timeout" yaml:"inject_timeout"`
	FocusTimeout       Duration `json:"focus_timeout" yaml:"focus_timeout"`
	DebugTimeout       Duration `json:"debug_timeout" yaml:"debug_timeout"`
	WriteTimeout       Duration `json:"write_timeout" yaml:"write_timeout"`
	StatusTTL          Duration `json:"status_ttl" yaml:"status_ttl"`
	CancelOnDisconnect bool     `json:"cancel_on_disconnect" yaml:"cancel_on_disconnect"`
}

type StoreConfig struct {
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	KeyPrefix     string `json:"key_prefix" yaml:"key_prefix"`
}

type ClientConfig struct {
	URL          string      `json:"url" yaml:"url"`
	AuthToken    string      `json:"auth_token" yaml:"auth_token"`
	DialTimeout  Duration    `json:"dial_timeout" yaml:"dial_timeout"`
	Timeout      Duration    `json:"timeout" yaml:"timeout"`
	FocusTimeout Duration    `json:"focus_timeout" yaml:"focus_timeout"`
	DebugTimeout Duration    `json:"debug_timeout" yaml:"debug_timeout"`
	Retry        RetryConfig `json:"retry" yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay   Duration `json:"base_delay" yaml:"base_delay"`
	Backoff     float64  `json:"backoff" yaml:"backoff"`
}

type TabsConfig struct {
	TargetURL       string   `json:"target_url" yaml:"target_url"`
	Domains         []string `json:"domains" yaml:"domains"`
	TitleKeywords   []string `json:"title_keywords" yaml:"title_keywords"`
	ExcludedSchemes []string `json:"excluded_schemes" yaml:"excluded_schemes"`
	SettleDelay     Duration `json:"settle_delay" yaml:"settle_delay"`
	BrowserProcess  string   `json:"browser_process" yaml:"browser_process"`
	BrowserBinary   string   `json:"browser_binary" yaml:"browser_binary"`
	AutoLaunch      bool     `json:"auto_launch" yaml:"auto_launch"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:        envOrDefault("RELAY_LISTEN_ADDR", "127.0.0.1:8765"),
			Path:              "/",
			AuthToken:         os.Getenv("RELAY_AUTH_TOKEN"),
			MaxClients:        50,
			HeartbeatInterval: Seconds(10),
			InjectTimeout:     Seconds(300),
			FocusTimeout:      Seconds(15),
			DebugTimeout:      Seconds(15),
			WriteTimeout:      Seconds(10),
			StatusTTL:         Duration{time.Hour},
		},
		Store: StoreConfig{
			RedisAddr: os.Getenv("REDIS_ADDR"),
			KeyPrefix: "promptrelay:",
		},
		Client: ClientConfig{
			URL:          envOrDefault("RELAY_URL", "ws://127.0.0.1:8765/"),
			AuthToken:    os.Getenv("RELAY_AUTH_TOKEN"),
			DialTimeout:  Seconds(2),
			Timeout:      Seconds(120),
			FocusTimeout: Seconds(20),
			DebugTimeout: Seconds(20),
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   Seconds(1),
				Backoff:     1.5,
			},
		},
		Tabs: TabsConfig{
			TargetURL:       "https://chatgpt.com/",
			Domains:         []string{"chatgpt.com", "chat.openai.com", "openai.com"},
			TitleKeywords:   []string{"chatgpt", "openai"},
			ExcludedSchemes: []string{"chrome://", "chrome-extension://", "edge://", "about:"},
			SettleDelay:     Seconds(8),
			BrowserProcess:  "chrome",
		},
	}
}

// Load reads a config file on top of Default. Files ending in .yaml or .yml
// are parsed as YAML, anything else as JSON with comments and trailing commas.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config failed: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
	default:
		standard, err := hujson.Standardize(content)
		if err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
		if err := json.Unmarshal(standard, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Path == "" {
		c.Server.Path = "/"
	}
	if c.Server.ListenAddr == "" {
		if c.Server.Host != "" && c.Server.Port > 0 {
			c.Server.ListenAddr = fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
		} else {
			c.Server.ListenAddr = def.Server.ListenAddr
		}
	}
	if c.Server.MaxClients <= 0 {
		c.Server.MaxClients = def.Server.MaxClients
	}
	orDefault(&c.Server.HeartbeatInterval, def.Server.HeartbeatInterval)
	orDefault(&c.Server.InjectTimeout, def.Server.InjectTimeout)
	orDefault(&c.Server.FocusTimeout, def.Server.FocusTimeout)
	orDefault(&c.Server.DebugTimeout, def.Server.DebugTimeout)
	orDefault(&c.Server.WriteTimeout, def.Server.WriteTimeout)
	orDefault(&c.Server.StatusTTL, def.Server.StatusTTL)

	if c.Client.URL == "" {
		c.Client.URL = def.Client.URL
	}
	orDefault(&c.Client.DialTimeout, def.Client.DialTimeout)
	orDefault(&c.Client.Timeout, def.Client.Timeout)
	orDefault(&c.Client.FocusTimeout, def.Client.FocusTimeout)
	orDefault(&c.Client.DebugTimeout, def.Client.DebugTimeout)
	if c.Client.Retry.MaxAttempts <= 0 {
		c.Client.Retry.MaxAttempts = 1
	}
	orDefault(&c.Client.Retry.BaseDelay, def.Client.Retry.BaseDelay)
	if c.Client.Retry.Backoff < 1 {
		c.Client.Retry.Backoff = def.Client.Retry.Backoff
	}

	if c.Tabs.TargetURL == "" {
		c.Tabs.TargetURL = def.Tabs.TargetURL
	}
	if len(c.Tabs.Domains) == 0 {
		c.Tabs.Domains = def.Tabs.Domains
	}
	if len(c.Tabs.TitleKeywords) == 0 {
		c.Tabs.TitleKeywords = def.Tabs.TitleKeywords
	}
	if c.Tabs.ExcludedSchemes == nil {
		c.Tabs.ExcludedSchemes = def.Tabs.ExcludedSchemes
	}
	orDefault(&c.Tabs.SettleDelay, def.Tabs.SettleDelay)
	if c.Tabs.BrowserProcess == "" {
		c.Tabs.BrowserProcess = def.Tabs.BrowserProcess
	}
}

func orDefault(d *Duration, def Duration) {
	if d.Duration <= 0 {
		*d = def
	}
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
