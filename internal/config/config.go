package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

const (
	defaultPort            = "9627"
	defaultAgentServiceURL = "http://127.0.0.1:8001"
	defaultAgentTimeout    = "120s"
	defaultJWTAudience     = "authenticated"
)

// FileConfig represents configuration loaded from YAML with env overrides.
// The file is optional; the service historically ran on env vars alone.
type FileConfig struct {
	Port                   string   `yaml:"port"`
	LogLevel               string   `yaml:"logLevel"`
	DatabaseURL            string   `yaml:"databaseURL"`
	AgentServiceURL        string   `yaml:"agentServiceURL"`
	AgentTimeout           string   `yaml:"agentTimeout"`
	UseMockChat            bool     `yaml:"useMockChat"`
	MockProgressDelayMS    int      `yaml:"mockProgressDelayMs"`
	JWTSecret              string   `yaml:"jwtSecret"`
	JWTAudience            string   `yaml:"jwtAudience"`
	RedisAddr              string   `yaml:"redisAddr"`
	RedisPassword          string   `yaml:"redisPassword"`
	ChatRateLimitPerMinute int      `yaml:"chatRateLimitPerMinute"`
	TrustedProxyCIDRs      []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path (defaults to config.yaml, missing file is fine)
// and applies environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("AGENT_SERVICE_URL"); v != "" {
		cfg.AgentServiceURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("AGENT_TIMEOUT"); v != "" {
		cfg.AgentTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("USE_MOCK_CHAT"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.UseMockChat = b
		}
	}
	if v := os.Getenv("MOCK_PROGRESS_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.MockProgressDelayMS = n
		}
	}
	if v := os.Getenv("SUPABASE_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CHAT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.ChatRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}

	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.AgentServiceURL) == "" {
		cfg.AgentServiceURL = defaultAgentServiceURL
	}
	if strings.TrimSpace(cfg.AgentTimeout) == "" {
		cfg.AgentTimeout = defaultAgentTimeout
	}
	if strings.TrimSpace(cfg.JWTAudience) == "" {
		cfg.JWTAudience = defaultJWTAudience
	}
}

func validateConfig(cfg FileConfig) error {
	if _, err := ParseAgentTimeout(cfg.AgentTimeout); err != nil {
		return err
	}
	if cfg.MockProgressDelayMS < 0 {
		return errors.New("config: mockProgressDelayMs must be >= 0")
	}
	if cfg.ChatRateLimitPerMinute < 0 {
		return errors.New("config: chatRateLimitPerMinute must be >= 0")
	}
	if cfg.ChatRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when chat rate limiting is enabled")
	}
	return nil
}

// ParseAgentTimeout parses the upstream read timeout duration string.
func ParseAgentTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = defaultAgentTimeout
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid agentTimeout duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("config: agentTimeout must be positive")
	}
	return dur, nil
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
