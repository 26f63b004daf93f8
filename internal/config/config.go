package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates every startup parameter of the service.
type Config struct {
	Server   ServerConfig
	Platform PlatformConfig
	Edge     EdgeConfig
	Webhook  WebhookConfig
	Log      LogConfig
}

// ServerConfig describes the HTTP listener and request bounds.
type ServerConfig struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// PlatformConfig describes the calling platform API.
type PlatformConfig struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
}

// EdgeConfig describes the media edge API.
type EdgeConfig struct {
	BaseURL string
	Token   string
}

// WebhookConfig controls inbound webhook verification.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
	StrictSDP   bool
}

type LogConfig struct {
	Level     string
	Format    string
	File      string
	FileMaxMB int
}

// Load reads configuration from the environment and, when CONFIG_FILE is
// set, from that file. Environment values win.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("request_timeout", "10s")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("strict_sdp", "false")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_file_max_mb", "100")

	if file := strings.TrimSpace(v.GetString("config_file")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	if err := requireKeys(v, "platform_base_url", "platform_token", "edge_base_url", "port"); err != nil {
		return nil, err
	}

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	platform, err := loadPlatformConfig(v)
	if err != nil {
		return nil, err
	}

	edge, err := loadEdgeConfig(v)
	if err != nil {
		return nil, err
	}

	webhook, err := loadWebhookConfig(v)
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Platform: platform, Edge: edge, Webhook: webhook, Log: logCfg}, nil
}

func requireKeys(v *viper.Viper, keys ...string) error {
	var missing []string
	for _, key := range keys {
		if getString(v, key) == "" {
			missing = append(missing, strings.ToUpper(key))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	addr, err := parseAddr(getString(v, "port"))
	if err != nil {
		return ServerConfig{}, err
	}

	requestTimeout, err := parseDuration(v, "request_timeout")
	if err != nil {
		return ServerConfig{}, err
	}

	shutdownTimeout, err := parseDuration(v, "shutdown_timeout")
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{
		Addr:            addr,
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func loadPlatformConfig(v *viper.Viper) (PlatformConfig, error) {
	baseURL, err := parseBaseURL(v, "platform_base_url")
	if err != nil {
		return PlatformConfig{}, err
	}
	return PlatformConfig{
		BaseURL:       baseURL,
		Token:         getString(v, "platform_token"),
		PhoneNumberID: getString(v, "platform_phone_number_id"),
	}, nil
}

func loadEdgeConfig(v *viper.Viper) (EdgeConfig, error) {
	baseURL, err := parseBaseURL(v, "edge_base_url")
	if err != nil {
		return EdgeConfig{}, err
	}
	return EdgeConfig{
		BaseURL: baseURL,
		Token:   getString(v, "edge_token"),
	}, nil
}

func loadWebhookConfig(v *viper.Viper) (WebhookConfig, error) {
	strict, err := parseBool(v, "strict_sdp")
	if err != nil {
		return WebhookConfig{}, err
	}
	return WebhookConfig{
		VerifyToken: getString(v, "webhook_verify_token"),
		AppSecret:   getString(v, "webhook_app_secret"),
		StrictSDP:   strict,
	}, nil
}

func loadLogConfig(v *viper.Viper) (LogConfig, error) {
	maxMB, err := strconv.Atoi(getString(v, "log_file_max_mb"))
	if err != nil || maxMB < 1 {
		return LogConfig{}, fmt.Errorf("invalid LOG_FILE_MAX_MB value %q", getString(v, "log_file_max_mb"))
	}

	format := strings.ToLower(getString(v, "log_format"))
	if format != "console" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}

	return LogConfig{
		Level:     strings.ToLower(getString(v, "log_level")),
		Format:    format,
		File:      getString(v, "log_file"),
		FileMaxMB: maxMB,
	}, nil
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// parseAddr accepts "8080", ":8080" or "host:8080".
func parseAddr(port string) (string, error) {
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	return ":" + port, nil
}

func parseBaseURL(v *viper.Viper, key string) (string, error) {
	raw := getString(v, key)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), raw, errors.New("absolute http(s) url required"))
	}
	return strings.TrimRight(raw, "/"), nil
}

// parseDuration accepts Go durations ("1500ms") or bare seconds ("10").
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := getString(v, key)
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", strings.ToUpper(key), raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", strings.ToUpper(key), raw)
	}
	return d, nil
}

func parseBool(v *viper.Viper, key string) (bool, error) {
	raw := getString(v, key)
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), raw, err)
	}
	return val, nil
}
