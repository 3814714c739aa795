package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	v := viper.New()
	setDefaults(v, DefaultServiceConfig())

	// FF_SERVICE_PORT overrides service.port, and so on.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &ServiceConfig{
		Host:           v.GetString("service.host"),
		Port:           v.GetInt("service.port"),
		MaxConnections: v.GetInt("service.max_connections"),
		RequestTimeout: v.GetDuration("service.request_timeout"),
		FormCacheSize:  v.GetInt("service.form_cache_size"),
		Engine: EngineConfig{
			DefaultDebounce:      v.GetDuration("engine.default_debounce"),
			MaxPlaceholders:      v.GetInt("engine.max_placeholders"),
			MessageTemplateCache: v.GetInt("engine.message_template_cache"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *ServiceConfig) {
	v.SetDefault("service.host", d.Host)
	v.SetDefault("service.port", d.Port)
	v.SetDefault("service.max_connections", d.MaxConnections)
	v.SetDefault("service.request_timeout", d.RequestTimeout.String())
	v.SetDefault("service.form_cache_size", d.FormCacheSize)
	v.SetDefault("engine.default_debounce", d.Engine.DefaultDebounce.String())
	v.SetDefault("engine.max_placeholders", d.Engine.MaxPlaceholders)
	v.SetDefault("engine.message_template_cache", d.Engine.MessageTemplateCache)
}

// validateConfig checks port range and that sizes and durations are positive.
func validateConfig(cfg *ServiceConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.FormCacheSize <= 0 {
		return fmt.Errorf("form_cache_size must be positive, got %d", cfg.FormCacheSize)
	}
	if cfg.Engine.DefaultDebounce <= 0 {
		return fmt.Errorf("default_debounce must be positive, got %v", cfg.Engine.DefaultDebounce)
	}
	if cfg.Engine.MaxPlaceholders <= 0 {
		return fmt.Errorf("max_placeholders must be positive, got %d", cfg.Engine.MaxPlaceholders)
	}
	if cfg.Engine.MessageTemplateCache <= 0 {
		return fmt.Errorf("message_template_cache must be positive, got %d", cfg.Engine.MessageTemplateCache)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets. Only the
// file is inspected; FF_HMAC_SECRET itself is the supported channel.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("service.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use FF_HMAC_SECRET environment variable)")
	}
	return nil
}
