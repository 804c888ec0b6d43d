package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config
// file. Environment variables take precedence over values from config
// files. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; the environment can carry everything.
	}

	// Environment variables use the CLASSIFIER_ prefix with underscores,
	// e.g. CLASSIFIER_SERVER_PORT maps to server.port.
	v.SetEnvPrefix("CLASSIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults need an explicit binding for Unmarshal to
	// see their environment values.
	for _, key := range []string{
		"database.url",
		"auth.keys_file",
		"llm.gemini_api_key",
		"storage.endpoint",
		"storage.access_key",
		"storage.secret_key",
		"sync.crm_base_url",
		"sync.crm_token_url",
		"sync.crm_client_id",
		"sync.crm_client_secret",
		"sync.crm_refresh_token",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment key %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers a sensible default for every setting that has
// one. Secrets and endpoints have no defaults and must be provided.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.refresh_interval_seconds", 300)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.prompt_template_path", "prompts/classification.tmpl")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_document_chars", 100000)

	v.SetDefault("storage.bucket", "classifier-documents")
	v.SetDefault("storage.use_ssl", true)

	v.SetDefault("sync.page_size", 200)
	v.SetDefault("sync.max_pages", 100)
	v.SetDefault("sync.interval_minutes", 60)
	v.SetDefault("sync.grace_window_minutes", 60)

	v.SetDefault("jobs.worker_count", 4)
	v.SetDefault("jobs.queue_size", 100)
	v.SetDefault("jobs.max_attempts", 3)
	v.SetDefault("jobs.retry_base_delay_seconds", 30)
	v.SetDefault("jobs.retry_max_delay_seconds", 300)
	v.SetDefault("jobs.ttl_hours", 24)
	v.SetDefault("jobs.janitor_interval_minutes", 15)
	v.SetDefault("jobs.max_sync_bytes", 5*1024*1024)
	v.SetDefault("jobs.max_async_bytes", 50*1024*1024)
}
