package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage"  validate:"required"`
	Sync     SyncConfig     `mapstructure:"sync"     validate:"required"`
	Jobs     JobsConfig     `mapstructure:"jobs"     validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains API key authentication settings. Keys live in a
// JSON file of bcrypt hashes that is re-read on an interval so key
// rotation does not require a restart.
type AuthConfig struct {
	KeysFile               string `mapstructure:"keys_file"                validate:"required"`
	RefreshIntervalSeconds int    `mapstructure:"refresh_interval_seconds" validate:"gte=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey       string  `mapstructure:"gemini_api_key"       validate:"required"`
	ModelName          string  `mapstructure:"model_name"           validate:"required"`
	PromptTemplatePath string  `mapstructure:"prompt_template_path" validate:"required"`
	MaxRetries         int     `mapstructure:"max_retries"          validate:"gte=0,lte=10"`
	RetryDelaySeconds  int     `mapstructure:"retry_delay_seconds"  validate:"gte=1,lte=60"`
	Temperature        float64 `mapstructure:"temperature"          validate:"gte=0,lte=2"`
	MaxDocumentChars   int     `mapstructure:"max_document_chars"   validate:"gt=0"`
}

// StorageConfig contains the S3-compatible object store settings used
// for submitted documents.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"   validate:"required"`
	AccessKey string `mapstructure:"access_key" validate:"required"`
	SecretKey string `mapstructure:"secret_key" validate:"required"`
	Bucket    string `mapstructure:"bucket"     validate:"required"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// SyncConfig contains the CRM tag source settings and the cadence of
// the background sync.
type SyncConfig struct {
	CRMBaseURL         string `mapstructure:"crm_base_url"         validate:"required"`
	CRMTokenURL        string `mapstructure:"crm_token_url"        validate:"required"`
	CRMClientID        string `mapstructure:"crm_client_id"        validate:"required"`
	CRMClientSecret    string `mapstructure:"crm_client_secret"    validate:"required"`
	CRMRefreshToken    string `mapstructure:"crm_refresh_token"    validate:"required"`
	PageSize           int    `mapstructure:"page_size"            validate:"gt=0,lte=200"`
	MaxPages           int    `mapstructure:"max_pages"            validate:"gt=0"`
	IntervalMinutes    int    `mapstructure:"interval_minutes"     validate:"gte=0"`
	GraceWindowMinutes int    `mapstructure:"grace_window_minutes" validate:"gte=0"`
}

// JobsConfig contains the async pipeline settings: worker pool sizing,
// dispatcher retry policy, job lifetime, and submission size limits.
type JobsConfig struct {
	WorkerCount            int   `mapstructure:"worker_count"             validate:"gt=0,lte=64"`
	QueueSize              int   `mapstructure:"queue_size"               validate:"gt=0"`
	MaxAttempts            int   `mapstructure:"max_attempts"             validate:"gt=0,lte=10"`
	RetryBaseDelaySeconds  int   `mapstructure:"retry_base_delay_seconds" validate:"gt=0"`
	RetryMaxDelaySeconds   int   `mapstructure:"retry_max_delay_seconds"  validate:"gt=0"`
	TTLHours               int   `mapstructure:"ttl_hours"                validate:"gt=0"`
	JanitorIntervalMinutes int   `mapstructure:"janitor_interval_minutes" validate:"gt=0"`
	MaxSyncBytes           int64 `mapstructure:"max_sync_bytes"           validate:"gt=0"`
	MaxAsyncBytes          int64 `mapstructure:"max_async_bytes"          validate:"gt=0"`
}
