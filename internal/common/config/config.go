// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Server        ServerConfig            `mapstructure:"server"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// IntegrationConfig holds settings for the delivery channels and event sinks.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	SMTP struct {
		Enabled     bool   `mapstructure:"enabled"`
		Host        string `mapstructure:"host"`
		Port        int    `mapstructure:"port"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		UseTLS      bool   `mapstructure:"use_tls"`
		DefaultFrom string `mapstructure:"default_from"`
	} `mapstructure:"smtp"`

	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`

	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
}

// WhatsAppConfig configures the WhatsApp Cloud API adapter.
type WhatsAppConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseURL       string `mapstructure:"base_url"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	AccessToken   string `mapstructure:"access_token"`
}

// NotificationConfig holds settings for the dispatch engine.
type NotificationConfig struct {
	Store              string     `mapstructure:"store"` // postgres | memory
	MaxRetries         int        `mapstructure:"max_retries"`
	SendTimeout        int        `mapstructure:"send_timeout"`       // milliseconds
	RetryBackoffBase   int        `mapstructure:"retry_backoff_base"` // milliseconds
	RetryBackoffMax    int        `mapstructure:"retry_backoff_max"`  // milliseconds
	BatchSize          int        `mapstructure:"batch_size"`
	DefaultLanguage    string     `mapstructure:"default_language"`
	TemplateRegistry   string     `mapstructure:"template_registry_path"`
	PreferenceCacheTTL int        `mapstructure:"preference_cache_ttl"` // milliseconds
	Phone              PhoneRules `mapstructure:"phone"`
}

// PhoneRules configures country-specific phone canonicalization.
type PhoneRules struct {
	CountryCode      string `mapstructure:"country_code"`
	SubscriberLength int    `mapstructure:"subscriber_length"`
	MobilePrefix     string `mapstructure:"mobile_prefix"`
}

// SchedulerConfig holds the reminder scheduler timing.
type SchedulerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	PendingInterval    int    `mapstructure:"pending_interval"` // milliseconds
	RetryInterval      int    `mapstructure:"retry_interval"`   // milliseconds
	DailyRunAt         string `mapstructure:"daily_run_at"`     // HH:MM
	ExpiryCheckAt      string `mapstructure:"expiry_check_at"`  // HH:MM
	Timezone           string `mapstructure:"timezone"`
	ReminderWindowDays int    `mapstructure:"reminder_window_days"`
	MatchMode          string `mapstructure:"match_mode"` // exact | catch_up
	ExpiryNoticeDays   int    `mapstructure:"expiry_notice_days"`
	DistributedLock    bool   `mapstructure:"distributed_lock"`
	LockTTL            int    `mapstructure:"lock_ttl"` // milliseconds
}

// ServerConfig configures the health/metrics/query HTTP server.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// ObservabilityConfig configures tracing export.
type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
