// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // scheduler.timezone must resolve on minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges configs/config.<env>.yaml and
// applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if secrets are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Integrations.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	setIfEmpty(&cfg.Integrations.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	setIfEmpty(&cfg.Integrations.SMTP.Password, "SMTP_PASSWORD")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "billing-workers"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "notifications"
	}

	if cfg.Integrations.WhatsApp.BaseURL == "" {
		cfg.Integrations.WhatsApp.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.Integrations.SMTP.Port == 0 {
		cfg.Integrations.SMTP.Port = 587
	}
	if cfg.Integrations.Kafka.Topic == "" {
		cfg.Integrations.Kafka.Topic = "notification-events"
	}

	n := &cfg.Notifications
	if n.Store == "" {
		n.Store = "postgres"
	}
	if n.MaxRetries == 0 {
		n.MaxRetries = 3
	}
	if n.SendTimeout == 0 {
		n.SendTimeout = 5000
	}
	if n.RetryBackoffBase == 0 {
		n.RetryBackoffBase = 15 * 60 * 1000
	}
	if n.RetryBackoffMax == 0 {
		n.RetryBackoffMax = 2 * 60 * 60 * 1000
	}
	if n.BatchSize == 0 {
		n.BatchSize = 100
	}
	if n.DefaultLanguage == "" {
		n.DefaultLanguage = "ar"
	}
	if n.PreferenceCacheTTL == 0 {
		n.PreferenceCacheTTL = 5 * 60 * 1000
	}
	if n.Phone.CountryCode == "" {
		n.Phone.CountryCode = "966"
	}
	if n.Phone.SubscriberLength == 0 {
		n.Phone.SubscriberLength = 9
	}
	if n.Phone.MobilePrefix == "" {
		n.Phone.MobilePrefix = "5"
	}

	s := &cfg.Scheduler
	if s.PendingInterval == 0 {
		s.PendingInterval = 60 * 1000
	}
	if s.RetryInterval == 0 {
		s.RetryInterval = 15 * 60 * 1000
	}
	if s.DailyRunAt == "" {
		s.DailyRunAt = "09:00"
	}
	if s.ExpiryCheckAt == "" {
		s.ExpiryCheckAt = "10:00"
	}
	if s.Timezone == "" {
		s.Timezone = "Asia/Riyadh"
	}
	if s.ReminderWindowDays == 0 {
		s.ReminderWindowDays = 31
	}
	if s.MatchMode == "" {
		s.MatchMode = "exact"
	}
	if s.ExpiryNoticeDays == 0 {
		s.ExpiryNoticeDays = 30
	}
	if s.LockTTL == 0 {
		s.LockTTL = 10 * 60 * 1000
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	switch cfg.Notifications.Store {
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "memory":
	default:
		return fmt.Errorf("notifications.store must be postgres or memory, got %q", cfg.Notifications.Store)
	}

	if cfg.Scheduler.DistributedLock && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required for scheduler.distributed_lock")
	}

	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when elasticsearch is enabled")
	}

	if cfg.Integrations.Kafka.Enabled && len(cfg.Integrations.Kafka.Brokers) == 0 {
		return fmt.Errorf("integrations.kafka.brokers is required when kafka is enabled")
	}

	switch cfg.Scheduler.MatchMode {
	case "exact", "catch_up":
	default:
		return fmt.Errorf("scheduler.match_mode must be exact or catch_up, got %q", cfg.Scheduler.MatchMode)
	}

	if _, err := ParseTimeOfDay(cfg.Scheduler.DailyRunAt); err != nil {
		return fmt.Errorf("scheduler.daily_run_at: %w", err)
	}
	if _, err := ParseTimeOfDay(cfg.Scheduler.ExpiryCheckAt); err != nil {
		return fmt.Errorf("scheduler.expiry_check_at: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// ParseTimeOfDay parses "HH:MM" into an offset from midnight.
func ParseTimeOfDay(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
