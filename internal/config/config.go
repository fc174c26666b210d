package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Adherence     AdherenceConfig
	Reminders     ReminderConfig
	Notifications NotificationConfig
	Demo          DemoConfig
	Logging       LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the snapshot store connection configuration. An empty
// URL disables persistence and the engine runs purely in memory.
type DatabaseConfig struct {
	URL string
}

// AdherenceConfig holds the classification windows and materialization
// horizon for the adherence engine.
type AdherenceConfig struct {
	HorizonDays         int
	EarlyWindow         time.Duration
	LateWindow          time.Duration
	MissedCutoff        time.Duration
	ClarifyWindow       time.Duration
	ConfirmationTimeout time.Duration
}

// ReminderConfig holds reminder scheduling configuration
type ReminderConfig struct {
	DefaultOffsetsMinutes []int
}

// NotificationConfig holds local notification delivery configuration
type NotificationConfig struct {
	Enabled bool
	Text    string
}

// DemoConfig controls demo data seeding on startup
type DemoConfig struct {
	Enabled bool
	Seed    int64
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Adherence engine defaults. The on-time window is asymmetric: two hours
	// before the scheduled time through ninety minutes after. The missed
	// cutoff is independent of the window and fires five minutes short of
	// four hours.
	v.SetDefault("adherence.horizondays", 30)
	v.SetDefault("adherence.earlywindow", 2*time.Hour)
	v.SetDefault("adherence.latewindow", 90*time.Minute)
	v.SetDefault("adherence.missedcutoff", 4*time.Hour-5*time.Minute)
	v.SetDefault("adherence.clarifywindow", time.Hour)
	v.SetDefault("adherence.confirmationtimeout", 30*time.Second)

	// Reminder defaults: a single reminder exactly at the scheduled time.
	v.SetDefault("reminders.defaultoffsetsminutes", []int{0})

	// Notification defaults
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.text", "Time to take %s (%d mg)")

	// Demo data defaults
	v.SetDefault("demo.enabled", false)
	v.SetDefault("demo.seed", 1)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Adherence engine
	v.BindEnv("adherence.horizondays", "ADHERENCE_HORIZON_DAYS")
	v.BindEnv("adherence.confirmationtimeout", "ADHERENCE_CONFIRMATION_TIMEOUT")

	// Notifications
	v.BindEnv("notifications.enabled", "NOTIFICATIONS_ENABLED")

	// Demo data
	v.BindEnv("demo.enabled", "DEMO_DATA")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Adherence.HorizonDays < 0 {
		return fmt.Errorf("adherence.horizondays must not be negative")
	}

	if c.Adherence.EarlyWindow <= 0 || c.Adherence.LateWindow <= 0 {
		return fmt.Errorf("adherence classification windows must be positive")
	}

	if c.Adherence.MissedCutoff <= 0 {
		return fmt.Errorf("adherence.missedcutoff must be positive")
	}

	if c.Adherence.ConfirmationTimeout <= 0 {
		return fmt.Errorf("adherence.confirmationtimeout must be positive")
	}

	for _, offset := range c.Reminders.DefaultOffsetsMinutes {
		if offset < 0 {
			return fmt.Errorf("reminder offsets must not be negative")
		}
	}

	return nil
}
