package config

import (
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata" // timezone names work on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Allocation AllocationConfig `yaml:"allocation"`
	Spots      []SpotConfig     `yaml:"spots"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Broker     BrokerConfig     `yaml:"broker"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size               int           `yaml:"size"`
	QueueSize          int           `yaml:"queue_size"`
	SendTimeoutSeconds int           `yaml:"send_timeout_seconds"`
	SendTimeout        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// BrokerConfig enables publishing notification intents to RabbitMQ next to
// web push.
type BrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	JWTSecret       string  `yaml:"jwt_secret"`
	TokenTTLHours   int     `yaml:"token_ttl_hours"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string        `yaml:"driver"` // postgres or sqlite
	DSN                    string        `yaml:"dsn"`
	MaxOpenConns           int           `yaml:"max_open_conns"`
	MaxIdleConns           int           `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int           `yaml:"conn_max_lifetime_minutes"`
	QueryTimeoutSeconds    int           `yaml:"query_timeout_seconds"`
	QueryTimeout           time.Duration `yaml:"-"`
}

// AllocationConfig holds the matching policy.
type AllocationConfig struct {
	Timezone                    string         `yaml:"timezone"`
	Location                    *time.Location `yaml:"-"`
	CutoffHour                  int            `yaml:"cutoff_hour"`
	CutoffMinute                int            `yaml:"cutoff_minute"`
	ConfirmWindowMinutes        int            `yaml:"confirm_window_minutes"`
	ConfirmWindow               time.Duration  `yaml:"-"`
	ReminderHour                int            `yaml:"reminder_hour"`
	ExcludeSuppliers            *bool          `yaml:"exclude_suppliers"`
	HousekeepingIntervalSeconds int            `yaml:"housekeeping_interval_seconds"`
	HousekeepingInterval        time.Duration  `yaml:"-"`
	Seed                        int64          `yaml:"seed"` // 0 seeds from the clock
}

// SpotConfig is one parking spot of the lot.
type SpotConfig struct {
	ID     int64  `yaml:"id"`
	Label  string `yaml:"label"`
	Active *bool  `yaml:"active"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	if cfg.Server.TokenTTLHours <= 0 {
		cfg.Server.TokenTTLHours = 24 * 30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.QueryTimeoutSeconds <= 0 {
		cfg.Database.QueryTimeoutSeconds = 10
	}
	cfg.Database.QueryTimeout = time.Duration(cfg.Database.QueryTimeoutSeconds) * time.Second

	a := &cfg.Allocation
	if a.Timezone == "" {
		a.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return fmt.Errorf("invalid allocation.timezone %q: %w", a.Timezone, err)
	}
	a.Location = loc
	if a.CutoffHour == 0 && a.CutoffMinute == 0 {
		a.CutoffHour = 9
	}
	if a.CutoffHour < 0 || a.CutoffHour > 23 || a.CutoffMinute < 0 || a.CutoffMinute > 59 {
		return fmt.Errorf("invalid allocation cutoff %02d:%02d", a.CutoffHour, a.CutoffMinute)
	}
	if a.ConfirmWindowMinutes <= 0 {
		a.ConfirmWindowMinutes = 15
	}
	a.ConfirmWindow = time.Duration(a.ConfirmWindowMinutes) * time.Minute
	if a.ReminderHour <= 0 || a.ReminderHour > 23 {
		a.ReminderHour = 18
	}
	if a.ExcludeSuppliers == nil {
		exclude := true
		a.ExcludeSuppliers = &exclude
	}
	if a.HousekeepingIntervalSeconds <= 0 {
		a.HousekeepingIntervalSeconds = 60
	}
	a.HousekeepingInterval = time.Duration(a.HousekeepingIntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}
	if cfg.WorkerPool.SendTimeoutSeconds <= 0 {
		cfg.WorkerPool.SendTimeoutSeconds = 10
	}
	cfg.WorkerPool.SendTimeout = time.Duration(cfg.WorkerPool.SendTimeoutSeconds) * time.Second

	if cfg.Broker.Queue == "" {
		cfg.Broker.Queue = "parking.notifications"
	}
	return nil
}
