package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Platform    PlatformConfig    `mapstructure:"platform"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Enrich      EnrichConfig      `mapstructure:"enrich"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Shops       []ShopConfig      `mapstructure:"shops"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

// PlatformConfig drives the bulk export client: poll cadence, attempt
// budget, transient-error retry, and upsert chunking.
type PlatformConfig struct {
	APIVersion      string        `mapstructure:"api_version"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts int           `mapstructure:"max_poll_attempts"`
	ConflictWait    time.Duration `mapstructure:"conflict_wait"`
	RetryCount      int           `mapstructure:"retry_count"`
	RetryWaitTime   time.Duration `mapstructure:"retry_wait_time"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ChunkSize       int           `mapstructure:"chunk_size"`
}

type SchedulerConfig struct {
	BatchSize          int           `mapstructure:"batch_size"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`
	WorkerBudget       time.Duration `mapstructure:"worker_budget"`
	// Parallelism caps how many shops run concurrently per object type.
	// Zero or a missing key means no cap beyond batch size.
	Parallelism map[string]int `mapstructure:"parallelism"`
}

// ParallelismFor returns the concurrent-shop cap for an object type.
func (c *SchedulerConfig) ParallelismFor(objectType string) int {
	if c.Parallelism == nil {
		return 0
	}
	return c.Parallelism[objectType]
}

type EnrichConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type AggregationConfig struct {
	PageSize              int `mapstructure:"page_size"`
	MaxReaggregationDepth int `mapstructure:"max_reaggregation_depth"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// ShopConfig identifies one tenant and its upstream API credentials.
type ShopConfig struct {
	Name   string `mapstructure:"name"`
	Domain string `mapstructure:"domain"`
	Token  string `mapstructure:"token"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/shopsync.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("platform.api_version", "2024-07")
	v.SetDefault("platform.poll_interval", 5*time.Second)
	v.SetDefault("platform.max_poll_attempts", 60)
	v.SetDefault("platform.conflict_wait", 10*time.Second)
	v.SetDefault("platform.retry_count", 3)
	v.SetDefault("platform.retry_wait_time", 2*time.Second)
	v.SetDefault("platform.request_timeout", 60*time.Second)
	v.SetDefault("platform.chunk_size", 250)
	v.SetDefault("scheduler.batch_size", 20)
	v.SetDefault("scheduler.staleness_threshold", 30*time.Minute)
	v.SetDefault("scheduler.worker_budget", 8*time.Minute)
	v.SetDefault("scheduler.parallelism", map[string]int{
		"refunds": 3,
	})
	v.SetDefault("enrich.batch_size", 50)
	v.SetDefault("aggregation.page_size", 1000)
	v.SetDefault("aggregation.max_reaggregation_depth", 3)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.use_ssl", true)
	v.SetDefault("archive.bucket", "shopsync-exports")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("archive.endpoint", "ARCHIVE_ENDPOINT")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ShopNames returns the configured shop identifiers in declaration order.
func (c *Config) ShopNames() []string {
	names := make([]string, 0, len(c.Shops))
	for _, s := range c.Shops {
		names = append(names, s.Name)
	}
	return names
}

// ShopByName returns the configuration for one shop.
func (c *Config) ShopByName(name string) (ShopConfig, bool) {
	for _, s := range c.Shops {
		if s.Name == name {
			return s, true
		}
	}
	return ShopConfig{}, false
}
