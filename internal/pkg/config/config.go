package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	GeoAPI    GeoAPIConfig    `mapstructure:"geoapi"`
	Fields    FieldsConfig    `mapstructure:"fields"`
	Drawing   DrawingConfig   `mapstructure:"drawing"`
	Viewport  ViewportConfig  `mapstructure:"viewport"`
	Sync      SyncConfig      `mapstructure:"sync"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// Enabled routes field creation through the create-field workflow.
	Enabled bool `mapstructure:"enabled"`
}

// GeoAPIConfig points at the remote geo service that owns fields when
// fields.backend is "remote".
type GeoAPIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type FieldsConfig struct {
	// Backend is "postgres" or "remote".
	Backend string `mapstructure:"backend"`
}

type DrawingConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	SnapToleranceMeters float64       `mapstructure:"snap_tolerance_meters"`
	DrawEndSettle       time.Duration `mapstructure:"draw_end_settle"`
}

type ViewportConfig struct {
	Duration  time.Duration `mapstructure:"duration"`
	PaddingPx int           `mapstructure:"padding_px"`
	MaxZoom   int           `mapstructure:"max_zoom"`
}

// SyncConfig controls the remote field poller.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fieldmap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fieldmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "create-field-queue")
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("geoapi.base_url", "http://localhost:8000")
	v.SetDefault("geoapi.token", "")
	v.SetDefault("geoapi.timeout", 10*time.Second)
	v.SetDefault("fields.backend", "postgres")
	v.SetDefault("drawing.poll_interval", 500*time.Millisecond)
	v.SetDefault("drawing.snap_tolerance_meters", 15)
	v.SetDefault("drawing.draw_end_settle", 100*time.Millisecond)
	v.SetDefault("viewport.duration", 800*time.Millisecond)
	v.SetDefault("viewport.padding_px", 20)
	v.SetDefault("viewport.max_zoom", 18)
	v.SetDefault("sync.interval", 30*time.Second)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: FIELDMAP_DATABASE_HOST → database.host
	v.SetEnvPrefix("FIELDMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Fields.Backend {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "remote":
		if c.GeoAPI.BaseURL == "" {
			errs = append(errs, "geoapi.base_url is required when fields.backend is remote")
		}
		if c.GeoAPI.Timeout <= 0 {
			errs = append(errs, "geoapi.timeout must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("fields.backend must be postgres or remote, got %q", c.Fields.Backend))
	}

	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Temporal.Enabled && c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required when temporal is enabled")
	}
	if c.Drawing.PollInterval <= 0 {
		errs = append(errs, "drawing.poll_interval must be positive")
	}
	if c.Drawing.SnapToleranceMeters < 0 {
		errs = append(errs, "drawing.snap_tolerance_meters must not be negative")
	}
	if c.Viewport.Duration < 0 {
		errs = append(errs, "viewport.duration must not be negative")
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, "sync.interval must be positive")
	}
	if c.Viewport.MaxZoom < 0 || c.Viewport.MaxZoom > 22 {
		errs = append(errs, fmt.Sprintf("viewport.max_zoom must be 0-22, got %d", c.Viewport.MaxZoom))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
