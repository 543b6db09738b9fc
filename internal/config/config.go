package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sirupsen/logrus"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type HTTPConfig struct {
	Port            string        `yaml:"port" env:"ORDER_SERVICE_PORT" env-default:"8081"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
}

type DBConfig struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	Host            string        `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port            string        `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User            string        `yaml:"user" env:"DB_USER" env-default:"orderservice"`
	Password        string        `yaml:"password" env:"DB_PASSWORD" env-default:"orderservice"`
	Name            string        `yaml:"name" env:"DB_NAME" env-default:"orders"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
	ConnectAttempts int           `yaml:"connect_attempts" env:"DB_CONNECT_ATTEMPTS" env-default:"30"`
	ConnectDelay    time.Duration `yaml:"connect_delay" env:"DB_CONNECT_DELAY" env-default:"2s"`
}

// DSN returns DATABASE_URL when set, otherwise a URL assembled from the
// individual settings.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic          string        `yaml:"topic" env:"KAFKA_TOPIC" env-default:"orders.events"`
	GroupID        string        `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"order-event-monitor"`
	MaxFailures    int           `yaml:"breaker_max_failures" env:"KAFKA_BREAKER_MAX_FAILURES" env-default:"5"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout" env:"KAFKA_BREAKER_TIMEOUT" env-default:"30s"`
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type ClientConfig struct {
	BaseURL string        `yaml:"base_url" env:"ORDER_SERVICE_URL" env-default:"http://localhost:8081"`
	Timeout time.Duration `yaml:"timeout" env:"ORDER_SERVICE_TIMEOUT" env-default:"10s"`
}

type Config struct {
	HTTP     HTTPConfig   `yaml:"http"`
	DB       DBConfig     `yaml:"db"`
	Kafka    KafkaConfig  `yaml:"kafka"`
	Client   ClientConfig `yaml:"client"`
	Backend  string       `yaml:"store_backend" env:"STORE_BACKEND" env-default:"postgres"`
	LogLevel string       `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

// Load reads the configuration from the environment. When CONFIG_FILE is
// set the file is read first and the environment overrides it.
func Load() (*Config, error) {
	var cfg Config

	var err error
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.Kafka.Brokers = compact(cfg.Kafka.Brokers)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Backend)
	}
	switch c.DB.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DB.Driver)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return nil
}

// NewLogger builds the JSON logger used by every binary.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Usage describes every environment variable Load understands.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
